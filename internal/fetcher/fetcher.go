// Package fetcher finds the newest original post of a monitored account and
// classifies failures as transient or permanent.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/Priya8975/post-relay/internal/timeparse"
	"golang.org/x/time/rate"
)

type Fetcher struct {
	scraper       Scraper
	limiter       *rate.Limiter
	postsPerFetch int
	logger        *slog.Logger
}

// New creates a Fetcher. A nil limiter disables pacing.
func New(scraper Scraper, limiter *rate.Limiter, postsPerFetch int, logger *slog.Logger) *Fetcher {
	if postsPerFetch <= 0 {
		postsPerFetch = 20
	}
	return &Fetcher{
		scraper:       scraper,
		limiter:       limiter,
		postsPerFetch: postsPerFetch,
		logger:        logger,
	}
}

// Fetch performs one lookup of handle using cred. It never retries; a failed
// lookup is tried again on the next cycle.
func (f *Fetcher) Fetch(ctx context.Context, handle string, cred domain.Credential) domain.PostObservation {
	obs := domain.PostObservation{Handle: handle}

	if err := f.scraper.Authenticate(ctx, cred); err != nil {
		return transient(obs, fmt.Errorf("authenticating %s: %w", cred, err))
	}

	if err := f.wait(ctx); err != nil {
		return transient(obs, err)
	}
	identity, err := f.scraper.GetIdentity(ctx, cred, handle)
	if err != nil {
		return classifyIdentityErr(obs, err)
	}
	if identity.Private {
		obs.Outcome = domain.OutcomePermanentError
		obs.Reason = domain.ReasonAccessRestricted
		obs.Err = fmt.Errorf("account %s is private", handle)
		return obs
	}

	if err := f.wait(ctx); err != nil {
		return transient(obs, err)
	}
	posts, err := f.scraper.GetRecentPosts(ctx, cred, identity, f.postsPerFetch)
	if err != nil {
		return transient(obs, fmt.Errorf("fetching posts for %s: %w", handle, err))
	}

	post, ok := f.candidate(handle, posts)
	if !ok {
		obs.Outcome = domain.OutcomeNoNewPost
		return obs
	}

	obs.Outcome = domain.OutcomeFreshPost
	obs.URL = post.URL
	obs.CreatedAt = post.CreatedAt
	return obs
}

func (f *Fetcher) wait(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for scrape slot: %w", err)
	}
	return nil
}

// candidate returns the newest post that is not a reshare and has a timestamp.
func (f *Fetcher) candidate(handle string, posts []domain.Post) (domain.Post, bool) {
	dated := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		if p.CreatedAt.IsZero() && p.CreatedAtRaw != "" {
			t, err := timeparse.Parse(p.CreatedAtRaw)
			if err != nil {
				f.logger.Debug("skipping post with unreadable timestamp", "handle", handle, "url", p.URL, "error", err)
				continue
			}
			p.CreatedAt = t
		}
		if p.CreatedAt.IsZero() {
			continue
		}
		p.CreatedAt = p.CreatedAt.UTC()
		dated = append(dated, p)
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].CreatedAt.After(dated[j].CreatedAt)
	})

	for _, p := range dated {
		if !p.IsReshare {
			return p, true
		}
	}
	return domain.Post{}, false
}

func classifyIdentityErr(obs domain.PostObservation, err error) domain.PostObservation {
	var se *ScrapeError
	if errors.As(err, &se) {
		switch se.Kind {
		case KindNotFound:
			obs.Outcome = domain.OutcomePermanentError
			obs.Reason = domain.ReasonAccountNotFound
			obs.Err = err
			return obs
		case KindRestricted:
			obs.Outcome = domain.OutcomePermanentError
			obs.Reason = domain.ReasonAccessRestricted
			obs.Err = err
			return obs
		}
	}
	return transient(obs, fmt.Errorf("looking up %s: %w", obs.Handle, err))
}

func transient(obs domain.PostObservation, err error) domain.PostObservation {
	obs.Outcome = domain.OutcomeTransientError
	obs.Err = err
	return obs
}

// PacingLimiter converts a requests-per-second setting into a limiter.
// Zero or negative rps disables pacing.
func PacingLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

