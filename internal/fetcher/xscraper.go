package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Priya8975/post-relay/internal/domain"
	twitterscraper "github.com/imperatrona/twitter-scraper"
	"golang.org/x/time/rate"
)

// SessionStore persists login cookies across restarts.
type SessionStore interface {
	Load(ctx context.Context, username string) ([]*http.Cookie, error)
	Save(ctx context.Context, username string, cookies []*http.Cookie) error
	Delete(ctx context.Context, username string) error
}

// session is the part of the library client the adapter uses. Every method
// except setCookies and cookies makes an upstream request.
type session interface {
	verify() bool
	login(username, secret string) error
	setCookies(cookies []*http.Cookie)
	cookies() []*http.Cookie
	profile(handle string) (twitterscraper.Profile, error)
	tweets(handle string, limit int) ([]*twitterscraper.Tweet, error)
}

type libSession struct {
	s *twitterscraper.Scraper
}

func newLibSession() session {
	return libSession{s: twitterscraper.New()}
}

func (l libSession) verify() bool                        { return l.s.IsLoggedIn() }
func (l libSession) login(username, secret string) error { return l.s.Login(username, secret) }
func (l libSession) setCookies(cookies []*http.Cookie)   { l.s.SetCookies(cookies) }
func (l libSession) cookies() []*http.Cookie             { return l.s.GetCookies() }

func (l libSession) profile(handle string) (twitterscraper.Profile, error) {
	return l.s.GetProfile(handle)
}

func (l libSession) tweets(handle string, limit int) ([]*twitterscraper.Tweet, error) {
	tweets, _, err := l.s.FetchTweets(handle, limit, "")
	return tweets, err
}

// XScraper is the Scraper backed by github.com/imperatrona/twitter-scraper.
// It keeps one logged-in client per credential. A cached client is trusted
// until an upstream call is rejected as unauthorized.
type XScraper struct {
	mu         sync.Mutex
	sessions   map[string]session
	restored   map[string]bool
	store      SessionStore
	limiter    *rate.Limiter
	newSession func() session
	logger     *slog.Logger
}

// NewXScraper creates the adapter. limiter paces the verify and login
// requests it makes itself; nil disables pacing.
func NewXScraper(store SessionStore, limiter *rate.Limiter, logger *slog.Logger) *XScraper {
	return &XScraper{
		sessions:   make(map[string]session),
		restored:   make(map[string]bool),
		store:      store,
		limiter:    limiter,
		newSession: newLibSession,
		logger:     logger,
	}
}

// Authenticate makes sure a client exists for cred. Saved cookies are tried
// once per process; after that a missing client means a password login.
func (x *XScraper) Authenticate(ctx context.Context, cred domain.Credential) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.sessions[cred.Username]; ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s := x.newSession()

	if !x.restored[cred.Username] {
		x.restored[cred.Username] = true

		cookies, err := x.store.Load(ctx, cred.Username)
		if err != nil {
			x.logger.Warn("failed to load saved session", "credential", cred.Username, "error", err)
		}
		if len(cookies) > 0 {
			if err := x.wait(ctx); err != nil {
				return &ScrapeError{Kind: KindTransient, Handle: cred.Username, Err: err}
			}
			s.setCookies(cookies)
			if s.verify() {
				x.sessions[cred.Username] = s
				x.logger.Debug("restored saved session", "credential", cred.Username)
				return nil
			}
			x.logger.Warn("saved session was not accepted, logging in", "credential", cred.Username)
		}
	}

	if err := x.wait(ctx); err != nil {
		return &ScrapeError{Kind: KindTransient, Handle: cred.Username, Err: err}
	}
	if err := s.login(cred.Username, cred.Secret); err != nil {
		return &ScrapeError{Kind: KindTransient, Handle: cred.Username, Err: fmt.Errorf("login: %w", err)}
	}
	x.sessions[cred.Username] = s

	if err := x.store.Save(ctx, cred.Username, s.cookies()); err != nil {
		x.logger.Warn("failed to save session", "credential", cred.Username, "error", err)
	}
	x.logger.Info("logged in", "credential", cred.Username)
	return nil
}

func (x *XScraper) wait(ctx context.Context) error {
	if x.limiter == nil {
		return nil
	}
	if err := x.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for scrape slot: %w", err)
	}
	return nil
}

func (x *XScraper) client(cred domain.Credential) (session, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	s, ok := x.sessions[cred.Username]
	if !ok {
		return nil, fmt.Errorf("no session for %s", cred.Username)
	}
	return s, nil
}

// drop forgets the client and its saved cookies so the next Authenticate
// logs in again.
func (x *XScraper) drop(ctx context.Context, cred domain.Credential, cause error) {
	x.mu.Lock()
	delete(x.sessions, cred.Username)
	x.mu.Unlock()

	if err := x.store.Delete(ctx, cred.Username); err != nil {
		x.logger.Warn("failed to drop saved session", "credential", cred.Username, "error", err)
	}
	x.logger.Warn("session rejected upstream, will log in again", "credential", cred.Username, "error", cause)
}

func (x *XScraper) GetIdentity(ctx context.Context, cred domain.Credential, handle string) (domain.Identity, error) {
	s, err := x.client(cred)
	if err != nil {
		return domain.Identity{}, &ScrapeError{Kind: KindTransient, Handle: handle, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, &ScrapeError{Kind: KindTransient, Handle: handle, Err: err}
	}

	profile, err := s.profile(handle)
	if err != nil {
		kind := classifyProfileErr(err)
		if kind == KindUnauthorized {
			x.drop(ctx, cred, err)
		}
		return domain.Identity{}, &ScrapeError{Kind: kind, Handle: handle, Err: err}
	}
	if profile.UserID == "" {
		return domain.Identity{}, &ScrapeError{Kind: KindNotFound, Handle: handle, Err: fmt.Errorf("profile has no user id")}
	}

	return domain.Identity{
		ID:      profile.UserID,
		Handle:  handle,
		Private: profile.IsPrivate,
	}, nil
}

func (x *XScraper) GetRecentPosts(ctx context.Context, cred domain.Credential, identity domain.Identity, limit int) ([]domain.Post, error) {
	s, err := x.client(cred)
	if err != nil {
		return nil, &ScrapeError{Kind: KindTransient, Handle: identity.Handle, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &ScrapeError{Kind: KindTransient, Handle: identity.Handle, Err: err}
	}

	tweets, err := s.tweets(identity.Handle, limit)
	if err != nil {
		kind := KindTransient
		if isUnauthorized(strings.ToLower(err.Error())) {
			kind = KindUnauthorized
			x.drop(ctx, cred, err)
		}
		return nil, &ScrapeError{Kind: kind, Handle: identity.Handle, Err: err}
	}

	posts := make([]domain.Post, 0, len(tweets))
	for _, t := range tweets {
		if t == nil {
			continue
		}
		posts = append(posts, toPost(t))
	}
	return posts, nil
}

func toPost(t *twitterscraper.Tweet) domain.Post {
	created := t.TimeParsed
	if created.IsZero() && t.Timestamp > 0 {
		created = time.Unix(t.Timestamp, 0)
	}
	if !created.IsZero() {
		created = created.UTC()
	}
	return domain.Post{
		URL:       t.PermanentURL,
		CreatedAt: created,
		IsReshare: t.IsRetweet,
	}
}

// HTTP failures from the library read "response status <code> <text>: <body>".
const statusPrefix = "response status "

func isUnauthorized(msg string) bool {
	return strings.HasPrefix(msg, statusPrefix+"401") || strings.HasPrefix(msg, statusPrefix+"403")
}

// classifyProfileErr is the only place that looks at library error text.
// Only the library's own messages for missing and suspended users are
// permanent. Any HTTP failure is transient whatever its body says.
func classifyProfileErr(err error) ErrorKind {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case isUnauthorized(msg):
		return KindUnauthorized
	case strings.HasPrefix(msg, statusPrefix), msg == "guest_token not found":
		return KindTransient
	case strings.HasPrefix(msg, "user not found"):
		return KindNotFound
	case strings.HasPrefix(msg, "either @") && strings.HasSuffix(msg, "does not exist or is private"):
		return KindNotFound
	case strings.HasPrefix(msg, "user is suspended"):
		return KindRestricted
	default:
		return KindTransient
	}
}
