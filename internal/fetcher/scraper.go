package fetcher

import (
	"context"
	"fmt"

	"github.com/Priya8975/post-relay/internal/domain"
)

// ErrorKind tags a scraper failure so callers never inspect error text.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindNotFound
	KindRestricted
	// KindUnauthorized means the session was rejected. It is transient for
	// the account; the adapter logs in again next time.
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRestricted:
		return "restricted"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "transient"
	}
}

// ScrapeError is returned by Scraper implementations.
type ScrapeError struct {
	Kind   ErrorKind
	Handle string
	Err    error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape %s (%s): %v", e.Handle, e.Kind, e.Err)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Scraper is the capability used to read a monitored account's timeline.
// Sessions are keyed by credential; implementations may cache them.
type Scraper interface {
	Authenticate(ctx context.Context, cred domain.Credential) error
	GetIdentity(ctx context.Context, cred domain.Credential, handle string) (domain.Identity, error)
	GetRecentPosts(ctx context.Context, cred domain.Credential, identity domain.Identity, limit int) ([]domain.Post, error)
}
