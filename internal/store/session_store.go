package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionTTL = 30 * 24 * time.Hour

// SessionStore persists scraper login cookies per credential so a restart
// does not force a fresh login for every account.
type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func sessionKey(username string) string {
	return fmt.Sprintf("twitter:session:%s", username)
}

// Load returns the saved cookies for username, or nil when none are stored.
func (s *SessionStore) Load(ctx context.Context, username string) ([]*http.Cookie, error) {
	raw, err := s.client.Get(ctx, sessionKey(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session for %s: %w", username, err)
	}

	var cookies []*http.Cookie
	if err := json.Unmarshal(raw, &cookies); err != nil {
		return nil, fmt.Errorf("decoding session for %s: %w", username, err)
	}
	return cookies, nil
}

func (s *SessionStore) Save(ctx context.Context, username string, cookies []*http.Cookie) error {
	raw, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("encoding session for %s: %w", username, err)
	}
	if err := s.client.Set(ctx, sessionKey(username), raw, sessionTTL).Err(); err != nil {
		return fmt.Errorf("saving session for %s: %w", username, err)
	}
	return nil
}

// Delete drops a session that the platform no longer accepts.
func (s *SessionStore) Delete(ctx context.Context, username string) error {
	return s.client.Del(ctx, sessionKey(username)).Err()
}
