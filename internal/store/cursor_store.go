package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/Priya8975/post-relay/internal/timeparse"
	"github.com/redis/go-redis/v9"
)

// CursorKey is the Redis hash of handle -> last dispatched post time.
const CursorKey = "twitter:last_tweet_time"

const maxCursorTxRetries = 10

// CursorStore keeps the per-account high-water mark used to drop posts that
// were already relayed.
type CursorStore struct {
	client *redis.Client
}

func NewCursorStore(client *redis.Client) *CursorStore {
	return &CursorStore{client: client}
}

// Get returns the stored cursor for handle. ok is false when none exists.
func (c *CursorStore) Get(ctx context.Context, handle string) (t time.Time, ok bool, err error) {
	raw, err := c.client.HGet(ctx, CursorKey, domain.NormalizeHandle(handle)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, storeErr("reading cursor", err)
	}
	t, err = timeparse.Parse(raw)
	if err != nil {
		return time.Time{}, false, storeErr("decoding cursor", err)
	}
	return t, true, nil
}

// Admit reports whether candidate is newer than the stored cursor for handle
// and, if so, advances the cursor to it. The first observation of a handle is
// always admitted. Older or equal candidates leave the cursor untouched.
func (c *CursorStore) Admit(ctx context.Context, handle string, candidate time.Time) (bool, error) {
	if candidate.IsZero() {
		return false, fmt.Errorf("admit %s: candidate has no timestamp", handle)
	}
	field := domain.NormalizeHandle(handle)
	candidate = candidate.UTC()

	var admitted bool
	txf := func(tx *redis.Tx) error {
		admitted = false

		stored, err := tx.HGet(ctx, CursorKey, field).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			current, err := timeparse.Parse(stored)
			if err != nil {
				return fmt.Errorf("stored cursor for %s is unreadable: %w", field, err)
			}
			if !candidate.After(current) {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, CursorKey, field, timeparse.Format(candidate))
			return nil
		})
		if err != nil {
			return err
		}
		admitted = true
		return nil
	}

	for i := 0; i < maxCursorTxRetries; i++ {
		err := c.client.Watch(ctx, txf, CursorKey)
		if err == nil {
			return admitted, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, storeErr("admitting cursor", err)
	}
	return false, storeErr("admitting cursor", fmt.Errorf("%s: too many concurrent writers", field))
}

// AdmitRaw is Admit for timestamps that arrive as strings.
func (c *CursorStore) AdmitRaw(ctx context.Context, handle, candidate string) (bool, error) {
	t, err := timeparse.Parse(candidate)
	if err != nil {
		return false, fmt.Errorf("admit %s: %w", handle, err)
	}
	return c.Admit(ctx, handle, t)
}
