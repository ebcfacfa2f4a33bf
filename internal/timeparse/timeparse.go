// Package timeparse normalizes post and cursor timestamps to UTC.
package timeparse

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Layout is the canonical cursor encoding: ISO-8601, UTC, fixed-width nanoseconds.
const Layout = "2006-01-02T15:04:05.000000000Z07:00"

// Parse reads a timestamp in any common format without relying on the process locale.
// Strings without a zone are taken as UTC. The result is always in UTC.
func Parse(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// Format encodes t in the canonical cursor layout.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}
