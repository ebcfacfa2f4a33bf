// Package health checks whether the relay itself can reach the internet.
package health

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Probe issues a GET against a highly available endpoint. Only a 200 inside
// the timeout counts as healthy.
type Probe struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewProbe(url string, timeout time.Duration, logger *slog.Logger) *Probe {
	return &Probe{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Check returns nil when the network looks healthy.
func (p *Probe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("network probe failed", "url", p.url, "error", err)
		return fmt.Errorf("probing %s: %w", p.url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("network probe unhealthy", "url", p.url, "status_code", resp.StatusCode)
		return fmt.Errorf("probing %s: status %d", p.url, resp.StatusCode)
	}
	return nil
}
