// Package health probes the production health-check URL after traffic
// changes and on demand.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrUnhealthy is returned when the endpoint does not answer 2xx.
var ErrUnhealthy = errors.New("unhealthy")

// Config holds probe configuration.
type Config struct {
	URL     string
	Timeout time.Duration // per attempt, default 10s
	Retries int           // retries after the first attempt, default 3; negative disables

	RetryWaitMin time.Duration // default 1s
	RetryWaitMax time.Duration // default 5s
}

// Prober checks one health endpoint.
type Prober struct {
	url    string
	client *retryablehttp.Client
	logger *slog.Logger
}

// NewProber creates a prober for cfg.URL. Transport errors and 5xx
// responses are retried; any other answer is final.
func NewProber(cfg Config, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "health")

	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	switch {
	case cfg.Retries == 0:
		cfg.Retries = 3
	case cfg.Retries < 0:
		cfg.Retries = 0
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = time.Second
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = 5 * time.Second
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = cfg.Timeout
	client.RetryMax = cfg.Retries
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.Logger = logger
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Prober{
		url:    cfg.URL,
		client: client,
		logger: logger,
	}
}

// URL returns the probed endpoint.
func (p *Prober) URL() string {
	return p.url
}

// Check issues a GET against the endpoint. It returns the last status code
// received (0 when none was) and an error wrapping ErrUnhealthy unless the
// answer was 2xx.
func (p *Prober) Check(ctx context.Context) (int, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	if resp == nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrUnhealthy, p.url, err)
	}

	code := resp.StatusCode
	if code < 200 || code > 299 {
		return code, fmt.Errorf("%w: %s responded %d", ErrUnhealthy, p.url, code)
	}

	p.logger.Debug("health check passed", "url", p.url, "status", code)
	return code, nil
}
