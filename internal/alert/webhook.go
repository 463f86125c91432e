package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const requestTimeout = 5 * time.Second

// RetryConfig controls webhook retries.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetry retries twice with backoff from 500ms to 5s.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// Sender posts alert payloads with retry on transport errors and 5xx.
type Sender struct {
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

// NewSender builds a Sender with the given retry settings.
//
//nolint:bodyclose // *http.Response is a type parameter here
func NewSender(cfg RetryConfig) *Sender {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode >= 500
		}).
		Build()

	return &Sender{
		client:   &http.Client{Timeout: requestTimeout},
		executor: failsafe.With(retry),
	}
}

// Send posts an alert event to a webhook endpoint. 4xx responses are not retried.
func (s *Sender) Send(ctx context.Context, cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	resp, err := s.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		// Drain so the connection can be reused across retries.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp, nil
	})
	if err != nil {
		return fmt.Errorf("webhook failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("webhook failed: no response")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
}

// Send posts event with the default retry policy.
func Send(ctx context.Context, cfg AlertConfig, event AlertEvent) error {
	return NewSender(DefaultRetry()).Send(ctx, cfg, event)
}
