// Package httpclient is the JSON-over-HTTP client shared by remote scorer
// adapters. Every call passes through a rate limiter and a circuit breaker,
// and every failure wraps domain.ErrRemoteScoring.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/metrics"
	"github.com/kailas-cloud/rerank/internal/tracing"
	"github.com/kailas-cloud/rerank/internal/version"
)

// Defaults.
const (
	DefaultTimeout          = 10 * time.Second
	DefaultBreakerFailures  = 5
	DefaultBreakerOpen      = 30 * time.Second
	DefaultMaxResponseBytes = 4 << 20
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Config configures a Client.
type Config struct {
	// Provider labels metrics, spans and the breaker.
	Provider string
	Timeout  time.Duration
	// RatePerSec limits outgoing requests; 0 disables the limiter.
	RatePerSec float64
	Burst      int
	// BreakerFailures consecutive failures open the breaker for BreakerOpen.
	BreakerFailures  uint32
	BreakerOpen      time.Duration
	MaxResponseBytes int64
	Headers          map[string]string
	Logger           *zap.Logger
	// Transport overrides the default instrumented transport (tests).
	Transport http.RoundTripper
}

// Client posts JSON and decodes JSON responses.
type Client struct {
	provider string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[[]byte]
	headers  map[string]string
	maxBytes int64
	logger   *zap.Logger
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = DefaultBreakerOpen
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	c := &Client{
		provider: cfg.Provider,
		http:     &http.Client{Timeout: cfg.Timeout, Transport: transport},
		headers:  cfg.Headers,
		maxBytes: cfg.MaxResponseBytes,
		logger:   cfg.Logger,
	}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	failures := cfg.BreakerFailures
	logger := cfg.Logger
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        cfg.Provider,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// client errors say nothing about the collaborator's health
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < http.StatusInternalServerError && se.Code != http.StatusTooManyRequests
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// PostJSON sends in as a JSON body to url and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) (err error) {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %s: encode request: %w", domain.ErrRemoteScoring, c.provider, err)
	}
	data, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %w", domain.ErrRemoteScoring, c.provider, err)
	}
	return nil
}

// Get issues a GET and discards the body. Used for health checks.
func (c *Client) Get(ctx context.Context, url string) error {
	_, err := c.do(ctx, http.MethodGet, url, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (_ []byte, err error) {
	ctx, end := tracing.StartClientSpan(ctx, "remote."+c.provider,
		attribute.String("http.method", method),
		attribute.String("rerank.provider", c.provider),
	)
	defer func() { end(err) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: rate limiter: %w", domain.ErrRemoteScoring, c.provider, err)
		}
	}

	start := time.Now()
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, url, body)
	})
	metrics.RemoteRequestDuration.WithLabelValues(c.provider).Observe(time.Since(start).Seconds())
	metrics.RemoteRequestsTotal.WithLabelValues(c.provider, statusLabel(err)).Inc()

	if err != nil {
		c.logger.Debug("Remote request failed",
			zap.String("provider", c.provider),
			zap.String("method", method),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrRemoteScoring, c.provider, err)
	}
	return data, nil
}

func (c *Client) roundTrip(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := data
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", c.maxBytes)
	}
	return data, nil
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return strconv.Itoa(se.Code)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
