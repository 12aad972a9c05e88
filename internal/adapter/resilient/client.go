// Package resilient wraps outbound HTTP calls with a circuit breaker and
// exponential-backoff retries.
package resilient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fennsaji/call-shield-sub001/internal/platform/metrics"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StatusError carries a non-2xx response that was not retried, or was the
// last failure after retries ran out.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
}

type Config struct {
	// Name labels the breaker and metrics.
	Name    string
	Timeout time.Duration

	EnableCircuitBreaker bool
	MaxFailures          uint32
	CircuitTimeout       time.Duration

	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultConfig(name string) Config {
	return Config{
		Name:                 name,
		Timeout:              30 * time.Second,
		EnableCircuitBreaker: true,
		MaxFailures:          5,
		CircuitTimeout:       30 * time.Second,
		MaxRetries:           3,
		InitialInterval:      500 * time.Millisecond,
		MaxInterval:          5 * time.Second,
	}
}

type Client struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	config  Config
	logger  *slog.Logger
}

func New(config Config, logger *slog.Logger) *Client {
	c := &Client{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
		logger: logger.With("component", "http_client", "client", config.Name),
	}

	if config.EnableCircuitBreaker {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        config.Name,
			MaxRequests: 1,
			Timeout:     config.CircuitTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= config.MaxFailures
			},
			IsSuccessful: func(err error) bool {
				var se *StatusError
				if errors.As(err, &se) {
					return se.Code < 500
				}
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
				metrics.SetBreakerState(name, gaugeValue(to))
			},
		})
	}
	return c
}

// Do sends req, retrying transient failures. A nil error means a 2xx
// response whose body the caller must close.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.doWithRetry(req)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.doWithRetry(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordHTTPClientError(c.config.Name, "circuit_open")
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, c.config.Name)
		}
		return nil, err
	}
	return result.(*http.Response), nil
}

func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
	}

	var (
		resp    *http.Response
		lastErr error
	)
	operation := func() error {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		var err error
		resp, err = c.client.Do(req)
		if err != nil {
			lastErr = err
			c.recordError("connection")
			if shouldRetry(err, nil) {
				return err
			}
			return backoff.Permanent(err)
		}

		if resp.StatusCode >= 400 {
			lastErr = &StatusError{Code: resp.StatusCode, Status: resp.Status}
			c.recordErrorFromResponse(resp)
			resp.Body.Close()
			if shouldRetry(nil, resp) {
				return lastErr
			}
			return backoff.Permanent(lastErr)
		}
		return nil
	}

	if c.config.MaxRetries == 0 {
		if err := operation(); err != nil {
			return nil, lastErr
		}
		return resp, nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.config.InitialInterval
	expBackoff.MaxInterval = c.config.MaxInterval
	expBackoff.Multiplier = 2.0
	expBackoff.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(c.config.MaxRetries)), req.Context())
	if err := backoff.Retry(operation, policy); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, fmt.Errorf("request failed after retries: %w", lastErr)
	}
	return resp, nil
}

// shouldRetry reports whether a transport error or response is transient.
// 429 is not retried: server windows are hourly.
func shouldRetry(err error, resp *http.Response) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		msg := err.Error()
		return strings.Contains(msg, "connection refused") ||
			strings.Contains(msg, "connection reset") ||
			strings.Contains(msg, "EOF")
	}
	return resp != nil && retryableStatus(resp.StatusCode)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) recordError(errorType string) {
	metrics.RecordHTTPClientError(c.config.Name, errorType)
}

func (c *Client) recordErrorFromResponse(resp *http.Response) {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.recordError("auth")
	case http.StatusTooManyRequests:
		c.recordError("rate_limit")
	case http.StatusRequestTimeout:
		c.recordError("timeout")
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		c.recordError("server_error")
	default:
		c.recordError("http_error")
	}
}

// gaugeValue maps breaker states onto the shared gauge encoding
// (0 closed, 1 open, 2 half-open).
func gaugeValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
