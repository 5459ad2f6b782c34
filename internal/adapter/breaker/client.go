// Package breaker wraps outbound HTTP calls to the shared store and the
// upstream data providers in a circuit breaker. Calls are never retried: a
// failed request is reported to the caller, and after repeated failures the
// breaker opens and fails fast until its timeout elapses.
package breaker

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// StatusError reports a response the breaker counts as a failure.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Code, e.Body)
}

// Settings tune the breaker. Zero values take the defaults.
type Settings struct {
	// Trip opens the breaker after this many consecutive failures.
	Trip uint32
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
}

// Client sends requests through a named breaker.
type Client struct {
	http      *http.Client
	cb        *gobreaker.CircuitBreaker[*http.Response]
	userAgent string
}

// New creates a Client. httpClient defaults to one with a 60s timeout.
func New(name string, httpClient *http.Client, userAgent string, s Settings) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if s.Trip == 0 {
		s.Trip = 5
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.Trip
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return &Client{http: httpClient, cb: cb, userAgent: userAgent}
}

// Do executes req. Transport errors, 5xx and 429 responses count as breaker
// failures and are returned as errors with the body drained and closed; any
// other response is returned for the caller to interpret and close.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.cb.Execute(func() (*http.Response, error) {
		r, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(io.LimitReader(r.Body, 512))
			r.Body.Close()
			return nil, &StatusError{Code: r.StatusCode, Body: string(body)}
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, c.cb.Name(), err)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// HTTPClient returns an *http.Client whose requests go through the breaker,
// for libraries that take a plain client.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.http.Timeout, Transport: roundTripper{c}}
}

type roundTripper struct {
	c *Client
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.c.Do(req.Clone(req.Context()))
}

// State reports the breaker state, for logging.
func (c *Client) State() string {
	return c.cb.State().String()
}
