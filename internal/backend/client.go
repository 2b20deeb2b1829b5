// Package backend is the client for the interview backend's REST API:
// session transitions, reference answer generation, historical question
// matching and the fire-and-forget abandon beacon.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-copilot/internal/observability"
	"github.com/lexiqai/interview-copilot/internal/resilience"
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx backend response.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Op, e.Status, e.Body)
}

// StatusCode returns the HTTP status of the response.
func (e *APIError) StatusCode() int { return e.Status }

// Config for the backend client.
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	BeaconTimeout time.Duration
}

// Client calls the backend REST API.
type Client struct {
	baseURL       string
	token         string
	http          *http.Client
	breaker       *resilience.CircuitBreaker
	beaconTimeout time.Duration
	logger        zerolog.Logger

	beacons sync.WaitGroup
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client for cfg.BaseURL guarded by breaker.
func NewClient(cfg Config, breaker *resilience.CircuitBreaker, logger zerolog.Logger, opts ...Option) *Client {
	beaconTimeout := cfg.BeaconTimeout
	if beaconTimeout <= 0 {
		beaconTimeout = 5 * time.Second
	}
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		http:          &http.Client{Timeout: cfg.Timeout},
		breaker:       breaker,
		beaconTimeout: beaconTimeout,
		logger:        observability.WithComponent(logger, "backend_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsServerFailure reports whether err should count against the circuit
// breaker. 4xx responses are answers from a healthy backend.
func IsServerFailure(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

// Ping checks that the backend answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "health", http.MethodGet, "/health", nil, nil)
}

// Wait blocks until in-flight beacons finish or ctx is done.
func (c *Client) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.beacons.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	if c.breaker == nil {
		return c.do(ctx, op, method, path, in, out)
	}
	err := c.breaker.Call(func() error {
		return c.do(ctx, op, method, path, in, out)
	})
	observability.UpdateCircuitBreakerState("backend", int(c.breaker.GetState()))
	if IsServerFailure(err) {
		observability.IncrementCircuitBreakerFailures("backend")
	}
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.RecordBackendRequest(op, "error", time.Since(start))
		return fmt.Errorf("backend %s: %w", op, err)
	}
	defer resp.Body.Close()
	observability.RecordBackendRequest(op, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("backend %s: decode response: %w", op, err)
	}
	return nil
}
