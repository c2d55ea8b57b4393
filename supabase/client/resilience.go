package client

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RetryConfig tunes the retry loop around PostgREST calls.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// BackoffMultiplier grows the delay between attempts.
	BackoffMultiplier float64
	// Jitter randomizes each delay by up to this fraction (0..1).
	Jitter float64
	// RetryableStatusCodes lists responses worth another attempt.
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the retry settings used by the runtime.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// CircuitState is a breaker position.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker is rejecting requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig tunes the breaker in front of the Supabase API.
type CircuitBreakerConfig struct {
	// FailureThreshold opens the circuit after this many consecutive
	// failures in the closed state.
	FailureThreshold int
	// SuccessThreshold closes the circuit after this many successes while
	// half-open.
	SuccessThreshold int
	// Timeout is the open period before the breaker probes again.
	Timeout time.Duration
	// OnStateChange, when set, is notified of every transition.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the breaker settings used by the
// runtime.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker trips after repeated Supabase failures so a dead backend
// fails fast instead of tying up request handlers.
type CircuitBreaker struct {
	mu sync.RWMutex

	config CircuitBreakerConfig
	state  CircuitState

	failures  int
	successes int
	lastError error
	openedAt  time.Time
}

// NewCircuitBreaker builds a breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config, state: CircuitClosed}
}

// Allow reports whether a request may proceed, moving an expired open
// circuit to half-open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if time.Since(cb.openedAt) <= cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.transition(CircuitHalfOpen)
	}
	return nil
}

// RecordSuccess feeds a successful call into the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transition(CircuitClosed)
		}
	}
}

// RecordFailure feeds a failed call into the breaker. A failure while
// half-open re-opens immediately.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastError = err
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transition(next CircuitState) {
	prev := cb.state
	cb.state = next
	cb.successes = 0
	if next == CircuitClosed {
		cb.failures = 0
	}
	if next == CircuitOpen {
		cb.openedAt = time.Now()
	}
	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(prev, next)
	}
}

// State returns the breaker position.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// LastError returns the most recent recorded failure.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.lastError
}

// StatusError carries a retryable HTTP status through the retry loop.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return http.StatusText(e.StatusCode)
}

// ResilientClient runs HTTP requests through the retry loop and breaker.
type ResilientClient struct {
	client  *http.Client
	retry   RetryConfig
	breaker *CircuitBreaker

	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// ResilientClientConfig wires a ResilientClient.
type ResilientClientConfig struct {
	// BaseClient is the underlying transport. Nil uses a pooled default.
	BaseClient           *http.Client
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
}

// NewResilientClient builds the wrapped client.
func NewResilientClient(config ResilientClientConfig) *ResilientClient {
	base := config.BaseClient
	if base == nil {
		base = defaultHTTPClient()
	}
	return &ResilientClient{
		client:  base,
		retry:   config.RetryConfig,
		breaker: NewCircuitBreaker(config.CircuitBreakerConfig),
	}
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}
}

// Do executes the request, retrying retryable failures with exponential
// backoff until the attempt budget runs out or the context ends.
func (rc *ResilientClient) Do(req *http.Request) (*http.Response, error) {
	rc.total.Add(1)

	if err := rc.breaker.Allow(); err != nil {
		rc.failed.Add(1)
		return nil, err
	}

	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 0; attempt <= rc.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			rc.retried.Add(1)
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(rc.backoff(attempt)):
			}
			req = req.Clone(req.Context())
		}

		resp, lastErr = rc.client.Do(req)
		if lastErr != nil {
			if retryableNetworkError(lastErr) {
				continue
			}
			rc.breaker.RecordFailure(lastErr)
			rc.failed.Add(1)
			return nil, lastErr
		}

		if rc.retryableStatus(resp.StatusCode) {
			lastErr = &StatusError{StatusCode: resp.StatusCode}
			resp.Body.Close()
			continue
		}

		rc.breaker.RecordSuccess()
		rc.succeeded.Add(1)
		return resp, nil
	}

	rc.breaker.RecordFailure(lastErr)
	rc.failed.Add(1)
	return resp, lastErr
}

func (rc *ResilientClient) backoff(attempt int) time.Duration {
	d := float64(rc.retry.InitialBackoff) * math.Pow(rc.retry.BackoffMultiplier, float64(attempt-1))
	if max := float64(rc.retry.MaxBackoff); d > max {
		d = max
	}
	if rc.retry.Jitter > 0 {
		d += d * rc.retry.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

func (rc *ResilientClient) retryableStatus(code int) bool {
	for _, candidate := range rc.retry.RetryableStatusCodes {
		if code == candidate {
			return true
		}
	}
	return false
}

func retryableNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Metrics returns request counters for diagnostics.
func (rc *ResilientClient) Metrics() map[string]int64 {
	return map[string]int64{
		"total_requests":   rc.total.Load(),
		"success_requests": rc.succeeded.Load(),
		"failed_requests":  rc.failed.Load(),
		"retried_requests": rc.retried.Load(),
	}
}

// CircuitState returns the breaker position.
func (rc *ResilientClient) CircuitState() CircuitState {
	return rc.breaker.State()
}

// EnhancedConfig extends Config with the resilience layer.
type EnhancedConfig struct {
	Config
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
	EnableResilience     bool
}

// NewEnhanced builds a Client whose transport retries and breaks on
// persistent Supabase failures. With EnableResilience off it behaves like
// New.
func NewEnhanced(cfg EnhancedConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if cfg.EnableResilience {
		wrapped := NewResilientClient(ResilientClientConfig{
			BaseClient:           cfg.HTTPClient,
			RetryConfig:          cfg.RetryConfig,
			CircuitBreakerConfig: cfg.CircuitBreakerConfig,
		})
		httpClient = &http.Client{
			Transport: roundTripperFunc(wrapped.Do),
			Timeout:   30 * time.Second,
		}
	} else if httpClient == nil {
		httpClient = defaultHTTPClient()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
