package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
	}
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	require.Equal(t, CircuitClosed, cb.State())
	require.NoError(t, cb.Allow())

	boom := errors.New("backend down")
	for i := 0; i < 3; i++ {
		cb.RecordFailure(boom)
	}
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
	assert.Equal(t, boom, cb.LastError())

	// after the timeout a probe is allowed and the breaker goes half-open
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerReopensFromHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	for i := 0; i < 3; i++ {
		cb.RecordFailure(errors.New("down"))
	}
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, cb.Allow())
	require.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordFailure(errors.New("still down"))
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	cb.RecordFailure(errors.New("one"))
	cb.RecordFailure(errors.New("two"))
	cb.RecordSuccess()
	cb.RecordFailure(errors.New("three"))
	cb.RecordFailure(errors.New("four"))
	assert.Equal(t, CircuitClosed, cb.State(), "interleaved success should reset the streak")
}

func TestCircuitBreakerNotifiesTransitions(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	cfg := testBreakerConfig()
	cfg.OnStateChange = func(from, to CircuitState) {
		mu.Lock()
		transitions = append(transitions, from.String()+">"+to.String())
		mu.Unlock()
	}
	cb := NewCircuitBreaker(cfg)
	for i := 0; i < 3; i++ {
		cb.RecordFailure(errors.New("down"))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 1 && transitions[0] == "closed>open"
	}, time.Second, 10*time.Millisecond)
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}

func TestResilientClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	retry := DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	rc := NewResilientClient(ResilientClientConfig{
		RetryConfig:          retry,
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	})

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := rc.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())

	m := rc.Metrics()
	assert.Equal(t, int64(1), m["total_requests"])
	assert.Equal(t, int64(1), m["success_requests"])
	assert.Equal(t, int64(2), m["retried_requests"])
}

func TestResilientClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	retry := DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	rc := NewResilientClient(ResilientClientConfig{
		RetryConfig:          retry,
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	})

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := rc.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestResilientClientExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	retry := DefaultRetryConfig()
	retry.MaxRetries = 2
	retry.InitialBackoff = time.Millisecond
	rc := NewResilientClient(ResilientClientConfig{
		RetryConfig:          retry,
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	})

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = rc.Do(req)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResilientClientRejectsWhenCircuitOpen(t *testing.T) {
	rc := NewResilientClient(ResilientClientConfig{
		RetryConfig:          RetryConfig{},
		CircuitBreakerConfig: testBreakerConfig(),
	})
	for i := 0; i < 3; i++ {
		rc.breaker.RecordFailure(errors.New("down"))
	}
	require.Equal(t, CircuitOpen, rc.CircuitState())

	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:1", nil)
	require.NoError(t, err)
	_, err = rc.Do(req)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int64(1), rc.Metrics()["failed_requests"])
}

func TestResilientClientHonorsContextDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	retry := DefaultRetryConfig()
	retry.InitialBackoff = time.Minute
	rc := NewResilientClient(ResilientClientConfig{
		RetryConfig:          retry,
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = rc.Do(req)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancel should cut the backoff short")
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{StatusCode: http.StatusServiceUnavailable}
	assert.Equal(t, "Service Unavailable", err.Error())
}

func TestNewEnhanced(t *testing.T) {
	_, err := NewEnhanced(EnhancedConfig{})
	require.Error(t, err)

	_, err = NewEnhanced(EnhancedConfig{Config: Config{URL: "https://x.supabase.co"}})
	require.Error(t, err)

	c, err := NewEnhanced(EnhancedConfig{
		Config:               Config{URL: "https://x.supabase.co/", APIKey: "key"},
		RetryConfig:          DefaultRetryConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
		EnableResilience:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://x.supabase.co", c.baseURL)
	assert.NotNil(t, c.httpClient.Transport)
}

func TestNewEnhancedResilientTransportServes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	retry := DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	c, err := NewEnhanced(EnhancedConfig{
		Config:               Config{URL: srv.URL, APIKey: "key"},
		RetryConfig:          retry,
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
		EnableResilience:     true,
	})
	require.NoError(t, err)

	resp, err := c.httpClient.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}
