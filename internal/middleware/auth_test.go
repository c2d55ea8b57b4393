package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func testClaims(projectID, userID string, ttl time.Duration) *Claims {
	return &Claims{
		ProjectID: projectID,
		Role:      "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func authProbe(t *testing.T) (http.Handler, *string, *string) {
	t.Helper()
	var gotProject, gotUser string
	m := NewAuthMiddleware(testSecret, nil, []string{"/v1/health"})
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotProject = ProjectID(r.Context())
		gotUser = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, &gotProject, &gotUser
}

func TestAuthAcceptsValidToken(t *testing.T) {
	h, gotProject, gotUser := authProbe(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testClaims("proj-1", "user-1", time.Hour)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if *gotProject != "proj-1" || *gotUser != "user-1" {
		t.Fatalf("identity = %q/%q, want proj-1/user-1", *gotProject, *gotUser)
	}
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	h, _, _ := authProbe(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tokens", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsMalformedHeader(t *testing.T) {
	h, _, _ := authProbe(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	h, _, _ := authProbe(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testClaims("proj-1", "user-1", -time.Hour)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsWrongSigningMethod(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims("proj-1", "user-1", time.Hour))
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	h, _, _ := authProbe(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsMissingProjectClaim(t *testing.T) {
	h, _, _ := authProbe(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testClaims("", "user-1", time.Hour)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthSkipPaths(t *testing.T) {
	h, _, _ := authProbe(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for skip path", rec.Code)
	}
}

func TestRateLimiterThrottles(t *testing.T) {
	rl := NewRateLimiter(1, 2, time.Minute, nil)
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("burst requests = %v, want first two 200", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", statuses[2])
	}
}

func TestRateLimiterKeysByProject(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Minute, nil)
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, project := range []string{"proj-a", "proj-b"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
		req = req.WithContext(WithIdentity(req.Context(), project, "user", ""))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("project %s blocked by sibling's limiter", project)
		}
	}
}

func TestRateLimiterCleanupEvictsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Millisecond, nil)
	rl.getLimiter("proj-a")

	time.Sleep(5 * time.Millisecond)
	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) != 0 {
		t.Fatalf("idle limiter not evicted: %d keys", len(rl.limiters))
	}
}

func TestRateLimiterStartCleanupStopsOnDone(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Millisecond, nil)
	rl.getLimiter("proj-a")

	done := make(chan struct{})
	rl.StartCleanup(time.Millisecond, done)

	deadline := time.Now().Add(time.Second)
	for {
		rl.mu.Lock()
		n := len(rl.limiters)
		rl.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cleanup loop never evicted the idle limiter")
		}
		time.Sleep(time.Millisecond)
	}
	close(done)
}

func TestRequireProject(t *testing.T) {
	h := RequireProject(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unscoped request = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
	req = req.WithContext(WithIdentity(req.Context(), "proj-a", "user-1", ""))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("scoped request = %d, want 200", rec.Code)
	}
}

func TestCORSAllowlist(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://app.example.com"})
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin = %q, want allowlisted origin echoed", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("allow-origin = %q, want empty for unknown origin", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	m := NewCORSMiddleware([]string{"*"})
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/tokens", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestTracingGeneratesTraceID(t *testing.T) {
	m := NewTracingMiddleware(nil)
	var got string
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = TraceID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tokens", nil))

	if got == "" {
		t.Fatal("trace id missing from context")
	}
	if header := rec.Header().Get("X-Trace-ID"); header != got {
		t.Fatalf("header trace id %q != context trace id %q", header, got)
	}
}

func TestTracingPropagatesIncomingTraceID(t *testing.T) {
	m := NewTracingMiddleware(nil)
	var got string
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got != "trace-123" {
		t.Fatalf("trace id = %q, want trace-123", got)
	}
}
