// Package metrics exposes the Prometheus collectors for the token layer.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "token_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "token_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "token_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	operationExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "token_layer",
			Subsystem: "operations",
			Name:      "executions_total",
			Help:      "Total number of token operation executions.",
		},
		[]string{"operation", "status"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "token_layer",
			Subsystem: "operations",
			Name:      "execution_duration_seconds",
			Help:      "Duration of token operation executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)

	validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "token_layer",
			Subsystem: "policy",
			Name:      "validations_total",
			Help:      "Total number of policy validation calls.",
		},
		[]string{"operation", "verdict"},
	)

	gatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "token_layer",
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Total number of transaction gateway calls.",
		},
		[]string{"method", "success"},
	)

	confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "token_layer",
			Subsystem: "operations",
			Name:      "confirmations_total",
			Help:      "Operation rows settled by confirmation tracking.",
		},
		[]string{"status"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "token_layer",
			Subsystem: "registry",
			Name:      "cache_lookups_total",
			Help:      "Registry cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	liveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "token_layer",
			Subsystem: "workflow",
			Name:      "live_sessions",
			Help:      "Current number of live workflow sessions.",
		},
	)

	feedSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "token_layer",
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Current number of operation feed subscribers.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		operationExecutions,
		operationDuration,
		validations,
		gatewayCalls,
		confirmations,
		cacheLookups,
		liveSessions,
		feedSubscribers,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordOperationExecution records one operation execution attempt.
func RecordOperationExecution(op, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	operationExecutions.WithLabelValues(op, status).Inc()
	operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordValidation records one policy validation verdict.
func RecordValidation(op string, valid bool) {
	verdict := "denied"
	if valid {
		verdict = "approved"
	}
	validations.WithLabelValues(op, verdict).Inc()
}

// RecordGatewayCall records one transaction gateway invocation.
func RecordGatewayCall(method string, success bool) {
	gatewayCalls.WithLabelValues(method, strconv.FormatBool(success)).Inc()
}

// RecordConfirmation records one settled operation row.
func RecordConfirmation(status string) {
	confirmations.WithLabelValues(status).Inc()
}

// RecordCacheLookup records a registry cache hit or miss.
func RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookups.WithLabelValues(outcome).Inc()
}

// SetLiveSessions reports the current workflow session count.
func SetLiveSessions(n int) {
	liveSessions.Set(float64(n))
}

// SetFeedSubscribers reports the current feed subscriber count.
func SetFeedSubscribers(n int) {
	feedSubscribers.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack keeps websocket upgrades working through the wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// canonicalPath collapses resource ids so label cardinality stays bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] == "v1" {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return "/"
	}

	switch parts[0] {
	case "tokens":
		if len(parts) == 1 {
			return "/v1/tokens"
		}
		if len(parts) == 2 {
			return "/v1/tokens/:id"
		}
		return "/v1/tokens/:id/" + parts[2]
	case "sessions":
		if len(parts) == 1 {
			return "/v1/sessions"
		}
		if len(parts) == 2 {
			return "/v1/sessions/:id"
		}
		return "/v1/sessions/:id/" + parts[2]
	case "operations":
		if len(parts) > 1 {
			return "/v1/operations/:id"
		}
		return "/v1/operations"
	case "modules":
		if len(parts) >= 3 && parts[1] == "registry" {
			return "/v1/modules/registry/:type/" + parts[len(parts)-1]
		}
		return "/v1/modules/" + strings.Join(parts[1:], "/")
	}
	return "/" + parts[0]
}
