package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const otherRoute = "other"

var (
	// Registry holds the boardbank collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardbank",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "boardbank",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path"},
	)

	commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardbank",
			Subsystem: "ledger",
			Name:      "actions_total",
			Help:      "Ledger actions by outcome (committed, rejected, failed).",
		},
		[]string{"action", "outcome"},
	)

	commitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "boardbank",
			Subsystem: "ledger",
			Name:      "commit_duration_seconds",
			Help:      "Time from validation to broadcast for committed actions.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"action"},
	)

	observers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "boardbank",
			Subsystem: "fanout",
			Name:      "observers",
			Help:      "Currently connected observers.",
		},
	)

	observerDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardbank",
			Subsystem: "fanout",
			Name:      "observer_drops_total",
			Help:      "Observers disconnected by the hub.",
		},
		[]string{"reason"},
	)

	auditRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardbank",
			Subsystem: "audit",
			Name:      "runs_total",
			Help:      "Invariant audits by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		commits,
		commitDuration,
		observers,
		observerDrops,
		auditRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler is chi middleware collecting request count and latency
// per matched route pattern. It must run inside the router so the route
// context is filled in once next returns.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := routeLabel(r)
		method := methodLabel(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordAction counts one pipeline outcome; duration is observed only for
// committed actions.
func RecordAction(action, outcome string, duration time.Duration) {
	if action == "" {
		action = "unknown"
	}
	commits.WithLabelValues(action, outcome).Inc()
	if outcome == "committed" {
		commitDuration.WithLabelValues(action).Observe(duration.Seconds())
	}
}

func ObserverConnected()    { observers.Inc() }
func ObserverDisconnected() { observers.Dec() }

func RecordObserverDrop(reason string) {
	observerDrops.WithLabelValues(reason).Inc()
}

func RecordAudit(ok bool) {
	result := "ok"
	if !ok {
		result = "violation"
	}
	auditRuns.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func methodLabel(m string) string {
	switch m = strings.ToUpper(m); m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return m
	}
	return otherRoute
}

// routeLabel is the chi route pattern that served r. Requests no route
// claimed share one label.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return otherRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return otherRoute
}
