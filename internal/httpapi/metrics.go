package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tensord/internal/manager"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensord",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tensord",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tensord",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
	)

	managerLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensord",
			Subsystem: "manager",
			Name:      "loads_total",
			Help:      "Model loads by outcome",
		},
		[]string{"model", "result"},
	)

	managerInferencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensord",
			Subsystem: "manager",
			Name:      "inferences_total",
			Help:      "Inference requests by outcome",
		},
		[]string{"model", "result"},
	)

	managerInferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tensord",
			Subsystem: "manager",
			Name:      "inference_duration_seconds",
			Help:      "Forward pass duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"model"},
	)

	managerDeviceSwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensord",
			Subsystem: "manager",
			Name:      "device_switches_total",
			Help:      "Successful model moves to another device",
		},
		[]string{"model", "device"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight,
		managerLoadsTotal, managerInferencesTotal, managerInferenceDuration, managerDeviceSwitchesTotal)
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus. Mounted inside a
// chi router, the path label is the matched route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInflight.Inc()
		defer httpInflight.Dec()

		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		// the route pattern is only known once routing has happened
		path := routePatternOrPath(r)
		statusLabel := strconv.Itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, r.Method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method, statusLabel).Observe(dur)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// MetricsPublisher turns manager events into Prometheus series and
// forwards every event to Next when set.
type MetricsPublisher struct {
	Next manager.EventPublisher
}

func (p MetricsPublisher) Publish(e manager.Event) {
	switch e.Name {
	case manager.EventLoadDone:
		managerLoadsTotal.WithLabelValues(e.Model, "ok").Inc()
	case manager.EventLoadError, manager.EventInjectError:
		managerLoadsTotal.WithLabelValues(e.Model, "error").Inc()
	case manager.EventInferDone:
		managerInferencesTotal.WithLabelValues(e.Model, "ok").Inc()
		if s, ok := e.Fields["dur_s"].(float64); ok {
			managerInferenceDuration.WithLabelValues(e.Model).Observe(s)
		}
	case manager.EventInferError:
		managerInferencesTotal.WithLabelValues(e.Model, "error").Inc()
	case manager.EventDeviceSwitch:
		d, _ := e.Fields["device"].(string)
		managerDeviceSwitchesTotal.WithLabelValues(e.Model, d).Inc()
	}
	if p.Next != nil {
		p.Next.Publish(e)
	}
}
