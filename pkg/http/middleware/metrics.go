package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	applogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

var httpMetrics = struct {
	once     sync.Once
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	respSize *prometheus.HistogramVec
}{}

func initHTTPMetrics() {
	httpMetrics.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vprop",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Requests served, by route, method and status",
	}, []string{"route", "method", "status"})

	httpMetrics.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vprop",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Request latency",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"route", "method", "class"})

	httpMetrics.inFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vprop",
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Requests currently being served",
	}, []string{"route", "method"})

	httpMetrics.respSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vprop",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "Response body size",
		Buckets:   []float64{200, 500, 1_000, 5_000, 10_000, 50_000, 100_000, 500_000, 1_000_000},
	}, []string{"route", "method", "class"})

	prometheus.MustRegister(
		httpMetrics.requests,
		httpMetrics.duration,
		httpMetrics.inFlight,
		httpMetrics.respSize,
	)
}

// Metrics records per-request counters and latency, and logs 5xx and
// slow requests through l when it is non-nil.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) func(http.Handler) http.Handler {
	httpMetrics.once.Do(initHTTPMetrics)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := collapseRouteIDs(r.URL.Path)
			method := r.Method

			httpMetrics.inFlight.WithLabelValues(route, method).Inc()
			start := time.Now()

			rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			elapsed := time.Since(start)
			status := strconv.Itoa(rw.status)
			class := statusClass(rw.status)

			httpMetrics.requests.WithLabelValues(route, method, status).Inc()
			httpMetrics.duration.WithLabelValues(route, method, class).Observe(elapsed.Seconds())
			httpMetrics.respSize.WithLabelValues(route, method, class).Observe(float64(rw.written))
			httpMetrics.inFlight.WithLabelValues(route, method).Dec()

			if l == nil {
				return
			}
			switch {
			case rw.status >= 500:
				l.Error("http request failed",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.String("status", status),
					applogger.Duration("elapsed_ms", elapsed),
					applogger.Int("bytes", rw.written),
				)
			case slowThreshold > 0 && elapsed >= slowThreshold:
				l.Warn("http request slow",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.String("status", status),
					applogger.Duration("elapsed_ms", elapsed),
					applogger.Int("bytes", rw.written),
				)
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

// collapseRouteIDs replaces path segments that look like identifiers
// (UUIDs, numeric ids) with a placeholder so label cardinality stays
// bounded.
func collapseRouteIDs(path string) string {
	segs := strings.Split(path, "/")
	changed := false
	for i, seg := range segs {
		if looksLikeID(seg) {
			segs[i] = ":id"
			changed = true
		}
	}
	if !changed {
		return path
	}
	return strings.Join(segs, "/")
}

func looksLikeID(seg string) bool {
	if seg == "" {
		return false
	}
	if len(seg) == 36 && strings.Count(seg, "-") == 4 {
		return true
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
