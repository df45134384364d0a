// Package metrics exposes perimeter counters to Prometheus.
//
// Every method is safe on a nil *Perimeter so components can run without
// metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "huozhong"

// Perimeter holds the perimeter collectors and the registry they live in.
type Perimeter struct {
	reg *prometheus.Registry

	admission     *prometheus.CounterVec
	trackedKeys   *prometheus.GaugeVec
	logins        *prometheus.CounterVec
	codes         *prometheus.CounterVec
	tokenVerifies *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates collectors in a fresh registry. withRuntime adds the Go and
// process collectors.
func New(withRuntime bool) *Perimeter {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	p := &Perimeter{
		reg: reg,
		admission: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by scope and outcome.",
		}, []string{"scope", "outcome"}),
		trackedKeys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "tracked_keys",
			Help:      "Rate-window keys held in memory after the last sweep.",
		}, []string{"scope"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by flow and outcome.",
		}, []string{"flow", "outcome"}),
		codes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verifycode",
			Name:      "events_total",
			Help:      "Verification code lifecycle events.",
		}, []string{"event"}),
		tokenVerifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "verifications_total",
			Help:      "Session token verifications by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "class"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by status class.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"class"}),
	}
	reg.MustRegister(p.admission, p.trackedKeys, p.logins, p.codes, p.tokenVerifies, p.httpRequests, p.httpDuration)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Perimeter) Handler() http.Handler {
	if p == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

// Registry returns the underlying registry.
func (p *Perimeter) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.reg
}

// Admission counts one admission decision. outcome is "admitted" or "rejected".
func (p *Perimeter) Admission(scope, outcome string) {
	if p == nil {
		return
	}
	p.admission.WithLabelValues(scope, outcome).Inc()
}

// TrackedKeys records the window count for scope.
func (p *Perimeter) TrackedKeys(scope string, n int) {
	if p == nil {
		return
	}
	p.trackedKeys.WithLabelValues(scope).Set(float64(n))
}

// Login counts a login attempt.
func (p *Perimeter) Login(flow, outcome string) {
	if p == nil {
		return
	}
	p.logins.WithLabelValues(flow, outcome).Inc()
}

// Code counts a verification code event.
func (p *Perimeter) Code(event string) {
	if p == nil {
		return
	}
	p.codes.WithLabelValues(event).Inc()
}

// TokenVerify counts a session token verification.
func (p *Perimeter) TokenVerify(outcome string) {
	if p == nil {
		return
	}
	p.tokenVerifies.WithLabelValues(outcome).Inc()
}

// HTTPRequest observes one finished request.
func (p *Perimeter) HTTPRequest(method string, status int, d time.Duration) {
	if p == nil {
		return
	}
	class := StatusClass(status)
	p.httpRequests.WithLabelValues(method, class).Inc()
	p.httpDuration.WithLabelValues(class).Observe(d.Seconds())
}

// StatusClass maps 404 to "4xx".
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
