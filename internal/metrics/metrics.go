// Package metrics holds the Prometheus collectors for ledger and HTTP
// activity. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homequest"

type Metrics struct {
	pointsCredited prometheus.Counter
	pointsDebited  prometheus.Counter
	submissions    *prometheus.CounterVec
	reviews        *prometheus.CounterVec
	purchases      *prometheus.CounterVec
	proofCleanup   prometheus.Counter

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pointsCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_credited_total",
			Help:      "Points credited to member balances by approved submissions.",
		}),
		pointsDebited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_debited_total",
			Help:      "Points debited from member balances by purchases.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Quest submissions by result.",
		}, []string{"result"}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Submission reviews by outcome.",
		}, []string{"outcome"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Shop purchases by result.",
		}, []string{"result"}),
		proofCleanup: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proof_cleanup_failures_total",
			Help:      "Proof artifacts that could not be deleted after review.",
		}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		m.pointsCredited, m.pointsDebited, m.submissions, m.reviews, m.purchases, m.proofCleanup,
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
	)
	return m
}

// WatchClients exposes the live websocket connection count.
func WatchClients(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Connected websocket clients.",
	}, func() float64 { return float64(count()) }))
}

// Handler serves the gatherer's metrics in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) Submission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) Review(approved bool, credited int) {
	if m == nil {
		return
	}
	if approved {
		m.reviews.WithLabelValues("approved").Inc()
		m.pointsCredited.Add(float64(credited))
		return
	}
	m.reviews.WithLabelValues("rejected").Inc()
}

func (m *Metrics) Purchase(result string, debited int) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(result).Inc()
	if debited > 0 {
		m.pointsDebited.Add(float64(debited))
	}
}

func (m *Metrics) ProofCleanupFailed() {
	if m == nil {
		return
	}
	m.proofCleanup.Inc()
}

// RequestStarted increments the in-flight gauge and returns a func that
// records the finished request.
func (m *Metrics) RequestStarted() func(method, route string, status int) {
	if m == nil {
		return func(string, string, int) {}
	}
	m.httpInFlight.Inc()
	start := time.Now()
	return func(method, route string, status int) {
		code := strconv.Itoa(status)
		m.httpRequestDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(method, route, code).Inc()
		m.httpInFlight.Dec()
	}
}
