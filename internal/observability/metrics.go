package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	finalizeTotal   *prometheus.CounterVec
	compensations   *prometheus.CounterVec
	payableAmount   prometheus.Histogram
	jobsTotal       *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik checkout.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salonpos_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "salonpos_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	finalize := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salonpos_checkout_finalize_total",
		Help: "Jumlah finalisasi checkout berdasarkan hasil.",
	}, []string{"outcome"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salonpos_checkout_compensations_total",
		Help: "Jumlah langkah kompensasi yang dijalankan per langkah.",
	}, []string{"step"})
	payable := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "salonpos_checkout_payable_amount",
		Help:    "Total tagihan per order yang berhasil difinalisasi.",
		Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 25000, 50000},
	})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salonpos_jobs_total",
		Help: "Jumlah eksekusi job latar belakang berdasarkan tipe dan status.",
	}, []string{"task", "status"})
	registry.MustRegister(requests, duration, finalize, compensations, payable, jobs)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		finalizeTotal:   finalize,
		compensations:   compensations,
		payableAmount:   payable,
		jobsTotal:       jobs,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// FinalizeOutcome mencatat hasil finalisasi checkout.
func (m *Metrics) FinalizeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.finalizeTotal.WithLabelValues(outcome).Inc()
}

// Compensation mencatat langkah kompensasi yang dijalankan.
func (m *Metrics) Compensation(step string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(step).Inc()
}

// ObservePayable mencatat total tagihan order.
func (m *Metrics) ObservePayable(amount float64) {
	if m == nil {
		return
	}
	m.payableAmount.Observe(amount)
}

// JobProcessed mencatat eksekusi job.
func (m *Metrics) JobProcessed(task, status string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(task, status).Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
