// Package metrics exposes Prometheus collectors for the race-alert service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapesTotal               *prometheus.CounterVec
	scrapeDurationSeconds      prometheus.Histogram
	transitionsTotal           *prometheus.CounterVec
	notificationsCreatedTotal  prometheus.Counter
	notificationEmailsTotal    *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racealert_scrapes_total",
				Help: "Total race pages scraped, labeled by classified status.",
			},
			[]string{"status"},
		)

		scrapeDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "racealert_scrape_duration_seconds",
				Help:    "Histogram of per-race scrape latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
			},
		)

		transitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racealert_transitions_total",
				Help: "Total ingested transitions, labeled by qualifying outcome.",
			},
			[]string{"qualifying"},
		)

		notificationsCreatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "racealert_notifications_created_total",
				Help: "Total notification records materialized by the transition gate.",
			},
		)

		notificationEmailsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racealert_notification_emails_total",
				Help: "Total notification batch emails, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrape records one scraped race.
func ObserveScrape(status string, duration time.Duration) {
	if scrapesTotal == nil {
		return
	}
	scrapesTotal.WithLabelValues(status).Inc()
	scrapeDurationSeconds.Observe(duration.Seconds())
}

// ObserveTransition records one ingestion call and the records it created.
func ObserveTransition(qualifying bool, created int) {
	if transitionsTotal == nil {
		return
	}
	transitionsTotal.WithLabelValues(strconv.FormatBool(qualifying)).Inc()
	if created > 0 {
		notificationsCreatedTotal.Add(float64(created))
	}
}

// ObserveEmail records the outcome of one batch email send.
func ObserveEmail(ok bool) {
	if notificationEmailsTotal == nil {
		return
	}
	outcome := "sent"
	if !ok {
		outcome = "failed"
	}
	notificationEmailsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
