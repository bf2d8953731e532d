package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rickshaw", Name: "rides_created_total", Help: "Ride requests created"})
	RidesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rickshaw", Name: "rides_completed_total", Help: "Rides completed"})
	PointsAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rickshaw", Name: "points_awarded_total", Help: "Points awarded to pullers on completion"})
	RidesUnderReview = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rickshaw", Name: "rides_under_review_total", Help: "Completed rides sent to manual points review"})
	PullersOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rickshaw", Name: "pullers_online", Help: "Pullers currently online"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rickshaw", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rickshaw",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
