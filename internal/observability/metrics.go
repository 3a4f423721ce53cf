package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tickets_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	DBTxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_db_tx_retries_total",
			Help: "Transactions retried after a serialization failure",
		},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_bookings_total",
			Help: "Booking attempts by result",
		},
		[]string{"result"},
	)

	SeatsSold = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_seats_sold_total",
			Help: "Seats sold by successful bookings",
		},
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_verifications_total",
			Help: "Ticket scans by result",
		},
		[]string{"result"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tickets_outbox_lag_seconds",
			Help: "Age of the oldest message published in the last outbox batch",
		},
	)

	RabbitPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_rabbit_publish_failures_total",
			Help: "Total failed rabbit publishes",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
