package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	HTTPInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "idcore",
		Name:      "http_in_flight_requests",
		Help:      "In-flight HTTP requests.",
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idcore",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "idcore",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Domain metrics
var (
	LoginOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idcore",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	Lockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "idcore",
		Name:      "login_lockouts_total",
		Help:      "Identifiers locked after repeated failures.",
	})

	RefreshRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idcore",
			Name:      "refresh_rotations_total",
			Help:      "Refresh token rotations by outcome.",
		},
		[]string{"outcome"},
	)

	ChallengeVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idcore",
			Name:      "challenge_verifications_total",
			Help:      "One-time code verifications by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)

	ModificationDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idcore",
			Name:      "modification_decisions_total",
			Help:      "Reviewer decisions on KYC modification requests.",
		},
		[]string{"status"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idcore",
			Name:      "notifications_total",
			Help:      "Out-of-band notifications by channel and result.",
		},
		[]string{"channel", "result"},
	)
)

// Register adds every collector to reg
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPInFlight, HTTPRequestsTotal, HTTPRequestDuration,
		LoginOutcomes, Lockouts, RefreshRotations,
		ChallengeVerifications, ModificationDecisions, Notifications,
	)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
