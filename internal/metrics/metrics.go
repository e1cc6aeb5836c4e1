package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "luxurystay",
			Name:      "booking_submissions_total",
			Help:      "Count of booking submissions by outcome.",
		},
		[]string{"outcome"},
	)

	conflictsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "luxurystay",
			Name:      "proposal_conflicts_detected_total",
			Help:      "Count of checkout selections cleared by the local conflict check.",
		},
	)

	submitNoops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "luxurystay",
			Name:      "submit_guard_noops_total",
			Help:      "Count of submissions ignored because one was already in flight.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "luxurystay",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	apiLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "luxurystay",
			Name:      "booking_api_request_seconds",
			Help:      "Latency of booking API calls by operation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	roomCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "luxurystay",
			Name:      "room_cache_total",
			Help:      "Room cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(submissions, conflictsDetected, submitNoops, httpRequests, apiLatency, roomCache)
	})
}

func IncSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

func IncConflictDetected() {
	conflictsDetected.Inc()
}

func IncSubmitNoop() {
	submitNoops.Inc()
}

func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

// ObserveAPI records the duration of a booking API call started at start.
func ObserveAPI(op string, start time.Time) {
	apiLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func IncRoomCache(result string) {
	roomCache.WithLabelValues(result).Inc()
}
