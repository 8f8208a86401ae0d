package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shiftbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Shift booking attempts by outcome.",
		},
		[]string{"outcome"},
	)

	cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Shift cancellations by outcome.",
		},
		[]string{"outcome"},
	)

	blockSlots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_slots_total",
			Help:      "Slots processed by admin blocks, booked or failed.",
		},
		[]string{"result"},
	)

	storeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_request_duration_seconds",
			Help:      "Latency of store round-trips by operation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	signIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_ins_total",
			Help:      "Sign-in attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookings, cancellations, blockSlots, storeLatency, signIns)
	})
}

// IncHTTP counts a served request.
func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

// ObserveBooking records a booking attempt; outcome is "ok", "taken" or "error".
func ObserveBooking(outcome string) {
	bookings.WithLabelValues(outcome).Inc()
}

func ObserveCancel(outcome string) {
	cancellations.WithLabelValues(outcome).Inc()
}

func ObserveBlock(booked, failed int) {
	blockSlots.WithLabelValues("booked").Add(float64(booked))
	blockSlots.WithLabelValues("failed").Add(float64(failed))
}

func ObserveSignIn(outcome string) {
	signIns.WithLabelValues(outcome).Inc()
}

// ObserveStore records the duration of a store call started at start.
func ObserveStore(op string, start time.Time) {
	storeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
