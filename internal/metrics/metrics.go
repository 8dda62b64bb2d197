package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BookingsCreated counts bookings by whether a promo code was redeemed.
	BookingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_bookings_created_total",
			Help: "Total number of bookings created",
		},
		[]string{"promo"}, // yes or no
	)

	// BookingPayments counts payment attempts per method and outcome.
	BookingPayments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_booking_payments_total",
			Help: "Total number of booking payment attempts",
		},
		[]string{"method", "outcome"},
	)

	// BookingTransitions counts state machine transitions.
	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_booking_transitions_total",
			Help: "Total number of booking state transitions",
		},
		[]string{"to", "reason"},
	)

	// PromoValidations counts validation outcomes by reason ("valid" on success).
	PromoValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_promo_validations_total",
			Help: "Total number of promo code validations",
		},
		[]string{"result"},
	)

	// LedgerEntries counts appended ledger rows.
	LedgerEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_ledger_entries_total",
			Help: "Total number of wallet ledger rows appended",
		},
		[]string{"account", "type"},
	)

	// Withdrawals counts withdrawal requests and reviews.
	Withdrawals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_withdrawals_total",
			Help: "Total number of withdrawal requests and review actions",
		},
		[]string{"action"},
	)

	// PersistenceRetries counts units of work retried after a conflict.
	PersistenceRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_persistence_retries_total",
			Help: "Total number of units of work retried after a persistence conflict",
		},
		[]string{"operation"},
	)

	// SweepDuration tracks the latency of the payment deadline sweep.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "settlement_sweep_duration_seconds",
			Help:    "Duration of payment deadline sweeps in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)
)

// RecordPayment records one payment attempt.
func RecordPayment(method, outcome string) {
	BookingPayments.WithLabelValues(method, outcome).Inc()
}

// RecordTransition records a booking moving to state to.
func RecordTransition(to, reason string) {
	BookingTransitions.WithLabelValues(to, reason).Inc()
}

// RecordLedgerEntry records one appended ledger row.
func RecordLedgerEntry(account, txType string) {
	LedgerEntries.WithLabelValues(account, txType).Inc()
}

// RecordSweep records the duration of one sweep run.
func RecordSweep(started time.Time) {
	SweepDuration.Observe(time.Since(started).Seconds())
}

// Handler exposes the default registry for scraping.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
