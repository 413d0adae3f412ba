package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClaimCouponDuration tracks the latency of pool coupon claims
	ClaimCouponDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "coupon_claim_duration_seconds",
			Help: "Duration of pool coupon claims in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"status"}, // success, out_of_stock or failed
	)

	// Redemptions counts coupon redemption attempts by outcome reason
	Redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupon_redemptions_total",
			Help: "Coupon redemption attempts by outcome",
		},
		[]string{"result"},
	)

	// StockReservations counts stock reservations by outcome reason
	StockReservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_reservations_total",
			Help: "Order stock reservations by outcome",
		},
		[]string{"result"},
	)

	// Reconciliations counts payment confirmations by entry path and outcome
	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconciliations_total",
			Help: "Payment confirmations by path and outcome",
		},
		[]string{"path", "result"},
	)

	// WebhookEvents counts verified Stripe events by type
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stripe_webhook_events_total",
			Help: "Verified Stripe webhook events by type",
		},
		[]string{"type"},
	)
)

// RecordClaimCouponDuration records the duration of a pool coupon claim
func RecordClaimCouponDuration(status string, duration float64) {
	ClaimCouponDuration.WithLabelValues(status).Observe(duration)
}

// RecordRedemption counts one redemption attempt
func RecordRedemption(result string) {
	Redemptions.WithLabelValues(result).Inc()
}

// RecordStockReservation counts one stock reservation attempt
func RecordStockReservation(result string) {
	StockReservations.WithLabelValues(result).Inc()
}

// RecordReconciliation counts one payment confirmation
func RecordReconciliation(path, result string) {
	Reconciliations.WithLabelValues(path, result).Inc()
}

// RecordWebhookEvent counts one verified webhook event
func RecordWebhookEvent(eventType string) {
	WebhookEvents.WithLabelValues(eventType).Inc()
}
