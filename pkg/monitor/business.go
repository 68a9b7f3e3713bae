package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics covers the proof settlement pipeline.
type BusinessMetrics struct {
	ProofSubmissionsTotal   *prometheus.CounterVec
	ProverAttemptsTotal     *prometheus.CounterVec
	ConfirmationsTotal      *prometheus.CounterVec
	SettlementsTotal        *prometheus.CounterVec
	SettlementAmountTotal   prometheus.Counter
	PollBatchDuration       prometheus.Histogram
	PendingSubmissions      prometheus.Gauge
	ExpiredSubmissionsTotal prometheus.Counter
}

// Global Metrics Instance
var Business *BusinessMetrics

// InitBusinessMetrics initializes the pipeline metrics.
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		ProofSubmissionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "proofpay_submissions_total",
			Help: "Proof submissions by result",
		}, []string{"result"}), // accepted, duplicate, relay_error, invalid_signature
		ProverAttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "proofpay_prover_attempts_total",
			Help: "Prover calls by outcome",
		}, []string{"outcome"}), // success, server_error, rejected, protocol_error, timeout, refused, network_error
		ConfirmationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "proofpay_confirmations_total",
			Help: "Submission transitions observed by the poller",
		}, []string{"status"}), // confirmed, failed
		SettlementsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "proofpay_settlements_total",
			Help: "Settlement attempts by terminal status",
		}, []string{"status"}), // completed, failed
		SettlementAmountTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "proofpay_settlement_amount_total",
			Help: "Total reward amount issued",
		}),
		PollBatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "proofpay_poll_batch_duration_seconds",
			Help:    "Duration of confirmation poll batches",
			Buckets: prometheus.DefBuckets,
		}),
		PendingSubmissions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "proofpay_pending_submissions",
			Help: "Submissions currently pending confirmation",
		}),
		ExpiredSubmissionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "proofpay_expired_submissions_total",
			Help: "Pending submissions failed by the expiry sweeper",
		}),
	}
}
