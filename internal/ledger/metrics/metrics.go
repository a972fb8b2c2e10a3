package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the receipt ledger.
type Metrics struct {
	ReceiptsRecorded *prometheus.CounterVec
	PersistFailures  prometheus.Counter
	VerifyFailures   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		ReceiptsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "govern_ledger_receipts_recorded_total",
			Help: "Total receipts recorded by action ref",
		}, []string{"action"}),

		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "govern_ledger_persist_failures_total",
			Help: "Total receipt persistence failures",
		}),

		VerifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "govern_ledger_verify_failures_total",
			Help: "Total receipts that failed hash verification",
		}),
	}
}

func (m *Metrics) IncrementRecorded(action string) {
	if m != nil {
		m.ReceiptsRecorded.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncrementPersistFailure() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) IncrementVerifyFailure() {
	if m != nil {
		m.VerifyFailures.Inc()
	}
}
