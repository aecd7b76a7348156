package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "veledger"

// Metrics holds the collectors updated by the ledger. A nil *Metrics records nothing.
type Metrics struct {
	Operations   *prometheus.CounterVec
	Checkpoints  *prometheus.CounterVec
	Boundaries   prometheus.Counter
	BondCharged  prometheus.Counter
	BondRefunded prometheus.Counter
	TotalLocked  prometheus.Gauge
}

// New creates the ledger collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome",
		}, []string{"op", "result"}),
		Checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_appended_total",
			Help:      "Power checkpoints appended, by ledger",
		}, []string{"ledger"}),
		Boundaries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "week_boundaries_total",
			Help:      "Week boundary checkpoints appended to the total power ledger",
		}),
		BondCharged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bond_charged_total",
			Help:      "Storage bond posted for new records",
		}),
		BondRefunded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bond_refunded_total",
			Help:      "Storage bond refunded for deleted records",
		}),
		TotalLocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_locked_amount",
			Help:      "Amount currently locked across all accounts",
		}),
	}
	reg.MustRegister(m.Operations, m.Checkpoints, m.Boundaries, m.BondCharged, m.BondRefunded, m.TotalLocked)
	return m
}

// Observe records the outcome of one operation.
func (m *Metrics) Observe(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(op, result).Inc()
}

// Committed records the effects of a committed operation.
func (m *Metrics) Committed(accountCheckpoints, totalCheckpoints, boundaries int, charged, refunded, totalLocked uint64) {
	if m == nil {
		return
	}
	m.Checkpoints.WithLabelValues("account").Add(float64(accountCheckpoints))
	m.Checkpoints.WithLabelValues("total").Add(float64(totalCheckpoints))
	m.Boundaries.Add(float64(boundaries))
	m.BondCharged.Add(float64(charged))
	m.BondRefunded.Add(float64(refunded))
	m.TotalLocked.Set(float64(totalLocked))
}
