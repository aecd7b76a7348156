package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveAndCommitted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("lock", nil)
	m.Observe("lock", errors.New("rejected"))
	m.Observe("lock", nil)
	m.Committed(1, 3, 2, 5000, 0, 20_000_000)
	m.Committed(1, 1, 0, 0, 700, 10_000_000)

	require.Equal(t, float64(2), testutil.ToFloat64(m.Operations.WithLabelValues("lock", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Operations.WithLabelValues("lock", "error")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.Checkpoints.WithLabelValues("account")))
	require.Equal(t, float64(4), testutil.ToFloat64(m.Checkpoints.WithLabelValues("total")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.Boundaries))
	require.Equal(t, float64(5000), testutil.ToFloat64(m.BondCharged))
	require.Equal(t, float64(700), testutil.ToFloat64(m.BondRefunded))
	require.Equal(t, float64(10_000_000), testutil.ToFloat64(m.TotalLocked))

	n, err := testutil.GatherAndCount(reg, "veledger_operations_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.Observe("maintain", nil)
		m.Committed(0, 1, 1, 0, 0, 0)
	})
}
