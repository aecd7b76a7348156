package ledger_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"ve-ledger/db"
	"ve-ledger/decay"
	"ve-ledger/ledger"
	"ve-ledger/metrics"
	"ve-ledger/repository"
)

const (
	week = decay.Week
	day  = decay.Day

	// base is week aligned
	base = 2800 * week
)

type fixture struct {
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
	repo    repository.Params
}

func newFixture(t *testing.T, params ledger.Params, repoParams repository.Params) *fixture {
	t.Helper()
	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ldb.Close() })

	m := metrics.New(prometheus.NewRegistry())
	l := ledger.NewLedger(repository.NewRepository(ldb, repoParams), params, m)
	return &fixture{ledger: l, metrics: m, repo: repoParams}
}

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	f := newFixture(t, ledger.DefaultParams(), repository.DefaultParams())
	_, err := f.ledger.Init("operator", base)
	require.NoError(t, err)
	return f.ledger
}

func powerOf(t *testing.T, l *ledger.Ledger, account string, at uint64) uint64 {
	t.Helper()
	hint, err := l.FindAccountPowerIndex(account, at)
	require.NoError(t, err)
	p, err := l.PowerOf(account, hint, at)
	require.NoError(t, err)
	return p
}

func totalPower(t *testing.T, l *ledger.Ledger, at uint64) uint64 {
	t.Helper()
	hint, err := l.FindTotalPowerIndex(at)
	require.NoError(t, err)
	p, err := l.TotalPower(hint, at)
	require.NoError(t, err)
	return p
}

func lastTotal(t *testing.T, l *ledger.Ledger) *uint256.Int {
	t.Helper()
	g, err := l.GlobalState()
	require.NoError(t, err)
	cp, err := l.TotalCheckpoint(g.TotalPowerCount - 1)
	require.NoError(t, err)
	return &cp.Slope
}

func TestInit(t *testing.T) {
	f := newFixture(t, ledger.DefaultParams(), repository.DefaultParams())

	ok, err := f.ledger.Initialized()
	require.NoError(t, err)
	require.False(t, ok)

	_, err = f.ledger.Lock("alice", 20_000_000, base+10*week, base)
	require.ErrorIs(t, err, ledger.ErrNotInitialized)
	_, err = f.ledger.Maintain("alice", base)
	require.ErrorIs(t, err, ledger.ErrNotInitialized)

	g, err := f.ledger.Init("operator", base)
	require.NoError(t, err)
	require.Equal(t, uint64(1), g.TotalPowerCount)
	require.Equal(t, uint64(base), g.CreationTimestamp)

	_, err = f.ledger.Init("operator", base)
	require.ErrorIs(t, err, ledger.ErrAlreadyInitialized)

	bonds, err := f.ledger.BondAccount("operator")
	require.NoError(t, err)
	require.Equal(t, f.repo.TotalPageBond()+f.repo.Bond(1, repository.GlobalStateSize), bonds.Charged)
}

func TestLock_FiftyDayScenario(t *testing.T) {
	l := newLedger(t)

	const amount = 20_000_000
	end := uint64(base + 10*week)
	t0 := end - 50*day

	res, err := l.Lock("alice", amount, end, t0)
	require.NoError(t, err)
	require.Equal(t, uint64(amount), res.Account.LockedAmount)
	require.Equal(t, end, res.Account.LockEndTime)
	require.Equal(t, uint64(1), res.Account.PowerCount)
	require.NotZero(t, res.BondCharged)

	slope := decay.Slope(amount)
	want := new(uint256.Int).Lsh(uint256.NewInt(amount), 64)
	want.Div(want, uint256.NewInt(126144000))
	require.True(t, slope.Eq(want))

	b0 := new(uint256.Int).Mul(slope, uint256.NewInt(50*day))
	b0.Rsh(b0, 64)
	require.Equal(t, b0.Uint64(), powerOf(t, l, "alice", t0))

	oneDay := new(uint256.Int).Mul(slope, uint256.NewInt(day))
	oneDay.Rsh(oneDay, 64)
	require.Equal(t, b0.Uint64()-oneDay.Uint64(), powerOf(t, l, "alice", t0+day))

	// a single account's total decays exactly like the account
	require.Equal(t, powerOf(t, l, "alice", t0+day), totalPower(t, l, t0+day))
	require.True(t, lastTotal(t, l).Eq(slope))

	require.Zero(t, powerOf(t, l, "alice", end))
	require.Zero(t, totalPower(t, l, end))

	_, err = l.Withdraw("alice", end-day)
	require.ErrorIs(t, err, ledger.ErrLockNotExpired)
	_, err = l.Withdraw("alice", end)
	require.ErrorIs(t, err, ledger.ErrLockNotExpired)

	res, err = l.Withdraw("alice", end+1)
	require.NoError(t, err)
	require.Zero(t, res.Account.LockedAmount)
	require.Zero(t, res.Account.LockEndTime)
	require.Equal(t, uint64(2), res.Account.PowerCount)
	require.Equal(t, 8, res.BoundariesCrossed)

	state, err := l.AccountState("alice")
	require.NoError(t, err)
	require.Zero(t, state.LockedAmount)

	g, err := l.GlobalState()
	require.NoError(t, err)
	require.Zero(t, g.TotalLockedAmount)
	require.True(t, lastTotal(t, l).IsZero())

	_, err = l.Withdraw("alice", end+2)
	require.ErrorIs(t, err, ledger.ErrNothingLocked)

	// the terminal checkpoint keeps the whole area under the curve
	cp, err := l.AccountCheckpoint("alice", 1)
	require.NoError(t, err)
	require.Zero(t, cp.Bias)
	require.True(t, cp.Slope.IsZero())
	require.True(t, cp.CumulativePower.Eq(decay.SegmentArea(b0.Uint64(), slope, 50*day)))
}

func TestTwoAccounts_ExpiryAtBoundary(t *testing.T) {
	l := newLedger(t)

	const amountA, amountB = 30_000_000, 50_000_000
	endA, endB := uint64(base+5*week), uint64(base+10*week)
	at := uint64(base + 1000)

	_, err := l.Lock("a", amountA, endA, at)
	require.NoError(t, err)
	_, err = l.Lock("b", amountB, endB, at)
	require.NoError(t, err)

	sum := new(uint256.Int).Add(decay.Slope(amountA), decay.Slope(amountB))
	require.True(t, lastTotal(t, l).Eq(sum))

	sc, err := l.SlopeChange(endA)
	require.NoError(t, err)
	require.True(t, sc.SlopeDelta.Eq(decay.Slope(amountA)))

	crossed, err := l.Maintain("keeper", endA+10)
	require.NoError(t, err)
	require.Equal(t, 5, crossed)

	idx, err := l.FindTotalPowerIndex(endA)
	require.NoError(t, err)
	atBoundary, err := l.TotalCheckpoint(idx)
	require.NoError(t, err)
	require.Equal(t, endA, atBoundary.Timestamp)
	prev, err := l.TotalCheckpoint(idx - 1)
	require.NoError(t, err)

	drop := new(uint256.Int).Sub(&prev.Slope, &atBoundary.Slope)
	require.True(t, drop.Eq(decay.Slope(amountA)))
	require.True(t, atBoundary.Slope.Eq(decay.Slope(amountB)))

	pre, err := decay.DecayedBias(prev.Bias, &prev.Slope, prev.Timestamp, endA)
	require.NoError(t, err)
	require.Equal(t, pre, atBoundary.Bias)

	// maintenance is idempotent
	crossed, err = l.Maintain("keeper", endA+10)
	require.NoError(t, err)
	require.Zero(t, crossed)
	g, err := l.GlobalState()
	require.NoError(t, err)
	require.Equal(t, idx+1, g.TotalPowerCount)
}

func TestMaintain_Budget(t *testing.T) {
	params := ledger.DefaultParams()
	params.MaxBoundariesPerMaintain = 3
	params.MaxBoundariesPerOperation = 2
	f := newFixture(t, params, repository.DefaultParams())
	l := f.ledger
	_, err := l.Init("operator", base)
	require.NoError(t, err)

	_, err = l.Lock("alice", 20_000_000, base+30*week, base+100)
	require.NoError(t, err)

	now := uint64(base + 10*week + 5)
	_, err = l.TopUp("alice", 10_000_000, now)
	require.ErrorIs(t, err, ledger.ErrCatchUpRequired)

	var counts []int
	for {
		n, err := l.Maintain("keeper", now)
		require.NoError(t, err)
		counts = append(counts, n)
		if n == 0 {
			break
		}
	}
	require.Equal(t, []int{3, 3, 3, 1, 0}, counts)

	g, err := l.GlobalState()
	require.NoError(t, err)
	require.Equal(t, uint64(base+10*week), g.LastTotalPowerTimestamp)

	_, err = l.TopUp("alice", 10_000_000, now)
	require.NoError(t, err)

	require.Equal(t, float64(10), testutil.ToFloat64(f.metrics.Boundaries))
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Operations.WithLabelValues("topup", "error")))
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Operations.WithLabelValues("topup", "ok")))
	require.Equal(t, float64(30_000_000), testutil.ToFloat64(f.metrics.TotalLocked))
}

func TestMaintain_NeverOvershoots(t *testing.T) {
	l := newLedger(t)
	n, err := l.Maintain("keeper", base+week-1)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = l.Maintain("keeper", base+2*week)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	g, err := l.GlobalState()
	require.NoError(t, err)
	require.Equal(t, uint64(base+2*week), g.LastTotalPowerTimestamp)
}

func TestLock_Preconditions(t *testing.T) {
	l := newLedger(t)
	at := uint64(base + 100)
	end := uint64(base + 10*week)

	_, err := l.Lock("alice", 9_999_999, end, at)
	require.ErrorIs(t, err, ledger.ErrBelowMinimumAmount)
	require.Equal(t, ledger.Precondition, ledger.CategoryOf(err))

	_, err = l.Lock("alice", 20_000_000, end+1, at)
	require.ErrorIs(t, err, ledger.ErrInvalidLockTime)
	_, err = l.Lock("alice", 20_000_000, base+4*week, at)
	require.ErrorIs(t, err, ledger.ErrInvalidLockTime)
	_, err = l.Lock("alice", 20_000_000, base+210*week, at)
	require.ErrorIs(t, err, ledger.ErrInvalidLockTime)

	_, err = l.Lock("alice", 20_000_000, end, at)
	require.NoError(t, err)
	_, err = l.Lock("alice", 20_000_000, end, at)
	require.ErrorIs(t, err, ledger.ErrAlreadyLocked)

	_, err = l.Lock("bob", 20_000_000, end, at)
	require.NoError(t, err, "same-instant history is fine")
	_, err = l.Lock("carol", 20_000_000, end, at-1)
	require.ErrorIs(t, err, ledger.ErrStaleTimestamp)
}

func TestTopUpAndExtend_Preconditions(t *testing.T) {
	l := newLedger(t)
	at := uint64(base + 100)
	end := uint64(base + 6*week)

	_, err := l.TopUp("alice", 10_000_000, at)
	require.ErrorIs(t, err, ledger.ErrNothingLocked)
	_, err = l.Extend("alice", end, at)
	require.ErrorIs(t, err, ledger.ErrNothingLocked)
	_, err = l.Withdraw("alice", at)
	require.ErrorIs(t, err, ledger.ErrNothingLocked)

	_, err = l.Lock("alice", 20_000_000, end, at)
	require.NoError(t, err)

	_, err = l.TopUp("alice", 1, at)
	require.ErrorIs(t, err, ledger.ErrBelowMinimumAmount)

	_, err = l.Extend("alice", end, at)
	require.ErrorIs(t, err, ledger.ErrInvalidExtension)
	_, err = l.Extend("alice", end+week+1, at)
	require.ErrorIs(t, err, ledger.ErrInvalidExtension)
	_, err = l.Extend("alice", base+209*week, at)
	require.ErrorIs(t, err, ledger.ErrInvalidExtension)

	_, err = l.TopUp("alice", 10_000_000, end)
	require.ErrorIs(t, err, ledger.ErrLockExpired)
	_, err = l.Extend("alice", end+week, end)
	require.ErrorIs(t, err, ledger.ErrLockExpired)
}

func TestTopUpAndExtend_MoveSlopeSchedule(t *testing.T) {
	l := newLedger(t)
	at := uint64(base + 100)
	end := uint64(base + 6*week)

	_, err := l.Lock("alice", 20_000_000, end, at)
	require.NoError(t, err)

	before := powerOf(t, l, "alice", at+day)
	res, err := l.TopUp("alice", 10_000_000, at+day)
	require.NoError(t, err)
	require.Equal(t, uint64(30_000_000), res.Account.LockedAmount)
	require.Greater(t, powerOf(t, l, "alice", at+day), before)

	sc, err := l.SlopeChange(end)
	require.NoError(t, err)
	require.True(t, sc.SlopeDelta.Eq(decay.Slope(30_000_000)))
	require.True(t, lastTotal(t, l).Eq(decay.Slope(30_000_000)))

	newEnd := uint64(end + 4*week)
	res, err = l.Extend("alice", newEnd, at+2*day)
	require.NoError(t, err)
	require.Equal(t, newEnd, res.Account.LockEndTime)

	sc, err = l.SlopeChange(end)
	require.NoError(t, err)
	require.True(t, sc.SlopeDelta.IsZero())
	sc, err = l.SlopeChange(newEnd)
	require.NoError(t, err)
	require.True(t, sc.SlopeDelta.Eq(decay.Slope(30_000_000)))

	want, err := decay.DecayedBiasAtEnd(decay.Slope(30_000_000), newEnd, at+2*day)
	require.NoError(t, err)
	require.Equal(t, want, powerOf(t, l, "alice", at+2*day))
	require.Equal(t, want, totalPower(t, l, at+2*day))

	changes, err := l.SlopeChanges(base, base+20*week)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, newEnd, changes[0].Week)

	// the old end week no longer removes the slope
	require.NotZero(t, totalPower(t, l, end+week))
}

func TestFailedOperation_WritesNothing(t *testing.T) {
	params := ledger.DefaultParams()
	params.MaxBoundariesPerOperation = 1
	f := newFixture(t, params, repository.DefaultParams())
	l := f.ledger
	_, err := l.Init("operator", base)
	require.NoError(t, err)

	// the account checkpoint and slope change are written before the total fails
	_, err = l.Lock("alice", 20_000_000, base+20*week, base+3*week)
	require.ErrorIs(t, err, ledger.ErrCatchUpRequired)

	_, err = l.AccountState("alice")
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	require.Equal(t, ledger.NotFound, ledger.CategoryOf(err))
	sc, err := l.SlopeChange(base + 20*week)
	require.NoError(t, err)
	require.True(t, sc.SlopeDelta.IsZero())
	bonds, err := l.BondAccount("alice")
	require.NoError(t, err)
	require.Zero(t, bonds.Charged)
	g, err := l.GlobalState()
	require.NoError(t, err)
	require.Equal(t, uint64(1), g.TotalPowerCount)
	require.Zero(t, g.TotalLockedAmount)
}

func TestIndexHint_Verified(t *testing.T) {
	l := newLedger(t)
	at := uint64(base + 100)

	_, err := l.Lock("alice", 20_000_000, base+20*week, at)
	require.NoError(t, err)
	_, err = l.TopUp("alice", 10_000_000, at+day)
	require.NoError(t, err)
	_, err = l.TopUp("alice", 10_000_000, at+3*day)
	require.NoError(t, err)
	_, err = l.Extend("alice", base+30*week, at+5*day)
	require.NoError(t, err)

	state, err := l.AccountState("alice")
	require.NoError(t, err)
	require.Equal(t, uint64(4), state.PowerCount)

	for _, q := range []uint64{at - 1, at, at + 1, at + day, at + 2*day, at + 5*day, at + 100*day} {
		right, err := l.FindAccountPowerIndex("alice", q)
		require.NoError(t, err)
		for hint := uint64(0); hint < state.PowerCount+2; hint++ {
			_, err := l.PowerOf("alice", hint, q)
			if hint == right {
				require.NoError(t, err, "time %d hint %d", q, hint)
				continue
			}
			require.ErrorIs(t, err, ledger.ErrInvalidIndexHint, "time %d hint %d", q, hint)
			require.Equal(t, ledger.Integrity, ledger.CategoryOf(err))
		}
	}

	// before the first checkpoint power is zero
	p, err := l.PowerOf("alice", 0, at-1)
	require.NoError(t, err)
	require.Zero(t, p)
	p, err = l.PowerOf("nobody", 0, at)
	require.NoError(t, err)
	require.Zero(t, p)

	p, err = l.TotalPower(0, base-1)
	require.NoError(t, err)
	require.Zero(t, p)
	_, err = l.TotalPower(0, at+day)
	require.ErrorIs(t, err, ledger.ErrInvalidIndexHint)
}

func TestCumulativePowerDelta(t *testing.T) {
	l := newLedger(t)
	const amount = 40_000_000
	at := uint64(base + 100)
	end := uint64(base + 8*week)

	_, err := l.Lock("alice", amount, end, at)
	require.NoError(t, err)

	slope := decay.Slope(amount)
	b0, err := decay.Bias(slope, int64(end-at))
	require.NoError(t, err)

	got, err := l.CumulativePowerDelta("alice", 0, 0, at, end)
	require.NoError(t, err)
	require.True(t, got.Eq(decay.SegmentArea(b0, slope, end-at)))

	// nothing accrues after expiry
	after, err := l.CumulativePowerDelta("alice", 0, 0, at, end+10*week)
	require.NoError(t, err)
	require.True(t, after.Eq(got))

	// before the lock nothing accrued
	early, err := l.CumulativePowerDelta("alice", 0, 0, at-week, at)
	require.NoError(t, err)
	require.True(t, early.IsZero())

	// halves add up
	mid := at + 3*week
	first, err := l.CumulativePowerDelta("alice", 0, 0, at, mid)
	require.NoError(t, err)
	second, err := l.CumulativePowerDelta("alice", 0, 0, mid, end)
	require.NoError(t, err)
	require.True(t, new(uint256.Int).Add(first, second).Eq(got))

	_, err = l.CumulativePowerDelta("alice", 0, 0, end, at)
	require.ErrorIs(t, err, ledger.ErrNegativeDuration)
	require.Equal(t, ledger.Integrity, ledger.CategoryOf(err))

	// the total accrues the same area up to rounding at each week boundary
	h1, err := l.FindTotalPowerIndex(at)
	require.NoError(t, err)
	h2, err := l.FindTotalPowerIndex(end)
	require.NoError(t, err)
	total, err := l.TotalCumulativePowerDelta(h1, h2, at, end)
	require.NoError(t, err)
	diff := new(uint256.Int)
	if total.Lt(got) {
		diff.Sub(got, total)
	} else {
		diff.Sub(total, got)
	}
	require.True(t, diff.Lt(uint256.NewInt(8*(end-at))), "diff %s", diff.Dec())

	_, err = l.TotalCumulativePowerDelta(h2, h1, end, at)
	require.ErrorIs(t, err, ledger.ErrNegativeDuration)
}

func TestPageGC(t *testing.T) {
	repoParams := repository.DefaultParams()
	repoParams.PageCapacity = 2
	f := newFixture(t, ledger.DefaultParams(), repoParams)
	l := f.ledger
	_, err := l.Init("operator", base)
	require.NoError(t, err)

	at := uint64(base + 100)
	end := uint64(base + 6*week)
	_, err = l.Lock("alice", 20_000_000, end, at)
	require.NoError(t, err)
	for i := uint64(1); i <= 3; i++ {
		_, err = l.TopUp("alice", 10_000_000, at+i*day)
		require.NoError(t, err)
	}
	_, err = l.Extend("alice", end+week, at+4*day)
	require.NoError(t, err)
	// checkpoints 0..4 on pages 0, 1, 2

	_, err = l.DeleteAccountPowerPages("gc", "alice", 1, 1)
	require.ErrorIs(t, err, ledger.ErrInvalidDeletion)
	_, err = l.DeleteAccountPowerPages("gc", "alice", 0, 3)
	require.ErrorIs(t, err, ledger.ErrInvalidDeletion)
	_, err = l.DeleteAccountPowerPages("gc", "alice", 0, 0)
	require.ErrorIs(t, err, ledger.ErrInvalidDeletion)
	_, err = l.DeleteAccountPowerPages("gc", "nobody", 0, 1)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	res, err := l.DeleteAccountPowerPages("gc", "alice", 0, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(4), res.Account.DeletedPowerCount)
	require.Equal(t, 2*repoParams.AccountPageBond("alice"), res.BondRefunded)

	_, err = l.PowerOf("alice", 1, at+day)
	require.ErrorIs(t, err, ledger.ErrCheckpointPurged)
	_, err = l.PowerOf("alice", 4, at+day)
	require.ErrorIs(t, err, ledger.ErrCheckpointPurged)
	_, err = l.CumulativePowerDelta("alice", 4, 4, at, at+5*day)
	require.ErrorIs(t, err, ledger.ErrCheckpointPurged)
	hint, err := l.FindAccountPowerIndex("alice", at)
	require.NoError(t, err)
	_, err = l.PowerOf("alice", hint, at)
	require.ErrorIs(t, err, ledger.ErrCheckpointPurged)
	require.NotZero(t, powerOf(t, l, "alice", at+5*day))

	_, err = l.DeleteAccountState("gc", "alice")
	require.ErrorIs(t, err, ledger.ErrInvalidDeletion)

	_, err = l.Withdraw("alice", end+week+1)
	require.NoError(t, err)
	res, err = l.DeleteAccountState("gc", "alice")
	require.NoError(t, err)
	require.Equal(t, repoParams.AccountPageBond("alice")+repoParams.Bond(6, repository.AccountStateSize), res.BondRefunded)

	_, err = l.AccountState("alice")
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	p, err := l.PowerOf("alice", 0, end)
	require.NoError(t, err)
	require.Zero(t, p)

	bonds, err := l.BondAccount("gc")
	require.NoError(t, err)
	require.Equal(t, 3*repoParams.AccountPageBond("alice")+repoParams.Bond(6, repository.AccountStateSize), bonds.Refunded)

	// the account can lock again from a fresh history
	res2, err := l.Lock("alice", 20_000_000, end+10*week, end+week+2)
	require.NoError(t, err)
	require.Equal(t, uint64(1), res2.Account.PowerCount)
}

func TestWithdraw_ExpiredLockLeavesTotalUntouched(t *testing.T) {
	l := newLedger(t)
	at := uint64(base + 100)
	_, err := l.Lock("alice", 20_000_000, base+5*week, at)
	require.NoError(t, err)
	_, err = l.Lock("bob", 20_000_000, base+9*week, at)
	require.NoError(t, err)

	res, err := l.Withdraw("alice", base+6*week)
	require.NoError(t, err)
	require.Equal(t, 6, res.BoundariesCrossed)

	require.True(t, lastTotal(t, l).Eq(decay.Slope(20_000_000)))
	// floors over the summed slope leave the total a unit or two below bob
	require.InDelta(t, float64(powerOf(t, l, "bob", base+6*week)), float64(totalPower(t, l, base+6*week)), 3)
}
