package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ve-ledger/decay"
	"ve-ledger/logger"
	"ve-ledger/models"
)

// powerDelta is what one account mutation changes in the total at its timestamp.
// Old values are the account's contribution just before the mutation, new values just after.
type powerDelta struct {
	oldBias  uint64
	newBias  uint64
	oldSlope uint256.Int
	newSlope uint256.Int
}

func (d *powerDelta) isZero() bool {
	return d.oldBias == 0 && d.newBias == 0 && d.oldSlope.IsZero() && d.newSlope.IsZero()
}

// advance returns the checkpoint reached by decaying cp until at and then replacing bias and slope.
func advance(cp *models.PowerCheckpoint, at, bias uint64, slope *uint256.Int) (*models.PowerCheckpoint, error) {
	if at < cp.Timestamp {
		return nil, fmt.Errorf("%w: %d before checkpoint at %d", ErrStaleTimestamp, at, cp.Timestamp)
	}
	next := &models.PowerCheckpoint{Bias: bias, Timestamp: at, Slope: *slope}
	next.CumulativePower.Add(&cp.CumulativePower, decay.SegmentArea(cp.Bias, &cp.Slope, at-cp.Timestamp))
	return next, nil
}

// cumulativeAt returns the cumulative power of the history ending in cp, evaluated at t >= cp.Timestamp.
func cumulativeAt(cp *models.PowerCheckpoint, t uint64) *uint256.Int {
	out := new(uint256.Int).Set(&cp.CumulativePower)
	return out.Add(out, decay.SegmentArea(cp.Bias, &cp.Slope, t-cp.Timestamp))
}

// boundary returns the checkpoint at week boundary w following prev, with change removed from the slope.
func boundary(prev *models.PowerCheckpoint, w uint64, change *uint256.Int) (*models.PowerCheckpoint, error) {
	bias, err := decay.DecayedBias(prev.Bias, &prev.Slope, prev.Timestamp, w)
	if err != nil {
		return nil, err
	}
	slope := new(uint256.Int)
	if prev.Slope.Lt(change) {
		logger.Logger.Warn("Slope change exceeds total slope at week boundary",
			zap.Uint64("week", w),
			zap.String("slope", prev.Slope.Dec()),
			zap.String("slope_change", change.Dec()))
	} else {
		slope.Sub(&prev.Slope, change)
	}
	return advance(prev, w, bias, slope)
}

// pendingBoundaries counts the week boundaries in (from, upTo].
func pendingBoundaries(from, upTo uint64) int {
	last := decay.WeekStart(upTo)
	if last <= from {
		return 0
	}
	return int((last - decay.WeekStart(from)) / decay.Week)
}

func (tx *txn) lastTotalCheckpoint() (*models.PowerCheckpoint, error) {
	return tx.st.TotalCheckpoint(tx.global.TotalPowerCount - 1)
}

func (tx *txn) appendTotalCheckpoint(cp *models.PowerCheckpoint) error {
	if err := tx.st.PutTotalCheckpoint(tx.global.TotalPowerCount, cp); err != nil {
		return err
	}
	tx.global.TotalPowerCount++
	tx.global.LastTotalPowerTimestamp = cp.Timestamp
	tx.totalCheckpoints++
	return nil
}

// crossBoundaries appends one total checkpoint per week boundary up to upTo, at most limit of them.
// With partial unset, needing more than limit fails with ErrCatchUpRequired instead.
func (tx *txn) crossBoundaries(upTo uint64, limit int, partial bool) (int, error) {
	last, err := tx.lastTotalCheckpoint()
	if err != nil {
		return 0, err
	}

	n := pendingBoundaries(last.Timestamp, upTo)
	if n > limit {
		if !partial {
			return 0, fmt.Errorf("%w: %d pending, limit %d", ErrCatchUpRequired, n, limit)
		}
		n = limit
	}

	w := decay.WeekStart(last.Timestamp)
	for i := 0; i < n; i++ {
		w += decay.Week
		change, err := tx.st.SlopeChange(w)
		if err != nil {
			return i, err
		}
		next, err := boundary(last, w, change)
		if err != nil {
			return i, err
		}
		if err := tx.appendTotalCheckpoint(next); err != nil {
			return i, err
		}
		last = next
	}
	tx.boundaries += n
	return n, nil
}

// applyToTotal brings the total ledger up to at and applies one account's delta there.
func (tx *txn) applyToTotal(at uint64, d *powerDelta) (int, error) {
	crossed, err := tx.crossBoundaries(at, tx.params.MaxBoundariesPerOperation, false)
	if err != nil {
		return 0, err
	}
	if d.isZero() {
		return crossed, nil
	}

	last, err := tx.lastTotalCheckpoint()
	if err != nil {
		return crossed, err
	}
	pre, err := decay.DecayedBias(last.Bias, &last.Slope, last.Timestamp, at)
	if err != nil {
		return crossed, err
	}

	// the aggregate decays with one floor over the summed slope, so it may sit
	// slightly below the account's own bias
	post := uint64(0)
	if pre > d.oldBias {
		post = pre - d.oldBias
	}
	post += d.newBias

	slope := new(uint256.Int).Set(&last.Slope)
	if slope.Lt(&d.oldSlope) {
		logger.Logger.Warn("Account slope exceeds total slope",
			zap.String("slope", slope.Dec()), zap.String("account_slope", d.oldSlope.Dec()))
		slope.Clear()
	} else {
		slope.Sub(slope, &d.oldSlope)
	}
	slope.Add(slope, &d.newSlope)

	next, err := advance(last, at, post, slope)
	if err != nil {
		return crossed, err
	}
	return crossed, tx.appendTotalCheckpoint(next)
}

// addSlopeChange adds delta to the slope leaving the total at week.
func (tx *txn) addSlopeChange(week uint64, delta *uint256.Int) error {
	cur, err := tx.st.SlopeChange(week)
	if err != nil {
		return err
	}
	return tx.st.PutSlopeChange(week, cur.Add(cur, delta))
}

// subSlopeChange removes delta from the slope leaving the total at week.
func (tx *txn) subSlopeChange(week uint64, delta *uint256.Int) error {
	cur, err := tx.st.SlopeChange(week)
	if err != nil {
		return err
	}
	if cur.Lt(delta) {
		logger.Logger.Warn("Slope change underflow",
			zap.Uint64("week", week), zap.String("slope_change", cur.Dec()), zap.String("delta", delta.Dec()))
		cur.Clear()
	} else {
		cur.Sub(cur, delta)
	}
	return tx.st.PutSlopeChange(week, cur)
}
