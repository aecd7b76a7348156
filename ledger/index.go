package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"ve-ledger/decay"
	"ve-ledger/models"
	"ve-ledger/repository"
)

// history is a checkpoint sequence with indexes [deleted, count) readable.
type history struct {
	count   uint64
	deleted uint64
	get     func(i uint64) (*models.PowerCheckpoint, error)
}

func (tx *txn) accountHistory(account string) (*history, error) {
	state, err := tx.st.AccountState(account)
	if errors.Is(err, repository.ErrNotFound) {
		return &history{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &history{
		count:   state.PowerCount,
		deleted: state.DeletedPowerCount,
		get: func(i uint64) (*models.PowerCheckpoint, error) {
			return tx.st.AccountCheckpoint(account, i)
		},
	}, nil
}

func (tx *txn) totalHistory() *history {
	return &history{count: tx.global.TotalPowerCount, get: tx.st.TotalCheckpoint}
}

// resolve verifies that hint names the last checkpoint at or before t and returns it.
// A nil checkpoint means t precedes the whole history, where power is zero.
func (h *history) resolve(hint, t uint64) (*models.PowerCheckpoint, error) {
	if h.count == 0 {
		return nil, nil
	}
	if hint >= h.count {
		return nil, fmt.Errorf("%w: index %d, %d checkpoints", ErrInvalidIndexHint, hint, h.count)
	}
	if hint < h.deleted {
		return nil, fmt.Errorf("%w: index %d, oldest retained %d", ErrCheckpointPurged, hint, h.deleted)
	}

	cp, err := h.get(hint)
	if err != nil {
		return nil, err
	}
	if cp.Timestamp > t {
		switch {
		case hint == 0:
			return nil, nil
		case hint == h.deleted:
			return nil, fmt.Errorf("%w: time %d is before the oldest retained checkpoint", ErrCheckpointPurged, t)
		default:
			return nil, fmt.Errorf("%w: checkpoint %d is after %d", ErrInvalidIndexHint, hint, t)
		}
	}

	if hint+1 < h.count {
		next, err := h.get(hint + 1)
		if err != nil {
			return nil, err
		}
		if next.Timestamp <= t {
			return nil, fmt.Errorf("%w: checkpoint %d is not the last at or before %d", ErrInvalidIndexHint, hint, t)
		}
	}
	return cp, nil
}

// find binary searches the retained history for the hint resolve expects at t.
func (h *history) find(t uint64) (uint64, error) {
	n := h.count - h.deleted
	var ferr error
	i := sort.Search(int(n), func(i int) bool {
		if ferr != nil {
			return true
		}
		cp, err := h.get(h.deleted + uint64(i))
		if err != nil {
			ferr = err
			return true
		}
		return cp.Timestamp > t
	})
	if ferr != nil {
		return 0, ferr
	}
	if i == 0 {
		return h.deleted, nil
	}
	return h.deleted + uint64(i) - 1, nil
}

// projectTotal extends the last total checkpoint over the week boundaries up to t without
// storing anything, so queries past the last maintenance still see expiring locks.
func (tx *txn) projectTotal(h *history, hint uint64, cp *models.PowerCheckpoint, t uint64) (*models.PowerCheckpoint, error) {
	if hint+1 != h.count {
		return cp, nil
	}
	n := pendingBoundaries(cp.Timestamp, t)
	if n > tx.params.MaxBoundariesPerMaintain {
		return nil, fmt.Errorf("%w: %d pending, limit %d", ErrCatchUpRequired, n, tx.params.MaxBoundariesPerMaintain)
	}
	w := decay.WeekStart(cp.Timestamp)
	for i := 0; i < n; i++ {
		w += decay.Week
		change, err := tx.st.SlopeChange(w)
		if err != nil {
			return nil, err
		}
		cp, err = boundary(cp, w, change)
		if err != nil {
			return nil, err
		}
	}
	return cp, nil
}

func (tx *txn) accountCheckpointAt(account string, hint, t uint64) (*models.PowerCheckpoint, error) {
	h, err := tx.accountHistory(account)
	if err != nil {
		return nil, err
	}
	return h.resolve(hint, t)
}

func (tx *txn) totalCheckpointAt(hint, t uint64) (*models.PowerCheckpoint, error) {
	h := tx.totalHistory()
	cp, err := h.resolve(hint, t)
	if err != nil || cp == nil {
		return cp, err
	}
	return tx.projectTotal(h, hint, cp, t)
}

func biasAt(cp *models.PowerCheckpoint, t uint64) (uint64, error) {
	if cp == nil {
		return 0, nil
	}
	return decay.DecayedBias(cp.Bias, &cp.Slope, cp.Timestamp, t)
}

func cumulativeOrZero(cp *models.PowerCheckpoint, t uint64) *uint256.Int {
	if cp == nil {
		return new(uint256.Int)
	}
	return cumulativeAt(cp, t)
}

func delta(c1, c2 *uint256.Int) *uint256.Int {
	if c2.Lt(c1) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(c2, c1)
}

// PowerOf returns the voting power of account at t. hint must be the index of the account's
// last checkpoint at or before t.
func (l *Ledger) PowerOf(account string, hint, t uint64) (uint64, error) {
	var out uint64
	err := l.view(func(tx *txn) error {
		cp, err := tx.accountCheckpointAt(account, hint, t)
		if err != nil {
			return err
		}
		out, err = biasAt(cp, t)
		return err
	})
	return out, err
}

// TotalPower returns the sum of all accounts' voting power at t.
func (l *Ledger) TotalPower(hint, t uint64) (uint64, error) {
	var out uint64
	err := l.view(func(tx *txn) error {
		cp, err := tx.totalCheckpointAt(hint, t)
		if err != nil {
			return err
		}
		out, err = biasAt(cp, t)
		return err
	})
	return out, err
}

// CumulativePowerDelta returns the integral of account's power over [t1, t2].
// hint1 and hint2 resolve t1 and t2 as in PowerOf.
func (l *Ledger) CumulativePowerDelta(account string, hint1, hint2, t1, t2 uint64) (*uint256.Int, error) {
	if t2 < t1 {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrNegativeDuration, t1, t2)
	}
	var out *uint256.Int
	err := l.view(func(tx *txn) error {
		cp1, err := tx.accountCheckpointAt(account, hint1, t1)
		if err != nil {
			return err
		}
		cp2, err := tx.accountCheckpointAt(account, hint2, t2)
		if err != nil {
			return err
		}
		out = delta(cumulativeOrZero(cp1, t1), cumulativeOrZero(cp2, t2))
		return nil
	})
	return out, err
}

// TotalCumulativePowerDelta returns the integral of the total power over [t1, t2].
func (l *Ledger) TotalCumulativePowerDelta(hint1, hint2, t1, t2 uint64) (*uint256.Int, error) {
	if t2 < t1 {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrNegativeDuration, t1, t2)
	}
	var out *uint256.Int
	err := l.view(func(tx *txn) error {
		cp1, err := tx.totalCheckpointAt(hint1, t1)
		if err != nil {
			return err
		}
		cp2, err := tx.totalCheckpointAt(hint2, t2)
		if err != nil {
			return err
		}
		out = delta(cumulativeOrZero(cp1, t1), cumulativeOrZero(cp2, t2))
		return nil
	})
	return out, err
}

// FindAccountPowerIndex computes the hint PowerOf expects for account at t by searching the
// committed history. It is meant for callers preparing requests, not for the ledger itself.
func (l *Ledger) FindAccountPowerIndex(account string, t uint64) (uint64, error) {
	var out uint64
	err := l.view(func(tx *txn) error {
		h, err := tx.accountHistory(account)
		if err != nil {
			return err
		}
		out, err = h.find(t)
		return err
	})
	return out, err
}

// FindTotalPowerIndex computes the hint TotalPower expects at t.
func (l *Ledger) FindTotalPowerIndex(t uint64) (uint64, error) {
	var out uint64
	err := l.view(func(tx *txn) error {
		var err error
		out, err = tx.totalHistory().find(t)
		return err
	})
	return out, err
}

// AccountCheckpoint returns checkpoint index of account.
func (l *Ledger) AccountCheckpoint(account string, index uint64) (*models.PowerCheckpoint, error) {
	var out *models.PowerCheckpoint
	err := l.view(func(tx *txn) error {
		h, err := tx.accountHistory(account)
		if err != nil {
			return err
		}
		out, err = h.at(index)
		return err
	})
	return out, err
}

// TotalCheckpoint returns checkpoint index of the total power ledger.
func (l *Ledger) TotalCheckpoint(index uint64) (*models.PowerCheckpoint, error) {
	var out *models.PowerCheckpoint
	err := l.view(func(tx *txn) error {
		var err error
		out, err = tx.totalHistory().at(index)
		return err
	})
	return out, err
}

func (h *history) at(i uint64) (*models.PowerCheckpoint, error) {
	if i >= h.count {
		return nil, fmt.Errorf("%w: index %d, %d checkpoints", ErrInvalidIndexHint, i, h.count)
	}
	if i < h.deleted {
		return nil, fmt.Errorf("%w: index %d", ErrCheckpointPurged, i)
	}
	return h.get(i)
}
