package ledger

import (
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"ve-ledger/decay"
	"ve-ledger/models"
	"ve-ledger/repository"
)

// accountOp is the state shared by the four lock operations.
type accountOp struct {
	tx      *txn
	account string
	at      uint64
	state   *models.AccountState
	last    *models.PowerCheckpoint // nil before the first checkpoint

	// contribution to the total just before at
	oldBias  uint64
	oldSlope uint256.Int
}

func (tx *txn) openAccount(account string, at uint64) (*accountOp, error) {
	if at < tx.global.LastTotalPowerTimestamp {
		return nil, fmt.Errorf("%w: %d < %d", ErrStaleTimestamp, at, tx.global.LastTotalPowerTimestamp)
	}

	op := &accountOp{tx: tx, account: account, at: at}
	state, err := tx.st.AccountState(account)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		op.state = &models.AccountState{}
		return op, nil
	case err != nil:
		return nil, err
	}
	op.state = state

	if state.PowerCount > 0 {
		op.last, err = tx.st.AccountCheckpoint(account, state.PowerCount-1)
		if err != nil {
			return nil, fmt.Errorf("account %q checkpoint %d: %w", account, state.PowerCount-1, err)
		}
		if at < op.last.Timestamp {
			return nil, fmt.Errorf("%w: %d < %d", ErrStaleTimestamp, at, op.last.Timestamp)
		}
		// an expired lock contributes nothing, its slope left the total at its end week
		if state.LockEndTime > at {
			op.oldBias, err = decay.DecayedBias(op.last.Bias, &op.last.Slope, op.last.Timestamp, at)
			if err != nil {
				return nil, err
			}
			op.oldSlope = op.last.Slope
		}
	}
	return op, nil
}

// commit appends the account checkpoint, stores the state and applies the delta to the total.
func (op *accountOp) commit(newBias uint64, newSlope *uint256.Int) (*MutationResult, error) {
	var err error
	next := &models.PowerCheckpoint{Bias: newBias, Timestamp: op.at, Slope: *newSlope}
	if op.last != nil {
		next, err = advance(op.last, op.at, newBias, newSlope)
		if err != nil {
			return nil, err
		}
	}
	if err := op.tx.st.PutAccountCheckpoint(op.account, op.state.PowerCount, next); err != nil {
		return nil, err
	}
	op.state.PowerCount++
	op.tx.accountCheckpoints++
	if err := op.tx.st.PutAccountState(op.account, op.state); err != nil {
		return nil, err
	}

	d := &powerDelta{oldBias: op.oldBias, newBias: newBias, oldSlope: op.oldSlope, newSlope: *newSlope}
	crossed, err := op.tx.applyToTotal(op.at, d)
	if err != nil {
		return nil, err
	}
	return &MutationResult{
		Account:           *op.state,
		BoundariesCrossed: crossed,
		TotalPowerCount:   op.tx.global.TotalPowerCount,
		BondCharged:       op.tx.st.Charged(),
	}, nil
}

func (tx *txn) validLockEnd(at, end uint64) bool {
	return end%decay.Week == 0 &&
		end >= at+tx.params.MinLockDuration &&
		end <= at+decay.MaxLockDuration
}

// Lock locks amount for account until lockEndTime, which must fall on a week boundary.
func (l *Ledger) Lock(account string, amount, lockEndTime, at uint64) (*MutationResult, error) {
	var res *MutationResult
	err := l.update("lock", account, func(tx *txn) error {
		if amount < tx.params.MinLockAmount {
			return fmt.Errorf("%w: %d < %d", ErrBelowMinimumAmount, amount, tx.params.MinLockAmount)
		}
		op, err := tx.openAccount(account, at)
		if err != nil {
			return err
		}
		if op.state.HasLock() {
			return ErrAlreadyLocked
		}
		if !tx.validLockEnd(at, lockEndTime) {
			return fmt.Errorf("%w: %d at %d", ErrInvalidLockTime, lockEndTime, at)
		}
		if tx.global.TotalLockedAmount > math.MaxUint64-amount {
			return fmt.Errorf("total locked amount: %w", decay.ErrOverflow)
		}

		slope := decay.Slope(amount)
		bias, err := decay.Bias(slope, int64(lockEndTime-at))
		if err != nil {
			return err
		}
		if err := tx.addSlopeChange(lockEndTime, slope); err != nil {
			return err
		}

		op.state.LockedAmount = amount
		op.state.LockEndTime = lockEndTime
		tx.global.TotalLockedAmount += amount
		res, err = op.commit(bias, slope)
		return err
	})
	return res, err
}

// TopUp adds amount to the unexpired lock of account.
func (l *Ledger) TopUp(account string, amount, at uint64) (*MutationResult, error) {
	var res *MutationResult
	err := l.update("topup", account, func(tx *txn) error {
		if amount < tx.params.MinLockAmountIncrement {
			return fmt.Errorf("%w: %d < %d", ErrBelowMinimumAmount, amount, tx.params.MinLockAmountIncrement)
		}
		op, err := tx.openAccount(account, at)
		if err != nil {
			return err
		}
		if !op.state.HasLock() {
			return ErrNothingLocked
		}
		if op.state.LockEndTime <= at {
			return ErrLockExpired
		}
		if op.state.LockedAmount > math.MaxUint64-amount || tx.global.TotalLockedAmount > math.MaxUint64-amount {
			return fmt.Errorf("locked amount: %w", decay.ErrOverflow)
		}

		slope := decay.Slope(op.state.LockedAmount + amount)
		bias, err := decay.Bias(slope, int64(op.state.LockEndTime-at))
		if err != nil {
			return err
		}
		if err := tx.addSlopeChange(op.state.LockEndTime, new(uint256.Int).Sub(slope, &op.last.Slope)); err != nil {
			return err
		}

		op.state.LockedAmount += amount
		tx.global.TotalLockedAmount += amount
		res, err = op.commit(bias, slope)
		return err
	})
	return res, err
}

// Extend moves the end of account's unexpired lock to lockEndTime, keeping its slope.
func (l *Ledger) Extend(account string, lockEndTime, at uint64) (*MutationResult, error) {
	var res *MutationResult
	err := l.update("extend", account, func(tx *txn) error {
		op, err := tx.openAccount(account, at)
		if err != nil {
			return err
		}
		if !op.state.HasLock() {
			return ErrNothingLocked
		}
		oldEnd := op.state.LockEndTime
		if oldEnd <= at {
			return ErrLockExpired
		}
		if lockEndTime < oldEnd+tx.params.MinExtension ||
			lockEndTime%decay.Week != 0 ||
			lockEndTime > at+decay.MaxLockDuration {
			return fmt.Errorf("%w: %d to %d at %d", ErrInvalidExtension, oldEnd, lockEndTime, at)
		}

		slope := new(uint256.Int).Set(&op.last.Slope)
		bias, err := decay.Bias(slope, int64(lockEndTime-at))
		if err != nil {
			return err
		}
		if err := tx.subSlopeChange(oldEnd, slope); err != nil {
			return err
		}
		if err := tx.addSlopeChange(lockEndTime, slope); err != nil {
			return err
		}

		op.state.LockEndTime = lockEndTime
		res, err = op.commit(bias, slope)
		return err
	})
	return res, err
}

// Withdraw ends account's expired lock. The account keeps its history.
func (l *Ledger) Withdraw(account string, at uint64) (*MutationResult, error) {
	var res *MutationResult
	err := l.update("withdraw", account, func(tx *txn) error {
		op, err := tx.openAccount(account, at)
		if err != nil {
			return err
		}
		if !op.state.HasLock() {
			return ErrNothingLocked
		}
		if at <= op.state.LockEndTime {
			return fmt.Errorf("%w: ends at %d", ErrLockNotExpired, op.state.LockEndTime)
		}

		tx.global.TotalLockedAmount -= op.state.LockedAmount
		op.state.LockedAmount = 0
		op.state.LockEndTime = 0
		res, err = op.commit(0, new(uint256.Int))
		return err
	})
	return res, err
}
