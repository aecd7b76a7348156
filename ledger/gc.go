package ledger

import (
	"errors"
	"fmt"

	"ve-ledger/repository"
)

// DeleteAccountPowerPages purges count pages of account's history starting at page start,
// which must be the oldest retained page. The page holding the latest checkpoint is never
// purged. Bonds are refunded to caller. Callers must make sure nothing still needs the
// purged history: later queries that land in it fail with ErrCheckpointPurged.
func (l *Ledger) DeleteAccountPowerPages(caller, account string, start, count uint64) (*DeletionResult, error) {
	var res *DeletionResult
	err := l.update("delete_power_pages", caller, func(tx *txn) error {
		state, err := tx.st.AccountState(account)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, account)
		}
		if err != nil {
			return err
		}

		capacity := tx.st.Params().PageCapacity
		if count == 0 || state.PowerCount == 0 {
			return fmt.Errorf("%w: nothing to delete", ErrInvalidDeletion)
		}
		if first := state.DeletedPowerCount / capacity; start != first {
			return fmt.Errorf("%w: start page %d, oldest retained page %d", ErrInvalidDeletion, start, first)
		}
		if last := (state.PowerCount - 1) / capacity; start+count > last {
			return fmt.Errorf("%w: pages [%d, %d) reach the current page %d", ErrInvalidDeletion, start, start+count, last)
		}

		for p := start; p < start+count; p++ {
			if err := tx.st.DeleteAccountPage(account, p); err != nil {
				return err
			}
		}
		state.DeletedPowerCount = (start + count) * capacity
		if err := tx.st.PutAccountState(account, state); err != nil {
			return err
		}
		res = &DeletionResult{Account: *state, BondRefunded: tx.st.Refunded()}
		return nil
	})
	return res, err
}

// DeleteAccountState removes a withdrawn account: its last power page and its state record.
// Older pages must have been purged with DeleteAccountPowerPages first. Afterwards the
// account reads as one that never locked.
func (l *Ledger) DeleteAccountState(caller, account string) (*DeletionResult, error) {
	var res *DeletionResult
	err := l.update("delete_account", caller, func(tx *txn) error {
		state, err := tx.st.AccountState(account)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, account)
		}
		if err != nil {
			return err
		}
		if state.HasLock() {
			return fmt.Errorf("%w: account still has a lock", ErrInvalidDeletion)
		}

		if state.PowerCount > 0 {
			capacity := tx.st.Params().PageCapacity
			first, last := state.DeletedPowerCount/capacity, (state.PowerCount-1)/capacity
			if first != last {
				return fmt.Errorf("%w: pages [%d, %d) must be deleted first", ErrInvalidDeletion, first, last)
			}
			if err := tx.st.DeleteAccountPage(account, last); err != nil {
				return err
			}
		}
		if err := tx.st.DeleteAccountState(account); err != nil {
			return err
		}
		state.DeletedPowerCount = state.PowerCount
		res = &DeletionResult{Account: *state, BondRefunded: tx.st.Refunded()}
		return nil
	})
	return res, err
}
