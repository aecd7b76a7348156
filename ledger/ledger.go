// Package ledger tracks time-weighted voting power of locked tokens.
//
// Each account owns an append-only history of power checkpoints. A single total history
// holds the sum over all accounts; it is maintained from per-operation deltas and a
// schedule of slope changes keyed by the week in which locks expire, so it never
// iterates accounts. Every operation runs in one repository store and commits
// atomically, and operations are serialised by the ledger mutex.
package ledger

import (
	"errors"
	"fmt"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"ve-ledger/logger"
	"ve-ledger/metrics"
	"ve-ledger/models"
	"ve-ledger/repository"
)

// Ledger is the vote-escrow power ledger.
type Ledger struct {
	repo    *repository.Repository
	params  Params
	metrics *metrics.Metrics
	mu      deadlock.Mutex
}

// NewLedger returns a ledger over repo. m may be nil.
func NewLedger(repo *repository.Repository, params Params, m *metrics.Metrics) *Ledger {
	return &Ledger{repo: repo, params: params, metrics: m}
}

// Params returns the protocol limits.
func (l *Ledger) Params() Params {
	return l.params
}

// MutationResult reports the outcome of a lock operation.
type MutationResult struct {
	Account           models.AccountState `json:"account"`
	BoundariesCrossed int                 `json:"boundaries_crossed"`
	TotalPowerCount   uint64              `json:"total_power_count"`
	BondCharged       uint64              `json:"bond_charged"`
}

// DeletionResult reports the outcome of a purge.
type DeletionResult struct {
	Account      models.AccountState `json:"account"`
	BondRefunded uint64              `json:"bond_refunded"`
}

// txn carries the state of one operation. Nothing it writes is visible until commit.
type txn struct {
	st     *repository.Store
	global *models.GlobalLedgerState
	params Params

	accountCheckpoints int
	totalCheckpoints   int
	boundaries         int
}

// update runs fn in a new transaction bonded by payer and commits it if fn succeeds.
func (l *Ledger) update(op, payer string, fn func(tx *txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, err := l.repo.Begin(payer)
	if err != nil {
		return err
	}
	tx := &txn{st: st, params: l.params}

	err = l.run(tx, fn)
	if err == nil {
		err = st.Commit()
	} else {
		st.Discard()
	}
	l.metrics.Observe(op, err)
	if err != nil {
		logger.Logger.Debug("Ledger operation rejected",
			zap.String("op", op), zap.String("payer", payer), zap.Error(err))
		return err
	}

	l.metrics.Committed(tx.accountCheckpoints, tx.totalCheckpoints, tx.boundaries,
		st.Charged(), st.Refunded(), tx.global.TotalLockedAmount)
	logger.Logger.Debug("Ledger operation committed",
		zap.String("op", op),
		zap.String("payer", payer),
		zap.Int("account_checkpoints", tx.accountCheckpoints),
		zap.Int("total_checkpoints", tx.totalCheckpoints),
		zap.Uint64("bond_charged", st.Charged()),
		zap.Uint64("bond_refunded", st.Refunded()))
	return nil
}

func (l *Ledger) run(tx *txn, fn func(tx *txn) error) error {
	g, err := tx.st.GlobalState()
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotInitialized
	}
	if err != nil {
		return err
	}
	tx.global = g
	if err := fn(tx); err != nil {
		return err
	}
	return tx.st.PutGlobalState(tx.global)
}

// view runs fn against committed state.
func (l *Ledger) view(fn func(tx *txn) error) error {
	return l.repo.View(func(st *repository.Store) error {
		g, err := st.GlobalState()
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotInitialized
		}
		if err != nil {
			return err
		}
		return fn(&txn{st: st, global: g, params: l.params})
	})
}

// Init creates the global state and the first, empty total checkpoint at now.
func (l *Ledger) Init(caller string, now uint64) (*models.GlobalLedgerState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out *models.GlobalLedgerState
	err := l.repo.Update(caller, func(st *repository.Store) error {
		_, err := st.GlobalState()
		if err == nil {
			return ErrAlreadyInitialized
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if err := st.PutTotalCheckpoint(0, &models.PowerCheckpoint{Timestamp: now}); err != nil {
			return err
		}
		out = &models.GlobalLedgerState{
			TotalPowerCount:         1,
			LastTotalPowerTimestamp: now,
			CreationTimestamp:       now,
		}
		return st.PutGlobalState(out)
	})
	l.metrics.Observe("init", err)
	if err != nil {
		return nil, err
	}
	logger.Logger.Info("Ledger initialized", zap.Uint64("creation_timestamp", now))
	return out, nil
}

// Initialized reports whether Init has run.
func (l *Ledger) Initialized() (bool, error) {
	err := l.view(func(*txn) error { return nil })
	if errors.Is(err, ErrNotInitialized) {
		return false, nil
	}
	return err == nil, err
}

// GlobalState returns the committed global ledger record.
func (l *Ledger) GlobalState() (*models.GlobalLedgerState, error) {
	var out *models.GlobalLedgerState
	err := l.view(func(tx *txn) error {
		out = tx.global
		return nil
	})
	return out, err
}

// AccountState returns the committed state of account.
func (l *Ledger) AccountState(account string) (*models.AccountState, error) {
	var out *models.AccountState
	err := l.view(func(tx *txn) error {
		a, err := tx.st.AccountState(account)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, account)
		}
		out = a
		return err
	})
	return out, err
}

// SlopeChange returns the slope scheduled to leave the total at week.
func (l *Ledger) SlopeChange(week uint64) (*models.SlopeChange, error) {
	var out *models.SlopeChange
	err := l.view(func(tx *txn) error {
		sc, err := tx.st.SlopeChange(week)
		if err != nil {
			return err
		}
		out = &models.SlopeChange{Week: week, SlopeDelta: *sc}
		return nil
	})
	return out, err
}

// SlopeChanges lists the non-zero slope changes scheduled in [from, to].
func (l *Ledger) SlopeChanges(from, to uint64) ([]models.SlopeChange, error) {
	return l.repo.SlopeChanges(from, to)
}

// BondAccount returns the bond tally of payer.
func (l *Ledger) BondAccount(payer string) (*models.BondAccount, error) {
	var out *models.BondAccount
	err := l.repo.View(func(st *repository.Store) error {
		b, err := st.BondAccount(payer)
		out = b
		return err
	})
	return out, err
}
