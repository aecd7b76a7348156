package repository

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"ve-ledger/db"
	"ve-ledger/models"
)

var (
	// ErrNotFound is returned when a record or page does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNoPayer is returned when a read-only store is asked to create a bonded record.
	ErrNoPayer = errors.New("store has no payer for storage bonds")
)

// Store is a typed view over one change set. Every write it makes lands in a single
// atomic commit. New records are bonded by the store's payer and deleted records refund
// the same payer; Charged and Refunded report the totals for this store.
type Store struct {
	cs       *db.ChangeSet
	params   Params
	payer    string
	charged  uint64
	refunded uint64
}

// Commit applies every write made through the store.
func (s *Store) Commit() error {
	return s.cs.Commit()
}

// Discard drops every write made through the store.
func (s *Store) Discard() {
	s.cs.Discard()
}

// Params returns the page and bond parameters.
func (s *Store) Params() Params {
	return s.params
}

// Charged returns the bond posted by this store's payer so far.
func (s *Store) Charged() uint64 {
	return s.charged
}

// Refunded returns the bond returned to this store's payer so far.
func (s *Store) Refunded() uint64 {
	return s.refunded
}

func (s *Store) get(key []byte) ([]byte, error) {
	v, err := s.cs.Get(key)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

// create writes a record that did not exist before and posts its bond.
func (s *Store) create(key, value []byte) error {
	if s.payer == "" {
		return ErrNoPayer
	}
	bond := s.params.Bond(uint64(len(key)), uint64(len(value)))
	if err := s.adjustBond(bond, 0); err != nil {
		return err
	}
	s.charged += bond
	return s.cs.Put(key, value)
}

// remove deletes a bonded record and refunds its bond.
func (s *Store) remove(key []byte, valueLen uint64) error {
	if s.payer == "" {
		return ErrNoPayer
	}
	bond := s.params.Bond(uint64(len(key)), valueLen)
	if err := s.adjustBond(0, bond); err != nil {
		return err
	}
	s.refunded += bond
	return s.cs.Delete(key)
}

// upsert writes a record, bonding it if it is new.
func (s *Store) upsert(key, value []byte) error {
	ok, err := s.cs.Has(key)
	if err != nil {
		return err
	}
	if !ok {
		return s.create(key, value)
	}
	return s.cs.Put(key, value)
}

func (s *Store) adjustBond(charged, refunded uint64) error {
	acct, err := s.BondAccount(s.payer)
	if err != nil {
		return err
	}
	acct.Charged += charged
	acct.Refunded += refunded
	return s.cs.Put(bondAccountKey(s.payer), encodeBondAccount(acct))
}

// BondAccount returns the bond tally of payer. Unknown payers have an empty tally.
func (s *Store) BondAccount(payer string) (*models.BondAccount, error) {
	v, err := s.get(bondAccountKey(payer))
	if errors.Is(err, ErrNotFound) {
		return &models.BondAccount{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeBondAccount(v)
}

// GlobalState returns the global ledger record, or ErrNotFound before initialisation.
func (s *Store) GlobalState() (*models.GlobalLedgerState, error) {
	v, err := s.get(globalKey())
	if err != nil {
		return nil, err
	}
	return decodeGlobalState(v)
}

// PutGlobalState stores the global ledger record.
func (s *Store) PutGlobalState(g *models.GlobalLedgerState) error {
	return s.upsert(globalKey(), encodeGlobalState(g))
}

// AccountState returns the state of account, or ErrNotFound.
func (s *Store) AccountState(account string) (*models.AccountState, error) {
	v, err := s.get(accountStateKey(account))
	if err != nil {
		return nil, err
	}
	return decodeAccountState(v)
}

// PutAccountState stores the state of account.
func (s *Store) PutAccountState(account string, a *models.AccountState) error {
	return s.upsert(accountStateKey(account), encodeAccountState(a))
}

// DeleteAccountState removes the state of account.
func (s *Store) DeleteAccountState(account string) error {
	key := accountStateKey(account)
	ok, err := s.cs.Has(key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return s.remove(key, AccountStateSize)
}

// AccountCheckpoint reads checkpoint index of account. A missing page yields ErrNotFound.
func (s *Store) AccountCheckpoint(account string, index uint64) (*models.PowerCheckpoint, error) {
	page, slot := s.params.Locate(index)
	return s.readSlot(accountPowerPageKey(account, page), slot)
}

// PutAccountCheckpoint writes checkpoint index of account, allocating its page on first use.
func (s *Store) PutAccountCheckpoint(account string, index uint64, cp *models.PowerCheckpoint) error {
	page, slot := s.params.Locate(index)
	return s.writeSlot(accountPowerPageKey(account, page), slot, cp)
}

// DeleteAccountPage removes one power page of account.
func (s *Store) DeleteAccountPage(account string, page uint64) error {
	key := accountPowerPageKey(account, page)
	ok, err := s.cs.Has(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("account %q page %d: %w", account, page, ErrNotFound)
	}
	return s.remove(key, s.params.PageSize())
}

// TotalCheckpoint reads checkpoint index of the total power ledger.
func (s *Store) TotalCheckpoint(index uint64) (*models.PowerCheckpoint, error) {
	page, slot := s.params.Locate(index)
	return s.readSlot(totalPowerPageKey(page), slot)
}

// PutTotalCheckpoint writes checkpoint index of the total power ledger.
func (s *Store) PutTotalCheckpoint(index uint64, cp *models.PowerCheckpoint) error {
	page, slot := s.params.Locate(index)
	return s.writeSlot(totalPowerPageKey(page), slot, cp)
}

// SlopeChange returns the slope scheduled to expire at week, zero when none is.
func (s *Store) SlopeChange(week uint64) (*uint256.Int, error) {
	v, err := s.get(slopeChangeKey(week))
	if errors.Is(err, ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	sc := getU128(v)
	return &sc, nil
}

// PutSlopeChange stores the slope scheduled to expire at week. Zeroed entries are kept.
func (s *Store) PutSlopeChange(week uint64, delta *uint256.Int) error {
	b := make([]byte, SlopeChangeSize)
	if err := putU128(b, delta); err != nil {
		return fmt.Errorf("slope change %d: %w", week, err)
	}
	return s.upsert(slopeChangeKey(week), b)
}

func (s *Store) readSlot(key []byte, slot uint64) (*models.PowerCheckpoint, error) {
	page, err := s.get(key)
	if err != nil {
		return nil, err
	}
	if uint64(len(page)) != s.params.PageSize() {
		return nil, fmt.Errorf("page: want %d bytes, got %d", s.params.PageSize(), len(page))
	}
	off := slot * CheckpointSize
	return decodeCheckpoint(page[off : off+CheckpointSize]), nil
}

func (s *Store) writeSlot(key []byte, slot uint64, cp *models.PowerCheckpoint) error {
	cur, err := s.get(key)
	isNew := errors.Is(err, ErrNotFound)
	if err != nil && !isNew {
		return err
	}

	page := make([]byte, s.params.PageSize())
	if !isNew {
		copy(page, cur)
	}
	off := slot * CheckpointSize
	if err := encodeCheckpoint(page[off:off+CheckpointSize], cp); err != nil {
		return err
	}
	if isNew {
		return s.create(key, page)
	}
	return s.cs.Put(key, page)
}
