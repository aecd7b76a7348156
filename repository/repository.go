package repository

import (
	"encoding/binary"
	"errors"

	"ve-ledger/db"
	"ve-ledger/models"
)

// Params sizes pages and prices storage bonds.
type Params struct {
	PageCapacity uint64 // checkpoints per page
	BondBase     uint64 // flat bond per stored record
	BondPerByte  uint64 // bond per byte of key plus value
}

// DefaultParams returns 22-checkpoint pages with a 2500 + 400/byte bond.
func DefaultParams() Params {
	return Params{PageCapacity: 22, BondBase: 2500, BondPerByte: 400}
}

// PageSize returns the encoded size of one page.
func (p Params) PageSize() uint64 {
	return p.PageCapacity * CheckpointSize
}

// Locate maps a checkpoint index to its page and slot.
func (p Params) Locate(index uint64) (page, slot uint64) {
	return index / p.PageCapacity, index % p.PageCapacity
}

// Bond returns the bond for a record with the given key and value sizes.
func (p Params) Bond(keyLen, valueLen uint64) uint64 {
	return p.BondBase + p.BondPerByte*(keyLen+valueLen)
}

// AccountPageBond returns the bond posted for one account power page.
func (p Params) AccountPageBond(account string) uint64 {
	return p.Bond(uint64(len(accountPowerPageKey(account, 0))), p.PageSize())
}

// TotalPageBond returns the bond posted for one total power page.
func (p Params) TotalPageBond() uint64 {
	return p.Bond(uint64(len(totalPowerPageKey(0))), p.PageSize())
}

// Repository opens stores over the ledger database.
type Repository struct {
	db     *db.LevelDB
	params Params
}

// NewRepository creates and returns a new Repository instance
func NewRepository(ldb *db.LevelDB, params Params) *Repository {
	return &Repository{db: ldb, params: params}
}

// Params returns the page and bond parameters.
func (r *Repository) Params() Params {
	return r.params
}

// Begin opens a store whose new records are bonded by payer.
// The caller must Commit or Discard it.
func (r *Repository) Begin(payer string) (*Store, error) {
	cs, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	return &Store{cs: cs, params: r.params, payer: payer}, nil
}

// View runs fn against a read-only store and discards it afterwards.
func (r *Repository) View(fn func(*Store) error) error {
	st, err := r.Begin("")
	if err != nil {
		return err
	}
	defer st.Discard()
	return fn(st)
}

// Update runs fn and commits its writes only if it returns nil.
func (r *Repository) Update(payer string, fn func(*Store) error) error {
	st, err := r.Begin(payer)
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		st.Discard()
		return err
	}
	return st.Commit()
}

// SlopeChanges lists committed non-zero slope changes for weeks in [from, to].
func (r *Repository) SlopeChanges(from, to uint64) ([]models.SlopeChange, error) {
	iter := r.db.NewIterator([]byte{kSlopeChange})
	defer iter.Release()

	var out []models.SlopeChange
	for ok := iter.Seek(slopeChangeKey(from)); ok; ok = iter.Next() {
		key := iter.Key()
		if len(key) != 9 {
			return nil, errors.New("malformed slope change key")
		}
		week := binary.BigEndian.Uint64(key[1:])
		if week > to {
			break
		}
		sc := models.SlopeChange{Week: week, SlopeDelta: getU128(iter.Value())}
		if sc.SlopeDelta.IsZero() {
			continue
		}
		out = append(out, sc)
	}
	return out, iter.Error()
}
