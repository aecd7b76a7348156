package repository

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"ve-ledger/decay"
	"ve-ledger/models"
)

// Encoded record sizes in bytes.
const (
	CheckpointSize   = 48
	AccountStateSize = 32
	GlobalStateSize  = 32
	SlopeChangeSize  = 16
	bondAccountSize  = 16
)

func putU128(dst []byte, v *uint256.Int) error {
	if v.BitLen() > 128 {
		return fmt.Errorf("%w: %s exceeds 128 bits", decay.ErrOverflow, v.Dec())
	}
	b := v.Bytes32()
	copy(dst, b[16:])
	return nil
}

func getU128(src []byte) uint256.Int {
	var v uint256.Int
	v.SetBytes(src[:16])
	return v
}

func encodeCheckpoint(dst []byte, cp *models.PowerCheckpoint) error {
	binary.BigEndian.PutUint64(dst[0:], cp.Bias)
	binary.BigEndian.PutUint64(dst[8:], cp.Timestamp)
	if err := putU128(dst[16:], &cp.Slope); err != nil {
		return fmt.Errorf("slope: %w", err)
	}
	if err := putU128(dst[32:], &cp.CumulativePower); err != nil {
		return fmt.Errorf("cumulative power: %w", err)
	}
	return nil
}

func decodeCheckpoint(src []byte) *models.PowerCheckpoint {
	return &models.PowerCheckpoint{
		Bias:            binary.BigEndian.Uint64(src[0:]),
		Timestamp:       binary.BigEndian.Uint64(src[8:]),
		Slope:           getU128(src[16:]),
		CumulativePower: getU128(src[32:]),
	}
}

func encodeAccountState(a *models.AccountState) []byte {
	b := make([]byte, AccountStateSize)
	binary.BigEndian.PutUint64(b[0:], a.LockedAmount)
	binary.BigEndian.PutUint64(b[8:], a.LockEndTime)
	binary.BigEndian.PutUint64(b[16:], a.PowerCount)
	binary.BigEndian.PutUint64(b[24:], a.DeletedPowerCount)
	return b
}

func decodeAccountState(b []byte) (*models.AccountState, error) {
	if len(b) != AccountStateSize {
		return nil, fmt.Errorf("account state: want %d bytes, got %d", AccountStateSize, len(b))
	}
	return &models.AccountState{
		LockedAmount:      binary.BigEndian.Uint64(b[0:]),
		LockEndTime:       binary.BigEndian.Uint64(b[8:]),
		PowerCount:        binary.BigEndian.Uint64(b[16:]),
		DeletedPowerCount: binary.BigEndian.Uint64(b[24:]),
	}, nil
}

func encodeGlobalState(g *models.GlobalLedgerState) []byte {
	b := make([]byte, GlobalStateSize)
	binary.BigEndian.PutUint64(b[0:], g.TotalLockedAmount)
	binary.BigEndian.PutUint64(b[8:], g.TotalPowerCount)
	binary.BigEndian.PutUint64(b[16:], g.LastTotalPowerTimestamp)
	binary.BigEndian.PutUint64(b[24:], g.CreationTimestamp)
	return b
}

func decodeGlobalState(b []byte) (*models.GlobalLedgerState, error) {
	if len(b) != GlobalStateSize {
		return nil, fmt.Errorf("global state: want %d bytes, got %d", GlobalStateSize, len(b))
	}
	return &models.GlobalLedgerState{
		TotalLockedAmount:       binary.BigEndian.Uint64(b[0:]),
		TotalPowerCount:         binary.BigEndian.Uint64(b[8:]),
		LastTotalPowerTimestamp: binary.BigEndian.Uint64(b[16:]),
		CreationTimestamp:       binary.BigEndian.Uint64(b[24:]),
	}, nil
}

func encodeBondAccount(a *models.BondAccount) []byte {
	b := make([]byte, bondAccountSize)
	binary.BigEndian.PutUint64(b[0:], a.Charged)
	binary.BigEndian.PutUint64(b[8:], a.Refunded)
	return b
}

func decodeBondAccount(b []byte) (*models.BondAccount, error) {
	if len(b) != bondAccountSize {
		return nil, fmt.Errorf("bond account: want %d bytes, got %d", bondAccountSize, len(b))
	}
	return &models.BondAccount{
		Charged:  binary.BigEndian.Uint64(b[0:]),
		Refunded: binary.BigEndian.Uint64(b[8:]),
	}, nil
}
