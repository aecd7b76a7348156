package ledger

import "ve-ledger/decay"

// Params are the protocol limits of the ledger.
type Params struct {
	MinLockAmount          uint64
	MinLockAmountIncrement uint64
	MinLockDuration        uint64
	MinExtension           uint64

	// MaxBoundariesPerOperation caps the week boundaries a mutation crosses inline.
	MaxBoundariesPerOperation int
	// MaxBoundariesPerMaintain caps the week boundaries one Maintain call processes.
	MaxBoundariesPerMaintain int
}

// DefaultParams returns the production limits.
func DefaultParams() Params {
	return Params{
		MinLockAmount:             10_000_000,
		MinLockAmountIncrement:    10_000_000,
		MinLockDuration:           4 * decay.Week,
		MinExtension:              decay.Week,
		MaxBoundariesPerOperation: 8,
		MaxBoundariesPerMaintain:  52,
	}
}
