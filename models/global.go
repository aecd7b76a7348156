package models

import (
	"encoding/json"

	"github.com/holiman/uint256"
)

// GlobalLedgerState is owned by the total power ledger.
type GlobalLedgerState struct {
	TotalLockedAmount       uint64 `json:"total_locked_amount"`
	TotalPowerCount         uint64 `json:"total_power_count"`
	LastTotalPowerTimestamp uint64 `json:"last_total_power_timestamp"`
	CreationTimestamp       uint64 `json:"creation_timestamp"`
}

// SlopeChange is the slope that leaves the total when the week starting at Week begins.
type SlopeChange struct {
	Week       uint64
	SlopeDelta uint256.Int // 128-bit
}

// MarshalJSON renders the slope delta as a decimal string.
func (s SlopeChange) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"week":        s.Week,
		"slope_delta": s.SlopeDelta.Dec(),
	})
}

// BondAccount tallies storage bonds posted and refunded by one payer.
type BondAccount struct {
	Charged  uint64 `json:"charged"`
	Refunded uint64 `json:"refunded"`
}
