package models

import (
	"encoding/json"

	"github.com/holiman/uint256"
)

// PowerCheckpoint is one entry of an account's or the total power history.
type PowerCheckpoint struct {
	Bias            uint64
	Timestamp       uint64
	Slope           uint256.Int // 128-bit
	CumulativePower uint256.Int // 128-bit
}

type checkpointJSON struct {
	Bias            uint64 `json:"bias"`
	Timestamp       uint64 `json:"timestamp"`
	Slope           string `json:"slope"`
	CumulativePower string `json:"cumulative_power"`
}

// MarshalJSON renders the 128-bit fields as decimal strings.
func (c PowerCheckpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(checkpointJSON{
		Bias:            c.Bias,
		Timestamp:       c.Timestamp,
		Slope:           c.Slope.Dec(),
		CumulativePower: c.CumulativePower.Dec(),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *PowerCheckpoint) UnmarshalJSON(b []byte) error {
	var raw checkpointJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	slope, err := uint256.FromDecimal(raw.Slope)
	if err != nil {
		return err
	}
	cumulative, err := uint256.FromDecimal(raw.CumulativePower)
	if err != nil {
		return err
	}
	c.Bias = raw.Bias
	c.Timestamp = raw.Timestamp
	c.Slope = *slope
	c.CumulativePower = *cumulative
	return nil
}
