package models

// AccountState is the aggregate record kept per account.
// Checkpoints with index in [DeletedPowerCount, PowerCount) are retained.
type AccountState struct {
	LockedAmount      uint64 `json:"locked_amount"`       // 0 when nothing is locked
	LockEndTime       uint64 `json:"lock_end_time"`       // unix seconds, 0 when nothing is locked
	PowerCount        uint64 `json:"power_count"`         // checkpoints ever appended
	DeletedPowerCount uint64 `json:"deleted_power_count"` // oldest checkpoints already purged
}

// HasLock reports whether the account holds a lock, expired or not.
func (a *AccountState) HasLock() bool {
	return a.LockedAmount != 0
}

// Retained returns the number of checkpoints still stored.
func (a *AccountState) Retained() uint64 {
	return a.PowerCount - a.DeletedPowerCount
}
