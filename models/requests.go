package models

// LockRequest creates a lock. Timestamp defaults to the server clock.
type LockRequest struct {
	Amount      uint64 `json:"amount"`
	LockEndTime uint64 `json:"lock_end_time"`
	Timestamp   uint64 `json:"timestamp,omitempty"`
}

// TopUpRequest adds Amount to an existing lock.
type TopUpRequest struct {
	Amount    uint64 `json:"amount"`
	Timestamp uint64 `json:"timestamp,omitempty"`
}

// ExtendRequest moves a lock's end time.
type ExtendRequest struct {
	LockEndTime uint64 `json:"lock_end_time"`
	Timestamp   uint64 `json:"timestamp,omitempty"`
}

// TimestampRequest carries only a time, for withdraw.
type TimestampRequest struct {
	Timestamp uint64 `json:"timestamp,omitempty"`
}

// CallerRequest runs init or catch-up on behalf of Caller, who bonds any new storage.
type CallerRequest struct {
	Caller    string `json:"caller"`
	Timestamp uint64 `json:"timestamp,omitempty"`
}

// DeletePagesRequest purges the oldest power pages of an account.
type DeletePagesRequest struct {
	Caller string `json:"caller"`
	Start  uint64 `json:"start"`
	Count  uint64 `json:"count"`
}

// DeleteAccountRequest removes a withdrawn account's state.
type DeleteAccountRequest struct {
	Caller string `json:"caller"`
}
