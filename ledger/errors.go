package ledger

import (
	"errors"

	"ve-ledger/decay"
)

// Category groups ledger errors by how a caller recovers from them.
type Category int

const (
	// Unknown errors come from storage or encoding and are not caused by the request.
	Unknown Category = iota
	// Precondition errors are fixed by retrying with corrected inputs.
	Precondition
	// Integrity errors are fixed by recomputing index hints from current state.
	Integrity
	// NotFound errors name an account or ledger that does not exist.
	NotFound
)

func (c Category) String() string {
	switch c {
	case Precondition:
		return "precondition"
	case Integrity:
		return "integrity"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type ledgerError struct {
	msg string
	cat Category
}

func (e *ledgerError) Error() string { return e.msg }

func precondition(msg string) error { return &ledgerError{msg: msg, cat: Precondition} }
func integrity(msg string) error    { return &ledgerError{msg: msg, cat: Integrity} }
func notFound(msg string) error     { return &ledgerError{msg: msg, cat: NotFound} }

var (
	ErrAlreadyLocked      = precondition("account already has a lock")
	ErrNothingLocked      = precondition("account has nothing locked")
	ErrLockNotExpired     = precondition("lock has not expired")
	ErrLockExpired        = precondition("lock has expired")
	ErrBelowMinimumAmount = precondition("amount below protocol minimum")
	ErrInvalidLockTime    = precondition("invalid lock end time")
	ErrInvalidExtension   = precondition("invalid lock extension")
	ErrStaleTimestamp     = precondition("timestamp precedes ledger history")
	ErrCatchUpRequired    = precondition("too many week boundaries pending, run maintenance first")
	ErrInvalidDeletion    = precondition("invalid deletion request")
	ErrAlreadyInitialized = precondition("ledger already initialized")
	ErrInvalidIndexHint   = integrity("index hint does not bracket the requested time")
	ErrCheckpointPurged   = integrity("checkpoint has been purged")
	ErrNotInitialized     = notFound("ledger not initialized")
	ErrAccountNotFound    = notFound("account not found")
	ErrNegativeDuration   = decay.ErrNegativeDuration
)

// CategoryOf classifies err. Wrapped errors are unwrapped.
func CategoryOf(err error) Category {
	var le *ledgerError
	if errors.As(err, &le) {
		return le.cat
	}
	if errors.Is(err, decay.ErrNegativeDuration) {
		return Integrity
	}
	return Unknown
}
