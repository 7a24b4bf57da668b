package ledger

import "errors"

// Validation failures: rejected before any mutation, retryable with
// corrected input.
var (
	ErrNonPositiveAmount      = errors.New("amount must be positive")
	ErrInvalidDirection       = errors.New("direction must be FROM_CLIENT or TO_CLIENT")
	ErrInvalidOverrideBalance = errors.New("override balance must not be negative")
	ErrInvalidPercentage      = errors.New("share percentage must be between 0 and 100")
)

// Invariant violations: the requested mutation would break the ledger's
// guarantees. Nothing is persisted.
var (
	ErrOverpayment       = errors.New("paid amount exceeds remaining settlement amount")
	ErrFlatPnl           = errors.New("nothing to settle on a flat account")
	ErrZeroMaskedCapital = errors.New("payment resolves to zero masked capital")
	ErrNegativeFunding   = errors.New("operation would drive funding negative")
	ErrNegativeBalance   = errors.New("operation would drive exchange balance negative")
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// IsValidation reports whether err is a pre-mutation input rejection.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrInvalidDirection) ||
		errors.Is(err, ErrInvalidOverrideBalance) ||
		errors.Is(err, ErrInvalidPercentage)
}

// IsInvariant reports whether err is an all-or-nothing invariant
// rejection.
func IsInvariant(err error) bool {
	return errors.Is(err, ErrOverpayment) ||
		errors.Is(err, ErrFlatPnl) ||
		errors.Is(err, ErrZeroMaskedCapital) ||
		errors.Is(err, ErrNegativeFunding) ||
		errors.Is(err, ErrNegativeBalance)
}
