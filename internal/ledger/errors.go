package ledger

import "fmt"

// ValidationError rejects a malformed mutation before anything is written.
type ValidationError struct {
	Message string // Human-readable rejection reason.
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// newValidationError builds a ValidationError from a format string.
func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError rejects a deduction exceeding the live balance.
type InsufficientBalanceError struct {
	UserID    uint64 // Affected user.
	Requested int64  // Amount the caller tried to deduct.
	Available int64  // Balance at the time of the attempt.
}

func (e *InsufficientBalanceError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("insufficient balance: requested %d, available %d (user=%d)", e.Requested, e.Available, e.UserID)
}

// NotFoundError reports a missing record where existence is required.
type NotFoundError struct {
	Resource string // Record kind, e.g. "order".
	ID       uint64 // Identifier that failed to resolve.
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s not found: %d", e.Resource, e.ID)
}
