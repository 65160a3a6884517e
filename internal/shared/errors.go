package shared

import "errors"

var (
	// ErrNotFound indicates a missing order, entry, or item reference.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a malformed or out-of-range request.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidPrice indicates a non-positive unit price in a pricing calculation.
	ErrInvalidPrice = errors.New("unit price must be positive")
	// ErrInsufficientDebt indicates a return exceeding the recorded core debt.
	ErrInsufficientDebt = errors.New("return exceeds outstanding core debt")
	// ErrExceedsAvailableDebt indicates a manual pairing requesting more than available.
	ErrExceedsAvailableDebt = errors.New("pairing exceeds available core debt")
	// ErrProductMismatch indicates a link between incompatible products.
	ErrProductMismatch = errors.New("entry item product does not match order item")
	// ErrInvalidStatus indicates a state transition the lifecycle forbids.
	ErrInvalidStatus = errors.New("invalid status transition")
)
