package repositories

import "errors"

var (
	// ErrRecordNotFound is returned when a looked-up row does not exist.
	// During delivery finalization it aborts the transaction; during
	// cancel-time restoration it is skipped.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInsufficientStock is returned when a deduction asks for more than
	// the locked inventory row holds. It aborts the whole transaction.
	ErrInsufficientStock = errors.New("insufficient stock")
)
