package ledger

import "errors"

// Ledger errors.
var (
	// ErrNotFound is returned when a requested swap does not exist.
	ErrNotFound = errors.New("swap not found")

	// ErrInvalidTransition is returned for a state change outside the
	// lifecycle graph. This is a caller bug, not a user-triggered condition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrDuplicateRef is returned when recording an attestation ref
	// that is already bound to a swap.
	ErrDuplicateRef = errors.New("attestation ref already recorded")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
