package saga

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest rejects a swap request that fails validation before
	// anything is written to the ledger.
	ErrInvalidRequest = errors.New("invalid swap request")

	// ErrTransferStranded reports a bridge send where funds left custody but
	// no usable transfer handle came back. The executor reclaims the
	// transfer before failing the swap.
	ErrTransferStranded = errors.New("bridge transfer stranded without handle")
)

// CollaboratorError is a definitive rejection from an external collaborator:
// the venue refused the trade, the relayer refused the burn, or the
// destination call reverted. The executor converts it into a FAILED
// transition. Transport-level errors are never wrapped in CollaboratorError
// so they stay retryable.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
