package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

// Mutation carries the field writes a store applies atomically with a state
// change. Nil pointer fields and the empty reason string mean "leave as is".
type Mutation struct {
	IntermediateAmount *big.Int
	OutputAmount       *big.Int
	AttestationRef     *common.Hash
	FailureReason      string
}

// Store provides access to swap storage. Swaps are never deleted; the full
// history stays queryable as the audit trail.
type Store interface {
	// Insert persists a new swap and assigns its ID. IDs are monotonic
	// and never reused.
	Insert(ctx context.Context, swap *models.Swap) error

	// GetByID retrieves a swap by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uint64) (*models.Swap, error)

	// GetByOwner retrieves all swaps created by owner, ordered by ID ASC.
	GetByOwner(ctx context.Context, owner common.Address) ([]*models.Swap, error)

	// GetByAttestationRef retrieves the swap bound to a transfer handle.
	// Returns ErrNotFound if not exists.
	GetByAttestationRef(ctx context.Context, ref common.Hash) (*models.Swap, error)

	// ListByState retrieves all swaps in any of the given states, ordered by ID ASC.
	ListByState(ctx context.Context, states ...models.SwapState) ([]*models.Swap, error)

	// ListExpired retrieves active swaps whose deadline passed before now,
	// ordered by ID ASC.
	ListExpired(ctx context.Context, now time.Time) ([]*models.Swap, error)

	// CountByState returns the number of swaps currently in each state.
	CountByState(ctx context.Context) (map[models.SwapState]int, error)

	// UpdateState applies the transition from -> to for the swap, together
	// with the mutation, only if the stored state still equals from. Returns
	// false with a nil error when the pre-state no longer matches. Returns
	// ErrDuplicateRef if the mutation binds an attestation ref already held
	// by another swap.
	UpdateState(ctx context.Context, id uint64, from, to models.SwapState, mut *Mutation, updatedAt time.Time) (bool, error)

	// Close releases the store's resources.
	Close()
}
