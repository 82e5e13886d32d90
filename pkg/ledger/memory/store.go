package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

// Store is an in-memory implementation of ledger.Store. It is the default
// when no database is configured and the store used by the test suites.
type Store struct {
	mu     sync.RWMutex
	nextID uint64
	swaps  map[uint64]*models.Swap
	byRef  map[common.Hash]uint64
}

// Compile-time interface check.
var _ ledger.Store = (*Store)(nil)

// NewStore creates a new in-memory swap store.
func NewStore() *Store {
	return &Store{
		swaps: make(map[uint64]*models.Swap),
		byRef: make(map[common.Hash]uint64),
	}
}

// Insert adds a new swap and assigns the next monotonic ID.
func (s *Store) Insert(_ context.Context, swap *models.Swap) error {
	if swap == nil || swap.InputAmount == nil {
		return ledger.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	swap.ID = s.nextID
	s.swaps[swap.ID] = swap.Clone()
	return nil
}

// GetByID retrieves a swap by its ID. Returns ErrNotFound if not exists.
func (s *Store) GetByID(_ context.Context, id uint64) (*models.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	swap, exists := s.swaps[id]
	if !exists {
		return nil, ledger.ErrNotFound
	}
	return swap.Clone(), nil
}

// GetByOwner retrieves all swaps created by owner, ordered by ID ASC.
func (s *Store) GetByOwner(_ context.Context, owner common.Address) ([]*models.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Swap
	for _, swap := range s.swaps {
		if swap.Owner == owner {
			result = append(result, swap.Clone())
		}
	}
	sortByID(result)
	return result, nil
}

// GetByAttestationRef retrieves the swap bound to a transfer handle.
func (s *Store) GetByAttestationRef(_ context.Context, ref common.Hash) (*models.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byRef[ref]
	if !exists {
		return nil, ledger.ErrNotFound
	}
	return s.swaps[id].Clone(), nil
}

// ListByState retrieves all swaps in any of the given states, ordered by ID ASC.
func (s *Store) ListByState(_ context.Context, states ...models.SwapState) ([]*models.Swap, error) {
	wanted := make(map[models.SwapState]bool, len(states))
	for _, st := range states {
		wanted[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Swap
	for _, swap := range s.swaps {
		if wanted[swap.State] {
			result = append(result, swap.Clone())
		}
	}
	sortByID(result)
	return result, nil
}

// ListExpired retrieves active swaps whose deadline passed before now, ordered by ID ASC.
func (s *Store) ListExpired(_ context.Context, now time.Time) ([]*models.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Swap
	for _, swap := range s.swaps {
		if swap.State.Active() && swap.Expired(now) {
			result = append(result, swap.Clone())
		}
	}
	sortByID(result)
	return result, nil
}

// CountByState returns the number of swaps currently in each state.
func (s *Store) CountByState(_ context.Context) (map[models.SwapState]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.SwapState]int)
	for _, swap := range s.swaps {
		counts[swap.State]++
	}
	return counts, nil
}

// UpdateState compare-and-swaps the swap's state and applies the mutation.
func (s *Store) UpdateState(_ context.Context, id uint64, from, to models.SwapState, mut *ledger.Mutation, updatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swap, exists := s.swaps[id]
	if !exists {
		return false, ledger.ErrNotFound
	}
	if swap.State != from {
		return false, nil
	}

	if mut != nil && mut.AttestationRef != nil {
		if holder, bound := s.byRef[*mut.AttestationRef]; bound && holder != id {
			return false, ledger.ErrDuplicateRef
		}
	}

	updated := swap.Clone()
	updated.State = to
	updated.UpdatedAt = updatedAt
	applyMutation(updated, mut)

	if mut != nil && mut.AttestationRef != nil {
		s.byRef[*mut.AttestationRef] = id
	}
	s.swaps[id] = updated
	return true, nil
}

// Close releases the store's resources.
func (s *Store) Close() {}

func applyMutation(swap *models.Swap, mut *ledger.Mutation) {
	if mut == nil {
		return
	}
	if mut.IntermediateAmount != nil {
		swap.IntermediateAmount = new(big.Int).Set(mut.IntermediateAmount)
	}
	if mut.OutputAmount != nil {
		swap.OutputAmount = new(big.Int).Set(mut.OutputAmount)
	}
	if mut.AttestationRef != nil {
		swap.AttestationRef = *mut.AttestationRef
	}
	if mut.FailureReason != "" {
		swap.FailureReason = mut.FailureReason
	}
}

func sortByID(swaps []*models.Swap) {
	sort.Slice(swaps, func(i, j int) bool { return swaps[i].ID < swaps[j].ID })
}
