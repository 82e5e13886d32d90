package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/metrics"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

// legalEdges is the swap lifecycle graph. FAILED and EXPIRED are reachable
// from every active state, so a collaborator failure at any step and an
// abandoned swap both end up with a route to refund; from there the only move
// is REFUNDED.
var legalEdges = map[models.SwapState][]models.SwapState{
	models.StateInitiated:          {models.StateSourceExchangeDone, models.StateFailed, models.StateExpired},
	models.StateSourceExchangeDone: {models.StateBridgeSent, models.StateFailed, models.StateExpired},
	models.StateBridgeSent:         {models.StateBridgeConfirmed, models.StateFailed, models.StateExpired},
	models.StateBridgeConfirmed:    {models.StateCompleted, models.StateFailed, models.StateExpired},
	models.StateFailed:             {models.StateRefunded},
	models.StateExpired:            {models.StateRefunded},
	models.StateCompleted:          {},
	models.StateRefunded:           {},
}

// LegalEdge returns whether from -> to is part of the lifecycle graph.
func LegalEdge(from, to models.SwapState) bool {
	for _, next := range legalEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// eventBuffer bounds the transition event channel; the pump should always
// drain faster than swaps transition.
const eventBuffer = 256

// Ledger is the authoritative record of swap lifecycles. It enforces the
// transition graph, timestamps every change, and emits an event per accepted
// transition. All writes go through a per-swap compare-and-swap, so
// concurrent writers never corrupt a record: one of them wins, the others
// observe a benign "already transitioned" result.
type Ledger struct {
	store  Store
	events chan models.SwapEvent
	logger logger.Logger
}

// New creates a ledger on top of the given store.
func New(store Store, log logger.Logger) *Ledger {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Ledger{
		store:  store,
		events: make(chan models.SwapEvent, eventBuffer),
		logger: log,
	}
}

// Events returns the transition event stream. Single consumer; events are
// dropped with an error log if nothing drains the buffer.
func (l *Ledger) Events() <-chan models.SwapEvent {
	return l.events
}

// Create persists a new swap in INITIATED and stamps its timestamps.
func (l *Ledger) Create(ctx context.Context, swap *models.Swap) error {
	if swap == nil {
		return fmt.Errorf("%w: nil swap", ErrInvalidInput)
	}

	now := time.Now().UTC()
	swap.State = models.StateInitiated
	swap.CreatedAt = now
	swap.UpdatedAt = now

	if err := l.store.Insert(ctx, swap); err != nil {
		return fmt.Errorf("create swap: %w", err)
	}

	l.emit(models.SwapEvent{
		SwapID:    swap.ID,
		NewState:  models.StateInitiated,
		Reason:    "swap created",
		Timestamp: now,
	})
	return nil
}

// Get retrieves a swap by ID.
func (l *Ledger) Get(ctx context.Context, id uint64) (*models.Swap, error) {
	return l.store.GetByID(ctx, id)
}

// GetByOwner retrieves every swap created by the owner.
func (l *Ledger) GetByOwner(ctx context.Context, owner common.Address) ([]*models.Swap, error) {
	return l.store.GetByOwner(ctx, owner)
}

// GetByAttestationRef resolves a transfer handle back to its swap.
func (l *Ledger) GetByAttestationRef(ctx context.Context, ref common.Hash) (*models.Swap, error) {
	return l.store.GetByAttestationRef(ctx, ref)
}

// ListByState retrieves all swaps in any of the given states.
func (l *Ledger) ListByState(ctx context.Context, states ...models.SwapState) ([]*models.Swap, error) {
	return l.store.ListByState(ctx, states...)
}

// ListExpired retrieves active swaps whose deadline passed before now.
func (l *Ledger) ListExpired(ctx context.Context, now time.Time) ([]*models.Swap, error) {
	return l.store.ListExpired(ctx, now)
}

// CountByState returns the number of swaps per lifecycle state.
func (l *Ledger) CountByState(ctx context.Context) (map[models.SwapState]int, error) {
	return l.store.CountByState(ctx)
}

// RecordTransition moves the swap to the target state, applying the mutation
// atomically with the state change.
//
// The call is idempotent under at-least-once delivery: a repeat with the
// swap's current state is a silent no-op, and losing the compare-and-swap to
// a concurrent writer returns (false, nil) so the loser can discard its work.
// Only edges outside the lifecycle graph are errors.
func (l *Ledger) RecordTransition(ctx context.Context, id uint64, to models.SwapState, reason string, mut *Mutation) (bool, error) {
	swap, err := l.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	if swap.State == to {
		l.logger.Debug("swap %d already in %s, transition is a no-op", id, to)
		return false, nil
	}
	if !LegalEdge(swap.State, to) {
		return false, fmt.Errorf("%w: %s -> %s for swap %d", ErrInvalidTransition, swap.State, to, id)
	}
	if err := validateMutation(swap, to, mut); err != nil {
		return false, err
	}

	now := time.Now().UTC()
	applied, err := l.store.UpdateState(ctx, id, swap.State, to, mut, now)
	if err != nil {
		return false, fmt.Errorf("record transition for swap %d: %w", id, err)
	}
	if !applied {
		// Lost the race to a concurrent writer. The winner already
		// recorded a legal transition, so there is nothing to repair.
		l.logger.Debug("swap %d moved away from %s concurrently, discarding %s", id, swap.State, to)
		return false, nil
	}

	metrics.StateTransitions.WithLabelValues(string(to)).Inc()
	l.emit(models.SwapEvent{
		SwapID:    id,
		OldState:  swap.State,
		NewState:  to,
		Reason:    reason,
		Timestamp: now,
	})
	return true, nil
}

// validateMutation enforces the field-write rules: outputAmount only on a
// terminal transition, failureReason only when entering FAILED, and the
// attestation ref set at most once.
func validateMutation(swap *models.Swap, to models.SwapState, mut *Mutation) error {
	if mut == nil {
		return nil
	}
	if mut.OutputAmount != nil && to != models.StateCompleted && to != models.StateRefunded {
		return fmt.Errorf("%w: output amount is only set on a terminal transition, got %s", ErrInvalidInput, to)
	}
	if mut.FailureReason != "" && to != models.StateFailed {
		return fmt.Errorf("%w: failure reason is only set when entering FAILED, got %s", ErrInvalidInput, to)
	}
	if mut.AttestationRef != nil && swap.HasAttestationRef() && *mut.AttestationRef != swap.AttestationRef {
		return fmt.Errorf("%w: swap %d is already bound to %s", ErrDuplicateRef, swap.ID, swap.AttestationRef.Hex())
	}
	return nil
}

func (l *Ledger) emit(ev models.SwapEvent) {
	select {
	case l.events <- ev:
	default:
		l.logger.Error("event buffer full, dropping %s -> %s for swap %d", ev.OldState, ev.NewState, ev.SwapID)
	}
}
