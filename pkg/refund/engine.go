package refund

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/metrics"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

var (
	// ErrRefundIneligible rejects a refund for a swap that is not in a
	// refundable state.
	ErrRefundIneligible = errors.New("swap is not refundable")

	// ErrRefundUnsupported marks a swap whose funds moved past the point
	// this engine can return them. An operator has to settle it.
	ErrRefundUnsupported = errors.New("refund path not supported for this swap")

	// ErrNotOwner rejects a refund requested by anyone but the swap owner.
	ErrNotOwner = errors.New("caller does not own this swap")
)

// Quote kinds: a full refund returns the entire input, a net refund deducts
// the protocol fee because custody already paid for an exchange.
const (
	KindFull = "full"
	KindNet  = "net"
)

// Quote is the refund entitlement for one swap.
type Quote struct {
	Amount *big.Int
	Fee    *big.Int
	Kind   string
}

// Engine settles refunds for failed and expired swaps. It owns the
// eligibility rules, the fee math, and the running totals owed to the fee
// collector.
type Engine struct {
	ledger       *ledger.Ledger
	feeRateBps   int64
	gracePeriod  time.Duration
	feeCollector common.Address
	logger       logger.Logger

	mu            sync.Mutex
	refundedTotal *big.Int
	feeTotal      *big.Int
}

func NewEngine(l *ledger.Ledger, feeRateBps int64, gracePeriod time.Duration, feeCollector common.Address, log logger.Logger) *Engine {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Engine{
		ledger:        l,
		feeRateBps:    feeRateBps,
		gracePeriod:   gracePeriod,
		feeCollector:  feeCollector,
		logger:        log,
		refundedTotal: new(big.Int),
		feeTotal:      new(big.Int),
	}
}

// Refundable reports whether the swap can be refunded at time now. A nil
// error means it can; otherwise the error says why not.
//
// FAILED and EXPIRED swaps are always candidates, as is any swap past its
// deadline whether or not the reconciler has swept it yet. An INITIATED swap
// the system never started on becomes refundable a grace period after
// creation, so an owner can bail out without waiting for a distant deadline.
// A reverse-direction swap that already exchanged is beyond this engine: the
// intermediate asset sits on the far side of the bridge.
func (e *Engine) Refundable(swap *models.Swap, now time.Time) error {
	if swap.State.Terminal() {
		return fmt.Errorf("%w: swap %d is already %s", ErrRefundIneligible, swap.ID, swap.State)
	}

	switch {
	case swap.State == models.StateFailed || swap.State == models.StateExpired:
	case swap.Expired(now):
	case swap.State == models.StateInitiated && now.After(swap.CreatedAt.Add(e.gracePeriod)):
	default:
		return fmt.Errorf("%w: swap %d is %s and inside its deadline", ErrRefundIneligible, swap.ID, swap.State)
	}

	if swap.Direction == models.DirectionBToA && swap.IntermediateAmount != nil {
		return fmt.Errorf("%w: %s swap %d already exchanged, needs operator settlement", ErrRefundUnsupported, swap.Direction, swap.ID)
	}
	return nil
}

// ComputeRefund returns the owner's entitlement: the full input when the
// exchange never executed, otherwise the input net of the protocol fee,
// floored in custody's favor.
func (e *Engine) ComputeRefund(swap *models.Swap) *Quote {
	if swap.IntermediateAmount == nil {
		return &Quote{Amount: new(big.Int).Set(swap.InputAmount), Fee: new(big.Int), Kind: KindFull}
	}
	amount := new(big.Int).Mul(swap.InputAmount, big.NewInt(10000-e.feeRateBps))
	amount.Div(amount, big.NewInt(10000))
	fee := new(big.Int).Sub(swap.InputAmount, amount)
	return &Quote{Amount: amount, Fee: fee, Kind: KindNet}
}

// Refund settles a refundable swap: verifies the caller owns it, records the
// REFUNDED transition with the entitlement, and accumulates the fee owed to
// the collector. A still-active swap is expired first so REFUNDED is only
// ever entered from FAILED or EXPIRED.
func (e *Engine) Refund(ctx context.Context, id uint64, caller common.Address) (*Quote, error) {
	swap, err := e.ledger.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load swap %d: %w", id, err)
	}
	if swap.Owner != caller {
		return nil, fmt.Errorf("%w: swap %d belongs to %s", ErrNotOwner, id, swap.Owner.Hex())
	}
	now := time.Now().UTC()
	if err := e.Refundable(swap, now); err != nil {
		if errors.Is(err, ErrRefundUnsupported) {
			metrics.ManualInterventions.Inc()
			e.logger.Error("Swap %d needs operator settlement: %v", id, err)
		}
		return nil, err
	}

	if swap.State.Active() {
		reason := "deadline passed, owner requested refund"
		if !swap.Expired(now) {
			reason = "grace period elapsed, owner requested refund"
		}
		applied, err := e.ledger.RecordTransition(ctx, id, models.StateExpired, reason, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to expire swap %d: %v", id, err)
		}
		if !applied {
			// someone else moved it first; start over from the fresh state
			return e.Refund(ctx, id, caller)
		}
		metrics.ExpiredSwaps.Inc()
	}

	quote := e.ComputeRefund(swap)
	reason := fmt.Sprintf("refunded %s to owner, fee %s", quote.Amount.String(), quote.Fee.String())
	applied, err := e.ledger.RecordTransition(ctx, id, models.StateRefunded, reason, &ledger.Mutation{OutputAmount: quote.Amount})
	if err != nil {
		return nil, fmt.Errorf("failed to record refund for swap %d: %v", id, err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: swap %d was settled concurrently", ErrRefundIneligible, id)
	}

	e.recordTotals(quote)
	metrics.RefundsIssued.WithLabelValues(quote.Kind).Inc()
	if quote.Fee.Sign() > 0 {
		fee, _ := new(big.Float).SetInt(quote.Fee).Float64()
		metrics.RefundFees.Add(fee)
	}
	e.logger.Notice("Swap %d REFUNDED: %s refund of %s to %s, fee %s for %s",
		id, quote.Kind, quote.Amount.String(), swap.Owner.Hex(), quote.Fee.String(), e.feeCollector.Hex())
	return quote, nil
}

// FeeCollector returns the address the accumulated fees are owed to.
func (e *Engine) FeeCollector() common.Address {
	return e.feeCollector
}

// Totals returns the running refunded amount and collected fees.
func (e *Engine) Totals() (refunded, fees *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.refundedTotal), new(big.Int).Set(e.feeTotal)
}

func (e *Engine) recordTotals(q *Quote) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refundedTotal.Add(e.refundedTotal, q.Amount)
	e.feeTotal.Add(e.feeTotal, q.Fee)
}
