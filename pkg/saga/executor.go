package saga

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/domains"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/metrics"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

// Executor drives a swap through its lifecycle one compensatable step at a
// time. Every step re-reads the swap, calls at most one collaborator, and
// records the outcome as a single ledger transition, so a crash between any
// two steps leaves a resumable swap behind.
type Executor struct {
	ledger *ledger.Ledger
	venue  ExchangeVenue
	bridge BridgeRelayer
	dest   DestinationExecutor
	waiter AttestationWaiter
	logger logger.Logger
}

func NewExecutor(l *ledger.Ledger, venue ExchangeVenue, bridge BridgeRelayer, dest DestinationExecutor, waiter AttestationWaiter, log logger.Logger) *Executor {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Executor{
		ledger: l,
		venue:  venue,
		bridge: bridge,
		dest:   dest,
		waiter: waiter,
		logger: log,
	}
}

// CreateParams carries a validated swap request into the ledger.
type CreateParams struct {
	Owner           common.Address
	Direction       models.Direction
	InputAmount     *big.Int
	MinOutputAmount *big.Int
	TargetAddress   string
	TargetDomain    uint32
	Deadline        time.Time
}

// Create validates the request and records the swap in INITIATED. Nothing is
// written on a validation failure.
func (e *Executor) Create(ctx context.Context, p CreateParams) (*models.Swap, error) {
	if !p.Direction.Valid() {
		return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidRequest, p.Direction)
	}
	if p.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner address is zero", ErrInvalidRequest)
	}
	if p.InputAmount == nil || p.InputAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: input amount must be positive", ErrInvalidRequest)
	}
	if p.MinOutputAmount == nil || p.MinOutputAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: min output amount must be positive", ErrInvalidRequest)
	}
	if !p.Deadline.After(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: deadline %s is not in the future", ErrInvalidRequest, p.Deadline.UTC().Format(time.RFC3339))
	}
	if err := domains.ValidateAddress(p.TargetDomain, p.TargetAddress); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	swap := &models.Swap{
		Owner:           p.Owner,
		Direction:       p.Direction,
		InputAmount:     new(big.Int).Set(p.InputAmount),
		MinOutputAmount: new(big.Int).Set(p.MinOutputAmount),
		TargetAddress:   p.TargetAddress,
		TargetDomain:    p.TargetDomain,
		Deadline:        p.Deadline.UTC(),
	}
	if err := e.ledger.Create(ctx, swap); err != nil {
		return nil, fmt.Errorf("failed to record swap: %v", err)
	}

	metrics.SwapsCreated.WithLabelValues(domains.GetDomainName(p.TargetDomain), string(p.Direction)).Inc()
	e.logger.NoticeWithDomain(p.TargetDomain, "Created swap %d: %s %s in, floor %s, deadline %s",
		swap.ID, p.Direction, p.InputAmount.String(), p.MinOutputAmount.String(), p.Deadline.UTC().Format(time.RFC3339))
	return swap, nil
}

// Execute resumes a swap from whatever state it is in and runs steps until
// the swap reaches a state the saga cannot advance (terminal, FAILED,
// EXPIRED) or a step reports an error. Safe to call on a freshly created
// swap, after a crash, or concurrently with another executor: a step that
// loses its transition to a concurrent writer discards its own work and the
// loop re-reads.
func (e *Executor) Execute(ctx context.Context, id uint64) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		swap, err := e.ledger.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load swap %d: %v", id, err)
		}
		if swap.State.Active() && swap.Expired(time.Now().UTC()) {
			// past deadline; leave the sweep to the reconciler
			e.logger.Debug("Swap %d past deadline in %s, not advancing", id, swap.State)
			return nil
		}

		switch swap.State {
		case models.StateInitiated:
			err = e.SourceExchange(ctx, id)
		case models.StateSourceExchangeDone:
			err = e.BridgeSend(ctx, id)
		case models.StateBridgeSent:
			err = e.ConfirmBridge(ctx, id)
		case models.StateBridgeConfirmed:
			err = e.DestinationComplete(ctx, id)
		default:
			return nil
		}
		if err != nil {
			return err
		}
	}
}
