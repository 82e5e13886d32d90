package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/attestation"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/metrics"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

const (
	stepSourceExchange      = "source_exchange"
	stepBridgeSend          = "bridge_send"
	stepConfirmBridge       = "confirm_bridge"
	stepDestinationComplete = "destination_complete"
)

// SourceExchange runs step 1: trade the input asset into the bridgeable
// asset on the source domain. INITIATED to SOURCE_EXCHANGE_DONE.
func (e *Executor) SourceExchange(ctx context.Context, id uint64) error {
	swap, err := e.ledger.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load swap %d: %v", id, err)
	}
	if swap.State != models.StateInitiated {
		return fmt.Errorf("%w: source exchange requires %s, swap %d is %s", ledger.ErrInvalidTransition, models.StateInitiated, id, swap.State)
	}

	e.logger.InfoWithDomain(swap.TargetDomain, "Swap %d: exchanging %s on source venue, floor %s", id, swap.InputAmount.String(), swap.MinOutputAmount.String())
	start := time.Now()
	res, err := e.venue.Swap(ctx, swap.ID, swap.Direction, swap.InputAmount, swap.MinOutputAmount)
	metrics.StepDuration.WithLabelValues(stepSourceExchange).Observe(time.Since(start).Seconds())
	if err != nil {
		return e.stepFailed(ctx, id, stepSourceExchange, err)
	}
	if res == nil || res.AmountOut == nil {
		cause := &CollaboratorError{Collaborator: "exchange", Err: errors.New("venue returned success without an amount")}
		return e.stepFailed(ctx, id, stepSourceExchange, cause)
	}
	if res.AmountOut.Cmp(swap.MinOutputAmount) < 0 {
		// a success response below the floor violates the venue contract
		cause := &CollaboratorError{Collaborator: "exchange", Err: fmt.Errorf("fill %s below floor %s", res.AmountOut.String(), swap.MinOutputAmount.String())}
		return e.stepFailed(ctx, id, stepSourceExchange, cause)
	}

	reason := fmt.Sprintf("venue executed, ref %s", res.ExecutionRef)
	applied, err := e.ledger.RecordTransition(ctx, id, models.StateSourceExchangeDone, reason, &ledger.Mutation{IntermediateAmount: res.AmountOut})
	if err != nil {
		return fmt.Errorf("failed to record source exchange for swap %d: %v", id, err)
	}
	if !applied {
		e.logger.Debug("Swap %d: source exchange result discarded, state moved concurrently", id)
		return nil
	}
	e.logger.InfoWithDomain(swap.TargetDomain, "Swap %d: source exchange done, intermediate %s", id, res.AmountOut.String())
	return nil
}

// BridgeSend runs step 2: hand the intermediate amount to the relayer and
// record the transfer handle it returns. SOURCE_EXCHANGE_DONE to
// BRIDGE_SENT.
func (e *Executor) BridgeSend(ctx context.Context, id uint64) error {
	swap, err := e.ledger.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load swap %d: %v", id, err)
	}
	if swap.State != models.StateSourceExchangeDone {
		return fmt.Errorf("%w: bridge send requires %s, swap %d is %s", ledger.ErrInvalidTransition, models.StateSourceExchangeDone, id, swap.State)
	}

	params := TransferParams{
		SwapID:      swap.ID,
		Amount:      swap.IntermediateAmount,
		DestDomain:  swap.TargetDomain,
		DestAddress: swap.TargetAddress,
		Nonce:       swap.ID,
	}
	e.logger.InfoWithDomain(swap.TargetDomain, "Swap %d: sending %s through bridge, nonce %d", id, swap.IntermediateAmount.String(), params.Nonce)
	start := time.Now()
	ref, err := e.bridge.Send(ctx, params)
	metrics.StepDuration.WithLabelValues(stepBridgeSend).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrTransferStranded) {
			return e.reclaimStranded(ctx, swap, err)
		}
		return e.stepFailed(ctx, id, stepBridgeSend, err)
	}

	applied, err := e.ledger.RecordTransition(ctx, id, models.StateBridgeSent, "transfer submitted", &ledger.Mutation{AttestationRef: &ref})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateRef) {
			// the relayer handed back a handle already bound to another swap
			cause := &CollaboratorError{Collaborator: "bridge", Err: fmt.Errorf("handle %s already recorded: %w", ref.Hex(), err)}
			return e.stepFailed(ctx, id, stepBridgeSend, cause)
		}
		return fmt.Errorf("failed to record bridge send for swap %d: %v", id, err)
	}
	if !applied {
		e.logger.Debug("Swap %d: bridge handle discarded, state moved concurrently", id)
		return nil
	}
	e.logger.InfoWithDomain(swap.TargetDomain, "Swap %d: bridge accepted transfer, handle %s", id, ref.Hex())
	return nil
}

// ConfirmBridge runs step 3: block until the transfer attestation is
// complete. BRIDGE_SENT to BRIDGE_CONFIRMED.
func (e *Executor) ConfirmBridge(ctx context.Context, id uint64) error {
	swap, err := e.ledger.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load swap %d: %v", id, err)
	}
	if swap.State != models.StateBridgeSent {
		return fmt.Errorf("%w: confirm bridge requires %s, swap %d is %s", ledger.ErrInvalidTransition, models.StateBridgeSent, id, swap.State)
	}
	if !swap.HasAttestationRef() {
		return fmt.Errorf("swap %d is %s without a transfer handle", id, swap.State)
	}

	e.logger.InfoWithDomain(swap.TargetDomain, "Swap %d: waiting for attestation on %s", id, swap.AttestationRef.Hex())
	start := time.Now()
	att, err := e.waiter.Wait(ctx, swap.AttestationRef, swap.Deadline)
	metrics.StepDuration.WithLabelValues(stepConfirmBridge).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, attestation.ErrTransferFailed) {
			cause := &CollaboratorError{Collaborator: "bridge", Err: err}
			return e.stepFailed(ctx, id, stepConfirmBridge, cause)
		}
		// timeouts and transport errors stay retryable while the deadline allows
		return fmt.Errorf("%s for swap %d: %w", stepConfirmBridge, id, err)
	}

	applied, err := e.ledger.RecordTransition(ctx, id, models.StateBridgeConfirmed, "attestation complete", nil)
	if err != nil {
		return fmt.Errorf("failed to record confirmation for swap %d: %v", id, err)
	}
	if !applied {
		e.logger.Debug("Swap %d: confirmation discarded, state moved concurrently", id)
		return nil
	}
	e.logger.InfoWithDomain(swap.TargetDomain, "Swap %d: attestation complete, %d byte proof", id, len(att.Message))
	return nil
}

// DestinationComplete runs step 4: present the attestation on the
// destination domain and record the delivered amount. BRIDGE_CONFIRMED to
// COMPLETED.
func (e *Executor) DestinationComplete(ctx context.Context, id uint64) error {
	swap, err := e.ledger.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load swap %d: %v", id, err)
	}
	if swap.State != models.StateBridgeConfirmed {
		return fmt.Errorf("%w: destination completion requires %s, swap %d is %s", ledger.ErrInvalidTransition, models.StateBridgeConfirmed, id, swap.State)
	}

	att, err := e.bridge.FetchAttestation(ctx, swap.AttestationRef)
	if err != nil {
		return e.stepFailed(ctx, id, stepDestinationComplete, err)
	}
	if att == nil || !att.Complete() {
		// it was complete when step 3 saw it; treat a regression as transient
		return fmt.Errorf("%s for swap %d: attestation for %s not servable", stepDestinationComplete, id, swap.AttestationRef.Hex())
	}

	start := time.Now()
	amount, err := e.dest.Complete(ctx, swap.ID, att, swap.TargetAddress)
	metrics.StepDuration.WithLabelValues(stepDestinationComplete).Observe(time.Since(start).Seconds())
	if err != nil {
		return e.stepFailed(ctx, id, stepDestinationComplete, err)
	}
	if amount == nil {
		cause := &CollaboratorError{Collaborator: "destination", Err: errors.New("completion returned no delivered amount")}
		return e.stepFailed(ctx, id, stepDestinationComplete, cause)
	}

	applied, err := e.ledger.RecordTransition(ctx, id, models.StateCompleted, "destination delivered", &ledger.Mutation{OutputAmount: amount})
	if err != nil {
		return fmt.Errorf("failed to record completion for swap %d: %v", id, err)
	}
	if !applied {
		e.logger.Debug("Swap %d: completion discarded, state moved concurrently", id)
		return nil
	}
	e.logger.NoticeWithDomain(swap.TargetDomain, "Swap %d COMPLETED: delivered %s to %s", id, amount.String(), swap.TargetAddress)
	return nil
}

// stepFailed turns a collaborator rejection into a FAILED transition so the
// swap is never left ambiguous. Anything that is not a CollaboratorError is
// a transport problem: the swap is left untouched and the error goes back to
// the caller for retry, which is safe because collaborator calls are keyed
// by swap id.
func (e *Executor) stepFailed(ctx context.Context, id uint64, step string, cause error) error {
	var cerr *CollaboratorError
	if !errors.As(cause, &cerr) {
		metrics.StepErrors.WithLabelValues(step, "transport").Inc()
		return fmt.Errorf("%s for swap %d: %w", step, id, cause)
	}

	metrics.StepErrors.WithLabelValues(step, cerr.Collaborator).Inc()
	metrics.PermanentErrors.WithLabelValues(step, cerr.Collaborator).Inc()
	reason := cerr.Error()
	if _, err := e.ledger.RecordTransition(ctx, id, models.StateFailed, reason, &ledger.Mutation{FailureReason: reason}); err != nil {
		return fmt.Errorf("failed to record %s failure for swap %d: %v (cause: %v)", step, id, err, cause)
	}
	e.logger.Error("Swap %d failed at %s: %v", id, step, cerr)
	return fmt.Errorf("%s for swap %d: %w", step, id, cause)
}

// reclaimStranded compensates a transfer whose funds left custody without a
// usable handle: pull them back by nonce, then fail the swap so the refund
// path can return them.
func (e *Executor) reclaimStranded(ctx context.Context, swap *models.Swap, cause error) error {
	e.logger.ErrorWithDomain(swap.TargetDomain, "Swap %d: transfer stranded, reclaiming by nonce %d: %v", swap.ID, swap.ID, cause)
	reason := "bridge transfer stranded, funds reclaimed to custody"
	if err := e.bridge.Reclaim(ctx, swap.ID); err != nil {
		// funds stay relayer-side until an operator retries the reclaim
		reason = fmt.Sprintf("bridge transfer stranded, reclaim failed: %v", err)
		metrics.ManualInterventions.Inc()
		e.logger.ErrorWithDomain(swap.TargetDomain, "Swap %d: reclaim failed: %v", swap.ID, err)
	}

	metrics.PermanentErrors.WithLabelValues(stepBridgeSend, "stranded").Inc()
	if _, err := e.ledger.RecordTransition(ctx, swap.ID, models.StateFailed, reason, &ledger.Mutation{FailureReason: reason}); err != nil {
		return fmt.Errorf("failed to record stranded transfer for swap %d: %v (cause: %v)", swap.ID, err, cause)
	}
	return fmt.Errorf("bridge send for swap %d: %w", swap.ID, &CollaboratorError{Collaborator: "bridge", Err: cause})
}
