package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/metrics"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/saga"
)

// IntakeSource serves user swap submissions waiting to be picked up
type IntakeSource interface {
	FetchPendingRequests() ([]models.SwapRequest, error)
	Ack(requestID string) error
}

// pollIntake pulls pending requests, records each as a swap, and queues the
// new swaps for the workers
func (s *Service) pollIntake(ctx context.Context) {
	requests, err := s.intake.FetchPendingRequests()
	if err != nil {
		s.logger.Error("Error fetching intake requests: %v", err)
		return
	}
	if len(requests) == 0 {
		return
	}
	s.logger.Debug("Found %d pending requests", len(requests))

	for _, req := range requests {
		// Unacked requests reappear on the next poll
		s.mu.Lock()
		swapID, seen := s.accepted[req.RequestID]
		s.mu.Unlock()
		if seen {
			s.logger.Debug("Request %s already accepted as swap %d, re-acking", req.RequestID, swapID)
			if err := s.intake.Ack(req.RequestID); err != nil {
				s.logger.Error("Failed to ack request %s: %v", req.RequestID, err)
			}
			continue
		}

		swap, err := s.SubmitRequest(ctx, req)
		if err != nil {
			if errors.Is(err, saga.ErrInvalidRequest) {
				// Invalid now means invalid forever, ack so the
				// intake stops serving it
				s.logger.Error("Rejecting request %s: %v", req.RequestID, err)
				if ackErr := s.intake.Ack(req.RequestID); ackErr != nil {
					s.logger.Error("Failed to ack rejected request %s: %v", req.RequestID, ackErr)
				}
			} else {
				s.logger.Error("Failed to record request %s: %v, will retry next poll", req.RequestID, err)
			}
			continue
		}

		s.mu.Lock()
		s.accepted[req.RequestID] = swap.ID
		s.mu.Unlock()

		if err := s.intake.Ack(req.RequestID); err != nil {
			// The accepted map dedupes re-serves until an ack lands
			s.logger.Error("Failed to ack request %s: %v", req.RequestID, err)
		}
	}

	metrics.PendingSwaps.Set(float64(len(s.pendingJobs)))
}

// SubmitRequest parses an intake request, records the swap, and queues it
// for processing
func (s *Service) SubmitRequest(ctx context.Context, req models.SwapRequest) (*models.Swap, error) {
	if !common.IsHexAddress(req.Owner) {
		return nil, fmt.Errorf("%w: owner %q is not a valid address", saga.ErrInvalidRequest, req.Owner)
	}

	input, ok := new(big.Int).SetString(req.InputAmount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: input_amount %q is not a decimal integer", saga.ErrInvalidRequest, req.InputAmount)
	}

	minOut, ok := new(big.Int).SetString(req.MinOutputAmount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: min_output_amount %q is not a decimal integer", saga.ErrInvalidRequest, req.MinOutputAmount)
	}

	return s.Submit(ctx, saga.CreateParams{
		Owner:           common.HexToAddress(req.Owner),
		Direction:       models.Direction(req.Direction),
		InputAmount:     input,
		MinOutputAmount: minOut,
		TargetAddress:   req.TargetAddress,
		TargetDomain:    req.TargetDomain,
		Deadline:        req.Deadline,
	})
}
