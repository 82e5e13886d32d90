package coordinator

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/attestation"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/metrics"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/saga"
)

// job is one unit of worker input, a swap ready for a saga pass
type job struct {
	SwapID  uint64
	Attempt int
}

// worker processes swaps from the job queue
func (s *Service) worker(ctx context.Context, id int) {
	defer s.wg.Done()

	s.logger.Info("Starting worker %d", id)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Worker %d shutting down", id)
			return
		case j := <-s.pendingJobs:
			s.processJob(ctx, id, j)
		}
	}
}

// processJob runs one saga pass for a swap, then classifies the outcome
// into success, permanent failure, or a scheduled retry
func (s *Service) processJob(ctx context.Context, workerID int, j job) {
	swap, err := s.ledger.Get(ctx, j.SwapID)
	if err != nil {
		s.logger.Error("Worker %d: failed to load swap %d: %v", workerID, j.SwapID, err)
		return
	}

	if !swap.State.Active() {
		s.logger.Debug("Worker %d: swap %d already settled in %s, skipping", workerID, j.SwapID, swap.State)
		return
	}

	if !s.inflight.Reserve(j.SwapID, workerID) {
		s.logger.Debug("Worker %d: swap %d held by another worker, skipping", workerID, j.SwapID)
		return
	}
	defer s.inflight.Release(j.SwapID)

	// Gate on the breaker for the collaborator the next step will call
	collaborator := stepCollaborator(swap.State)
	if cb, ok := s.breakers[collaborator]; ok && cb.IsOpen() {
		s.logger.InfoWithDomain(swap.TargetDomain,
			"Worker %d: circuit open for %s, deferring swap %d", workerID, collaborator, j.SwapID)
		metrics.RetriesSkipped.WithLabelValues("circuit_open").Inc()
		s.scheduleRetryAt(j.SwapID, j.Attempt, "circuit_open", time.Now().Add(s.cfg.CircuitBreaker.ResetTimeout))
		return
	}

	s.logger.DebugWithDomain(swap.TargetDomain,
		"Worker %d processing swap %d from %s (attempt %d)", workerID, j.SwapID, swap.State, j.Attempt)

	err = s.executor.Execute(ctx, j.SwapID)
	if err == nil {
		if cb, ok := s.breakers[collaborator]; ok {
			cb.RecordSuccess()
		}
		s.logger.DebugWithDomain(swap.TargetDomain, "Worker %d finished saga pass for swap %d", workerID, j.SwapID)
		return
	}

	shouldRetry, errorType := classifyError(err)
	s.logger.ErrorWithDomain(swap.TargetDomain,
		"Worker %d: swap %d failed with %s: %v (retry: %v)", workerID, j.SwapID, errorType, err, shouldRetry)

	s.recordBreakerFailure(ctx, j.SwapID, err)

	if !shouldRetry {
		// The executor has already moved the swap to FAILED when the
		// error was a collaborator verdict, nothing more to do here
		return
	}

	if j.Attempt+1 > s.cfg.MaxRetries {
		s.logger.ErrorWithDomain(swap.TargetDomain,
			"Max retries reached for swap %d, leaving it to the reconciler (error: %s)", j.SwapID, errorType)
		metrics.MaxRetriesReached.WithLabelValues(errorType).Inc()
		return
	}

	s.scheduleRetryAt(j.SwapID, j.Attempt+1, errorType, time.Now().Add(calculateBackoff(j.Attempt)))
}

// recordBreakerFailure charges the failed call to the right collaborator's
// breaker. Collaborator verdicts name their origin, transport failures are
// attributed to the step the swap is still parked at.
func (s *Service) recordBreakerFailure(ctx context.Context, swapID uint64, execErr error) {
	name := ""

	var cerr *saga.CollaboratorError
	if errors.As(execErr, &cerr) {
		name = cerr.Collaborator
	} else if swap, err := s.ledger.Get(ctx, swapID); err == nil {
		name = stepCollaborator(swap.State)
	}

	cb, ok := s.breakers[name]
	if !ok {
		return
	}
	if tripped := cb.RecordFailure(); tripped {
		s.logger.Error("Circuit breaker tripped for %s after failure on swap %d", name, swapID)
	}
}

// stepCollaborator names the collaborator the next saga step for a state
// will call
func stepCollaborator(state models.SwapState) string {
	switch state {
	case models.StateInitiated:
		return "exchange"
	case models.StateSourceExchangeDone, models.StateBridgeSent:
		return "bridge"
	case models.StateBridgeConfirmed:
		return "destination"
	}
	return ""
}

// classifyError decides whether a failed saga pass should be retried.
// Returns (shouldRetry, errorType).
func classifyError(err error) (bool, string) {
	// Collaborator verdicts are final, the executor has recorded FAILED
	var cerr *saga.CollaboratorError
	if errors.As(err, &cerr) {
		return false, "collaborator_rejection"
	}

	// A transition raced another writer, the other writer owns the swap now
	if errors.Is(err, ledger.ErrInvalidTransition) {
		return false, "state_conflict"
	}

	// The attestation budget ran out while the transfer was still pending
	if errors.Is(err, attestation.ErrAttestationTimeout) {
		return true, "attestation_timeout"
	}

	errStr := err.Error()

	if strings.Contains(errStr, "context canceled") {
		return false, "shutdown"
	}

	// Network errors - retry is appropriate
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "no response") ||
		strings.Contains(errStr, "EOF") {
		return true, "network_error"
	}

	// Collaborator API served an error page - retry is appropriate
	if strings.Contains(errStr, "unexpected status code: 5") ||
		strings.Contains(errStr, "unexpected status code: 429") {
		return true, "upstream_error"
	}

	// Any other error - retry by default
	return true, "unknown_error"
}

// calculateBackoff returns the delay before retry attempt n
func calculateBackoff(attempt int) time.Duration {
	// Exponential backoff (2^attempt * 10 seconds)
	backoff := time.Duration(math.Pow(2, float64(attempt))) * 10 * time.Second

	// Set a maximum backoff of 2 minutes
	maxBackoff := 2 * time.Minute
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}
