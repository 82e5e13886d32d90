package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/attestation"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/saga"
)

func TestClassifyError(t *testing.T) {
	rejection := &saga.CollaboratorError{Collaborator: "exchange", Err: errors.New("insufficient liquidity")}

	tests := []struct {
		name      string
		err       error
		wantRetry bool
		wantType  string
	}{
		{"collaborator rejection", rejection, false, "collaborator_rejection"},
		{"wrapped collaborator rejection", fmt.Errorf("source exchange for swap 4: %w", rejection), false, "collaborator_rejection"},
		{"state conflict", fmt.Errorf("%w: bridge send requires SOURCE_EXCHANGE_DONE", ledger.ErrInvalidTransition), false, "state_conflict"},
		{"attestation timeout", fmt.Errorf("confirm bridge for swap 9: %w", attestation.ErrAttestationTimeout), true, "attestation_timeout"},
		{"shutdown", errors.New(`Post "https://venue": context canceled`), false, "shutdown"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:9000: connect: connection refused"), true, "network_error"},
		{"deadline exceeded", errors.New("context deadline exceeded"), true, "network_error"},
		{"unexpected EOF", errors.New("unexpected EOF"), true, "network_error"},
		{"server error page", errors.New("unexpected status code: 503, body: oops"), true, "upstream_error"},
		{"rate limited", errors.New("unexpected status code: 429, body: slow down"), true, "upstream_error"},
		{"anything else", errors.New("something odd happened"), true, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotRetry, gotType := classifyError(tt.err)
			assert.Equal(t, tt.wantRetry, gotRetry)
			assert.Equal(t, tt.wantType, gotType)
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{3, 80 * time.Second},
		{4, 2 * time.Minute},
		{8, 2 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateBackoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestStepCollaborator(t *testing.T) {
	assert.Equal(t, "exchange", stepCollaborator(models.StateInitiated))
	assert.Equal(t, "bridge", stepCollaborator(models.StateSourceExchangeDone))
	assert.Equal(t, "bridge", stepCollaborator(models.StateBridgeSent))
	assert.Equal(t, "destination", stepCollaborator(models.StateBridgeConfirmed))
	assert.Equal(t, "", stepCollaborator(models.StateCompleted))
	assert.Equal(t, "", stepCollaborator(models.StateRefunded))
}

func TestProcessJobRunsSagaToCompletion(t *testing.T) {
	h := newTestService(t)
	swap := h.createSwap(t)

	h.svc.processJob(context.Background(), 0, job{SwapID: swap.ID})

	assert.Equal(t, models.StateCompleted, h.swapState(t, swap.ID))
	assert.False(t, h.svc.inflight.Held(swap.ID), "claim is released after the pass")
	assert.Empty(t, h.svc.retryJobs)
}

func TestProcessJobSkipsSettledSwap(t *testing.T) {
	h := newTestService(t)
	swap := h.createSwap(t)
	_, err := h.ledger.RecordTransition(context.Background(), swap.ID, models.StateFailed,
		"venue rejected", &ledger.Mutation{FailureReason: "venue rejected"})
	require.NoError(t, err)

	h.svc.processJob(context.Background(), 0, job{SwapID: swap.ID})

	assert.Zero(t, h.venue.CallCount(), "settled swaps never reach the collaborators")
	assert.Equal(t, models.StateFailed, h.swapState(t, swap.ID))
}

func TestProcessJobRespectsInflightClaim(t *testing.T) {
	h := newTestService(t)
	swap := h.createSwap(t)
	require.True(t, h.svc.inflight.Reserve(swap.ID, 99))

	h.svc.processJob(context.Background(), 0, job{SwapID: swap.ID})

	assert.Zero(t, h.venue.CallCount(), "a claimed swap is left to its holder")
	assert.True(t, h.svc.inflight.Held(swap.ID), "the original claim survives")
}

func TestProcessJobDefersWhenCircuitOpen(t *testing.T) {
	h := newTestService(t)
	swap := h.createSwap(t)

	cb := h.svc.Breaker(CollaboratorExchange)
	require.NotNil(t, cb)
	cb.RecordFailure()
	cb.RecordFailure()
	require.True(t, cb.IsOpen())

	h.svc.processJob(context.Background(), 0, job{SwapID: swap.ID, Attempt: 2})

	assert.Zero(t, h.venue.CallCount(), "no collaborator call while the circuit is open")
	assert.Equal(t, models.StateInitiated, h.swapState(t, swap.ID))

	select {
	case rj := <-h.svc.retryJobs:
		assert.Equal(t, swap.ID, rj.SwapID)
		assert.Equal(t, 2, rj.RetryCount, "a deferred pass does not consume an attempt")
		assert.Equal(t, "circuit_open", rj.ErrorType)
	default:
		t.Fatal("deferred swap was not rescheduled")
	}
}

func TestProcessJobSchedulesRetryOnTransportError(t *testing.T) {
	h := newTestService(t)
	swap := h.createSwap(t)
	h.venue.Err = errors.New("dial tcp 127.0.0.1:9000: connect: connection refused")

	before := time.Now()
	h.svc.processJob(context.Background(), 0, job{SwapID: swap.ID})

	assert.Equal(t, models.StateInitiated, h.swapState(t, swap.ID),
		"transport failures leave the swap where it was")

	select {
	case rj := <-h.svc.retryJobs:
		assert.Equal(t, swap.ID, rj.SwapID)
		assert.Equal(t, 1, rj.RetryCount)
		assert.Equal(t, "network_error", rj.ErrorType)
		assert.WithinDuration(t, before.Add(10*time.Second), rj.NextAttempt, time.Second,
			"first retry backs off ten seconds")
	default:
		t.Fatal("transport failure was not rescheduled")
	}
}

func TestProcessJobTripsBreakerAfterRepeatedTransportFailures(t *testing.T) {
	h := newTestService(t)
	swap := h.createSwap(t)
	h.venue.Err = errors.New("dial tcp 127.0.0.1:9000: connect: connection refused")

	h.svc.processJob(context.Background(), 0, job{SwapID: swap.ID})
	h.svc.processJob(context.Background(), 0, job{SwapID: swap.ID, Attempt: 1})

	assert.True(t, h.svc.Breaker(CollaboratorExchange).IsOpen(),
		"two failures within the window trip the breaker")
	assert.Equal(t, 2, h.venue.CallCount())

	// The next pass is gated before any collaborator call
	h.svc.processJob(context.Background(), 0, job{SwapID: swap.ID, Attempt: 2})
	assert.Equal(t, 2, h.venue.CallCount())
}

func TestProcessJobDoesNotRetryCollaboratorRejection(t *testing.T) {
	h := newTestService(t)
	swap := h.createSwap(t)
	h.venue.Err = &saga.CollaboratorError{Collaborator: "exchange", Err: errors.New("insufficient liquidity")}

	h.svc.processJob(context.Background(), 0, job{SwapID: swap.ID})

	assert.Equal(t, models.StateFailed, h.swapState(t, swap.ID))
	assert.Empty(t, h.svc.retryJobs, "a definitive rejection is not retried")

	stored, err := h.ledger.Get(context.Background(), swap.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.FailureReason, "insufficient liquidity")
}

func TestProcessJobStopsAtMaxRetries(t *testing.T) {
	h := newTestService(t)
	swap := h.createSwap(t)
	h.venue.Err = errors.New("dial tcp 127.0.0.1:9000: connect: connection refused")

	h.svc.processJob(context.Background(), 0, job{SwapID: swap.ID, Attempt: h.svc.cfg.MaxRetries})

	assert.Empty(t, h.svc.retryJobs, "the retry budget is spent, the reconciler takes over")
	assert.Equal(t, models.StateInitiated, h.swapState(t, swap.ID))
}

func TestWorkerDrainsQueueUntilCancelled(t *testing.T) {
	h := newTestService(t)
	first := h.createSwap(t)
	second := h.createSwap(t)

	ctx, cancel := context.WithCancel(context.Background())
	h.svc.wg.Add(1)
	go h.svc.worker(ctx, 0)

	h.svc.pendingJobs <- job{SwapID: first.ID}
	h.svc.pendingJobs <- job{SwapID: second.ID}

	assert.Eventually(t, func() bool {
		a, errA := h.ledger.Get(ctx, first.ID)
		b, errB := h.ledger.Get(ctx, second.ID)
		return errA == nil && errB == nil &&
			a.State == models.StateCompleted && b.State == models.StateCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	h.svc.wg.Wait()
}
