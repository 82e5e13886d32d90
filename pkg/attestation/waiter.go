package attestation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/metrics"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

var (
	// ErrAttestationTimeout reports a wait that ran out of budget while the
	// attestation was still pending. The transfer handle stays valid, so
	// the wait can be retried until the swap deadline.
	ErrAttestationTimeout = errors.New("timed out waiting for attestation")

	// ErrTransferFailed reports an attestation in a permanently failed
	// status. There is nothing left to wait for.
	ErrTransferFailed = errors.New("transfer attestation reports failure")
)

// Fetcher serves the current attestation for a transfer handle.
type Fetcher interface {
	FetchAttestation(ctx context.Context, ref common.Hash) (*models.Attestation, error)
}

const (
	defaultPollInterval      = 10 * time.Second
	defaultPerAttemptTimeout = 5 * time.Second
	defaultOverallTimeout    = 300 * time.Second
)

// Waiter polls a Fetcher on a fixed interval until the attestation
// completes or a budget runs out. Each poll gets its own attempt timeout so
// one hung fetch cannot eat the whole wait.
type Waiter struct {
	fetcher           Fetcher
	pollInterval      time.Duration
	perAttemptTimeout time.Duration
	overallTimeout    time.Duration
	logger            logger.Logger
}

func NewWaiter(fetcher Fetcher, pollInterval, perAttemptTimeout, overallTimeout time.Duration, log logger.Logger) *Waiter {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if perAttemptTimeout <= 0 {
		perAttemptTimeout = defaultPerAttemptTimeout
	}
	if overallTimeout <= 0 {
		overallTimeout = defaultOverallTimeout
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Waiter{
		fetcher:           fetcher,
		pollInterval:      pollInterval,
		perAttemptTimeout: perAttemptTimeout,
		overallTimeout:    overallTimeout,
		logger:            log,
	}
}

// Wait blocks until the attestation for ref is complete. The wait stops at
// the earlier of the overall timeout and the swap deadline; in both cases a
// still-pending attestation resolves to ErrAttestationTimeout. Transient
// fetch errors do not abort the wait, they just cost a poll.
func (w *Waiter) Wait(ctx context.Context, ref common.Hash, deadline time.Time) (*models.Attestation, error) {
	budget := w.overallTimeout
	if until := time.Until(deadline); until < budget {
		budget = until
	}
	if budget <= 0 {
		return nil, fmt.Errorf("%w: deadline already passed for %s", ErrAttestationTimeout, ref.Hex())
	}

	waitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	attempts := 0
	for {
		attempts++
		att, err := w.poll(waitCtx, ref)
		switch {
		case err != nil:
			w.logger.Debug("Attestation poll %d for %s failed: %v", attempts, ref.Hex(), err)
		case att == nil:
			w.logger.Debug("Attestation poll %d for %s returned nothing", attempts, ref.Hex())
		case att.Status == models.AttestationFailed:
			return nil, fmt.Errorf("%w: %s", ErrTransferFailed, ref.Hex())
		case att.Complete():
			metrics.AttestationWaitTime.Observe(time.Since(start).Seconds())
			return att, nil
		default:
			w.logger.Debug("Attestation for %s still pending after %d polls", ref.Hex(), attempts)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				// caller cancelled, not a budget expiry
				return nil, ctx.Err()
			}
			metrics.AttestationTimeouts.Inc()
			return nil, fmt.Errorf("%w: %s still pending after %s", ErrAttestationTimeout, ref.Hex(), time.Since(start).Round(time.Second))
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *Waiter) poll(ctx context.Context, ref common.Hash) (*models.Attestation, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, w.perAttemptTimeout)
	defer cancel()
	metrics.AttestationPolls.Inc()
	return w.fetcher.FetchAttestation(attemptCtx, ref)
}
