package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/metrics"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

const defaultInterval = 30 * time.Second

// Reconciler periodically terminalizes active swaps whose deadline has
// passed, opening the refund path for owners who walked away.
type Reconciler struct {
	ledger   *ledger.Ledger
	interval time.Duration
	logger   logger.Logger
}

func New(l *ledger.Ledger, interval time.Duration, log logger.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Reconciler{ledger: l, interval: interval, logger: log}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx, time.Now().UTC()); err != nil {
				r.logger.Error("Expiry sweep failed: %v", err)
			} else if n > 0 {
				r.logger.Info("Expiry sweep terminalized %d swaps", n)
			}
		}
	}
}

// Sweep expires every active swap whose deadline passed before now and
// returns how many it terminalized. Losing a transition race to a worker or
// a concurrent sweep just skips that swap.
func (r *Reconciler) Sweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := r.ledger.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired swaps: %v", err)
	}

	swept := 0
	for _, swap := range expired {
		reason := fmt.Sprintf("deadline %s passed", swap.Deadline.Format(time.RFC3339))
		applied, err := r.ledger.RecordTransition(ctx, swap.ID, models.StateExpired, reason, nil)
		if err != nil {
			if errors.Is(err, ledger.ErrInvalidTransition) {
				r.logger.Debug("Swap %d settled while the sweep ran", swap.ID)
			} else {
				r.logger.Error("Failed to expire swap %d: %v", swap.ID, err)
			}
			continue
		}
		if !applied {
			continue
		}

		swept++
		metrics.ExpiredSwaps.Inc()
		r.logger.InfoWithDomain(swap.TargetDomain, "Swap %d EXPIRED, deadline %s was missed in %s",
			swap.ID, swap.Deadline.Format(time.RFC3339), swap.State)
	}
	return swept, nil
}
