// Package coordinator runs the swap machinery end to end: intake polling,
// the saga worker pool, retry scheduling, expiry reconciliation, and the
// health and metrics surface.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/circuitbreaker"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/config"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/domains"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/health"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/metrics"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/reconciler"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/refund"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/saga"
)

// Collaborator names used for circuit breakers and failure attribution.
const (
	CollaboratorExchange    = "exchange"
	CollaboratorBridge      = "bridge"
	CollaboratorDestination = "destination"
)

// Service handles the swap orchestration process
type Service struct {
	cfg      *config.Config
	ledger   *ledger.Ledger
	executor *saga.Executor
	refunds  *refund.Engine
	sweeper  *reconciler.Reconciler
	intake   IntakeSource
	logger   logger.Logger

	pendingJobs chan job
	retryJobs   chan models.RetryJob
	breakers    map[string]*circuitbreaker.Breaker
	inflight    *inflightRegistry
	volume      *volumeTracker

	mu       sync.Mutex
	accepted map[string]uint64 // request id -> swap id, dedupes intake re-serves

	wg sync.WaitGroup
}

// NewService creates a new coordinator service
func NewService(cfg *config.Config, l *ledger.Ledger, executor *saga.Executor,
	refunds *refund.Engine, sweeper *reconciler.Reconciler, intake IntakeSource, log logger.Logger,
) *Service {
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	breakers := make(map[string]*circuitbreaker.Breaker)
	for _, name := range []string{CollaboratorExchange, CollaboratorBridge, CollaboratorDestination} {
		breakers[name] = circuitbreaker.New(name, cfg.CircuitBreaker.Enabled,
			cfg.CircuitBreaker.Threshold, cfg.CircuitBreaker.WindowDuration,
			cfg.CircuitBreaker.ResetTimeout, log)
	}

	return &Service{
		cfg:         cfg,
		ledger:      l,
		executor:    executor,
		refunds:     refunds,
		sweeper:     sweeper,
		intake:      intake,
		logger:      log,
		pendingJobs: make(chan job, 100), // Buffer for queued swaps
		retryJobs:   make(chan models.RetryJob, 100),
		breakers:    breakers,
		inflight:    newInflightRegistry(10 * time.Minute),
		volume:      newVolumeTracker(),
		accepted:    make(map[string]uint64),
	}
}

// Start runs the service until the context is cancelled, then waits for all
// background goroutines to finish
func (s *Service) Start(ctx context.Context) {
	healthServer := health.NewServer(s.cfg.MetricsPort, s.cfg.MetricsAuthToken,
		s.ledger, s.refunds, s.sweeper, s.breakers, s, s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		healthServer.Run(ctx)
	}()

	s.logger.Info("Starting %d worker goroutines", s.cfg.WorkerCount)
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.wg.Add(1)
	go s.retryHandler(ctx)

	s.wg.Add(1)
	go s.eventPump(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweeper.Run(ctx)
	}()

	s.wg.Add(1)
	go s.metricsRefresher(ctx)

	s.wg.Add(1)
	go s.claimWatchdog(ctx)

	if err := s.recoverActiveSwaps(ctx); err != nil {
		s.logger.Error("Crash recovery scan failed: %v", err)
	}

	s.logger.Info("Starting coordinator with polling interval %v", s.cfg.PollingInterval)
	ticker := time.NewTicker(s.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Context cancelled, shutting down service")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.pollIntake(ctx)
		}
	}
}

// Submit records a swap and queues it for processing
func (s *Service) Submit(ctx context.Context, p saga.CreateParams) (*models.Swap, error) {
	swap, err := s.executor.Create(ctx, p)
	if err != nil {
		return nil, err
	}

	select {
	case s.pendingJobs <- job{SwapID: swap.ID}:
	case <-ctx.Done():
		// The swap is recorded, recovery or the watchdog will pick it up
	}
	return swap, nil
}

// RequestRefund refunds a swap on behalf of its owner
func (s *Service) RequestRefund(ctx context.Context, swapID uint64, caller common.Address) (*refund.Quote, error) {
	return s.refunds.Refund(ctx, swapID, caller)
}

// Breaker returns the named collaborator breaker, nil if unknown
func (s *Service) Breaker(name string) *circuitbreaker.Breaker {
	return s.breakers[name]
}

// Stats reports live queue depths and settled volume for the status endpoint
func (s *Service) Stats() map[string]interface{} {
	s.mu.Lock()
	accepted := len(s.accepted)
	s.mu.Unlock()

	volume := make(map[string]map[string]string)
	for domain, totals := range s.volume.Totals() {
		volume[domains.GetDomainName(domain)] = map[string]string{
			"input":  totals.Input.String(),
			"output": totals.Output.String(),
		}
	}

	return map[string]interface{}{
		"queue": map[string]int{
			"pending":           len(s.pendingJobs),
			"retries":           len(s.retryJobs),
			"inflight":          s.inflight.Count(),
			"accepted_requests": accepted,
		},
		"volume": volume,
	}
}

// recoverActiveSwaps re-queues swaps that were mid-flight when the previous
// process stopped. The ledger is the source of truth, anything still in an
// active state needs a saga pass.
func (s *Service) recoverActiveSwaps(ctx context.Context) error {
	swaps, err := s.ledger.ListByState(ctx, models.ActiveStates...)
	if err != nil {
		return err
	}
	if len(swaps) == 0 {
		return nil
	}

	s.logger.Notice("Recovering %d in-flight swaps from the ledger", len(swaps))
	for _, swap := range swaps {
		select {
		case s.pendingJobs <- job{SwapID: swap.ID}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// eventPump consumes ledger transition events and turns them into metrics
// and operator-facing logs
func (s *Service) eventPump(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.ledger.Events():
			s.handleEvent(ctx, ev)
		}
	}
}

// handleEvent processes one ledger transition event
func (s *Service) handleEvent(ctx context.Context, ev models.SwapEvent) {
	swap, err := s.ledger.Get(ctx, ev.SwapID)
	if err != nil {
		s.logger.Error("Event for unknown swap %d: %v", ev.SwapID, err)
		return
	}

	domain := domains.GetDomainName(swap.TargetDomain)

	switch ev.NewState {
	case models.StateCompleted:
		s.volume.RecordSettled(swap.TargetDomain, swap.InputAmount, swap.OutputAmount)
		metrics.SwapsSettled.WithLabelValues(domain, string(ev.NewState)).Inc()
		s.logger.NoticeWithDomain(swap.TargetDomain, "Swap %d completed: delivered %s to %s",
			ev.SwapID, swap.OutputAmount.String(), swap.TargetAddress)
	case models.StateRefunded:
		metrics.SwapsSettled.WithLabelValues(domain, string(ev.NewState)).Inc()
		s.logger.NoticeWithDomain(swap.TargetDomain, "Swap %d refunded: %s returned to %s",
			ev.SwapID, swap.OutputAmount.String(), swap.Owner.Hex())
	case models.StateFailed:
		s.logger.ErrorWithDomain(swap.TargetDomain, "Swap %d failed: %s", ev.SwapID, ev.Reason)
	case models.StateExpired:
		s.logger.InfoWithDomain(swap.TargetDomain, "Swap %d expired: %s", ev.SwapID, ev.Reason)
	default:
		s.logger.DebugWithDomain(swap.TargetDomain, "Swap %d moved %s -> %s",
			ev.SwapID, ev.OldState, ev.NewState)
	}
}

// metricsRefresher keeps the per-state ledger gauges current
func (s *Service) metricsRefresher(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	states := []models.SwapState{
		models.StateInitiated,
		models.StateSourceExchangeDone,
		models.StateBridgeSent,
		models.StateBridgeConfirmed,
		models.StateCompleted,
		models.StateFailed,
		models.StateExpired,
		models.StateRefunded,
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := s.ledger.CountByState(ctx)
			if err != nil {
				s.logger.Error("Error reading ledger counts: %v", err)
				continue
			}
			for _, st := range states {
				metrics.ActiveSwaps.WithLabelValues(string(st)).Set(float64(counts[st]))
			}
		}
	}
}

// claimWatchdog breaks in-flight claims that have been held suspiciously
// long and re-queues the swaps behind them
func (s *Service) claimWatchdog(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, swapID := range s.inflight.FindStuck() {
				s.logger.Error("Breaking stale claim on swap %d, re-queueing", swapID)
				select {
				case s.pendingJobs <- job{SwapID: swapID}:
				default:
					s.logger.Error("Worker queue full, swap %d waits for the next scan", swapID)
				}
			}
		}
	}
}
