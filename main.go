package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/attestation"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/bridgeclient"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/config"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/coordinator"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/exchangeclient"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/intakeclient"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger/memory"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger/postgres"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/reconciler"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/refund"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/saga"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, stdLogger)
	if err != nil {
		log.Fatalf("Failed to open swap store: %v", err)
	}
	defer store.Close()

	led := ledger.New(store, stdLogger)

	venue := exchangeclient.New(cfg.ExchangeEndpoint, stdLogger)
	bridge := bridgeclient.New(cfg.BridgeEndpoint, stdLogger)
	intake := intakeclient.New(cfg.IntakeEndpoint, stdLogger)

	waiter := attestation.NewWaiter(bridge, cfg.Attestation.PollInterval,
		cfg.Attestation.AttemptTimeout, cfg.Attestation.OverallTimeout, stdLogger)

	// The relayer runs both transfer legs, so the bridge client doubles as
	// the destination-side executor
	executor := saga.NewExecutor(led, venue, bridge, bridge, waiter, stdLogger)

	refunds := refund.NewEngine(led, cfg.FeeRateBps, cfg.RefundGracePeriod,
		common.HexToAddress(cfg.FeeCollector), stdLogger)
	sweeper := reconciler.New(led, cfg.ReconcileInterval, stdLogger)

	service := coordinator.NewService(cfg, led, executor, refunds, sweeper, intake, stdLogger)

	// Set up signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		stdLogger.Notice("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	stdLogger.Info("Starting the coordinator service...")
	service.Start(ctx)
}

// openStore picks the swap store backing the ledger. Without DATABASE_URL the
// coordinator runs on the in-memory store and forgets everything on restart.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (ledger.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Notice("DATABASE_URL not set, using the in-memory swap store")
		return memory.NewStore(), nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Info("Connected to the postgres swap store")
	return postgres.NewStore(pool), nil
}
