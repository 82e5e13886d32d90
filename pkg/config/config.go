package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
)

// Config holds the configuration for the coordinator service
type Config struct {
	IntakeEndpoint    string
	BridgeEndpoint    string
	ExchangeEndpoint  string
	DatabaseURL       string
	PollingInterval   time.Duration
	WorkerCount       int
	MetricsPort       string
	MetricsAuthToken  string
	MaxRetries        int
	FeeRateBps        int64
	FeeCollector      string
	RefundGracePeriod time.Duration
	ReconcileInterval time.Duration
	Attestation       AttestationConfig
	CircuitBreaker    CircuitBreakerConfig
	LoggerConfig      LoggerConfig
}

// AttestationConfig holds the attestation wait budgets
type AttestationConfig struct {
	PollInterval   time.Duration
	AttemptTimeout time.Duration
	OverallTimeout time.Duration
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	pollingInterval, err := GetEnvPollingInterval()
	if err != nil {
		return nil, err
	}

	workerCount, err := GetEnvWorkerCount()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	maxRetries, err := GetEnvMaxRetries()
	if err != nil {
		return nil, err
	}

	feeRateBps, err := GetEnvFeeRateBps()
	if err != nil {
		return nil, err
	}

	feeCollector, err := GetEnvFeeCollectorAddress()
	if err != nil {
		return nil, err
	}

	gracePeriod, err := GetEnvRefundGracePeriod()
	if err != nil {
		return nil, err
	}

	attPollInterval, err := GetEnvAttestationPollInterval()
	if err != nil {
		return nil, err
	}

	attAttemptTimeout, err := GetEnvAttestationAttemptTimeout()
	if err != nil {
		return nil, err
	}

	attOverallTimeout, err := GetEnvAttestationOverallTimeout()
	if err != nil {
		return nil, err
	}

	reconcileInterval, err := GetEnvReconcileInterval()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	intakeEndpoint, err := GetEnvIntakeEndpoint()
	if err != nil {
		return nil, err
	}

	bridgeEndpoint, err := GetEnvBridgeEndpoint()
	if err != nil {
		return nil, err
	}

	exchangeEndpoint, err := GetEnvExchangeEndpoint()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		IntakeEndpoint:    intakeEndpoint,
		BridgeEndpoint:    bridgeEndpoint,
		ExchangeEndpoint:  exchangeEndpoint,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		PollingInterval:   pollingInterval,
		WorkerCount:       workerCount,
		MetricsPort:       metricsPort,
		MetricsAuthToken:  os.Getenv("METRICS_AUTH_TOKEN"),
		MaxRetries:        maxRetries,
		FeeRateBps:        feeRateBps,
		FeeCollector:      feeCollector,
		RefundGracePeriod: gracePeriod,
		ReconcileInterval: reconcileInterval,
		Attestation: AttestationConfig{
			PollInterval:   attPollInterval,
			AttemptTimeout: attAttemptTimeout,
			OverallTimeout: attOverallTimeout,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates cross-field constraints the per-knob getters
// cannot see
func validateConfig(cfg *Config) error {
	if cfg.Attestation.OverallTimeout < cfg.Attestation.AttemptTimeout {
		return fmt.Errorf("ATTESTATION_OVERALL_TIMEOUT must be at least ATTESTATION_ATTEMPT_TIMEOUT")
	}
	if cfg.Attestation.OverallTimeout < cfg.Attestation.PollInterval {
		return fmt.Errorf("ATTESTATION_OVERALL_TIMEOUT must be at least ATTESTATION_POLL_INTERVAL")
	}
	return nil
}
