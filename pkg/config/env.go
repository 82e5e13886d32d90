package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
)

const (
	// DefaultPollingInterval defines the default intake polling interval in seconds
	DefaultPollingInterval = 5

	// DefaultWorkerCount defines the default number of swap workers
	DefaultWorkerCount = 5

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultMaxRetries defines the maximum number of retries for retryable step failures
	DefaultMaxRetries = 10

	// DefaultFeeRateBps defines the protocol fee charged on net refunds, in basis points
	DefaultFeeRateBps = 25

	// DefaultFeeCollectorAddress defines the default address owed the accumulated fees
	DefaultFeeCollectorAddress = "0x0000000000000000000000000000000000000000"

	// DefaultRefundGracePeriod defines how long after creation an untouched
	// swap stays reserved for the workers before the owner can self-refund
	DefaultRefundGracePeriod = time.Hour

	// DefaultAttestationPollInterval defines the delay between attestation polls
	DefaultAttestationPollInterval = 10 * time.Second

	// DefaultAttestationAttemptTimeout defines the timeout for one attestation fetch
	DefaultAttestationAttemptTimeout = 5 * time.Second

	// DefaultAttestationOverallTimeout defines the total budget for one attestation wait
	DefaultAttestationOverallTimeout = 300 * time.Second

	// DefaultReconcileInterval defines how often the expiry sweep runs
	DefaultReconcileInterval = 30 * time.Second

	// DefaultCircuitBreakerEnabled defines whether the circuit breakers are enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before a circuit trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the failure-counting window
	DefaultCircuitBreakerWindow = 5 * time.Second

	// DefaultCircuitBreakerReset defines the cooldown before a tripped circuit probes again
	DefaultCircuitBreakerReset = 15 * time.Second

	// DefaultIntakeEndpoint defines the default endpoint serving pending swap requests
	DefaultIntakeEndpoint = "https://intake.relayswap.exchange"

	// DefaultBridgeEndpoint defines the default bridge relayer endpoint
	DefaultBridgeEndpoint = "https://relayer.relayswap.exchange"

	// DefaultExchangeEndpoint defines the default exchange venue endpoint
	DefaultExchangeEndpoint = "https://venue.relayswap.exchange"
)

// GetEnvPollingInterval returns the intake polling interval in seconds from environment variables
func GetEnvPollingInterval() (time.Duration, error) {
	pollingInterval := os.Getenv("POLLING_INTERVAL")
	if pollingInterval == "" {
		return time.Duration(DefaultPollingInterval) * time.Second, nil
	}

	interval, err := strconv.Atoi(pollingInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid POLLING_INTERVAL value: %s, must be an integer", pollingInterval)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("POLLING_INTERVAL must be greater than 0")
	}
	return time.Duration(interval) * time.Second, nil
}

// GetEnvWorkerCount returns the number of swap workers from environment variables
func GetEnvWorkerCount() (int, error) {
	workerCount := os.Getenv("WORKER_COUNT")
	if workerCount == "" {
		return DefaultWorkerCount, nil
	}

	count, err := strconv.Atoi(workerCount)
	if err != nil {
		return 0, fmt.Errorf("invalid WORKER_COUNT value: %s, must be an integer", workerCount)
	}
	if count <= 0 {
		return 0, fmt.Errorf("WORKER_COUNT must be greater than 0")
	}
	return count, nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvMaxRetries returns the maximum number of retries from environment variables
func GetEnvMaxRetries() (int, error) {
	maxRetries := os.Getenv("MAX_RETRIES")
	if maxRetries == "" {
		return DefaultMaxRetries, nil
	}

	maxRetriesInt, err := strconv.Atoi(maxRetries)
	if err != nil {
		return 0, fmt.Errorf("invalid MAX_RETRIES value: %s, must be an integer", maxRetries)
	}
	if maxRetriesInt < 0 {
		return 0, fmt.Errorf("MAX_RETRIES must be greater than or equal to 0")
	}
	return maxRetriesInt, nil
}

// GetEnvFeeRateBps returns the protocol fee rate in basis points from environment variables
func GetEnvFeeRateBps() (int64, error) {
	feeRate := os.Getenv("FEE_RATE_BPS")
	if feeRate == "" {
		return DefaultFeeRateBps, nil
	}

	bps, err := strconv.ParseInt(feeRate, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid FEE_RATE_BPS value: %s, must be an integer", feeRate)
	}
	if bps < 0 || bps > 10000 {
		return 0, fmt.Errorf("FEE_RATE_BPS must be between 0 and 10000")
	}
	return bps, nil
}

// GetEnvFeeCollectorAddress returns the fee collector address from environment variables
func GetEnvFeeCollectorAddress() (string, error) {
	collector := os.Getenv("FEE_COLLECTOR_ADDRESS")
	if collector == "" {
		return DefaultFeeCollectorAddress, nil
	}

	if !common.IsHexAddress(collector) {
		return "", fmt.Errorf("invalid FEE_COLLECTOR_ADDRESS value: %s, must be a valid Ethereum address", collector)
	}
	return collector, nil
}

// GetEnvRefundGracePeriod returns the refund grace period from environment variables
func GetEnvRefundGracePeriod() (time.Duration, error) {
	grace := os.Getenv("REFUND_GRACE_PERIOD")
	if grace == "" {
		return DefaultRefundGracePeriod, nil
	}

	parsed, err := time.ParseDuration(grace)
	if err != nil {
		return 0, fmt.Errorf("invalid REFUND_GRACE_PERIOD value: %s, must be a valid duration string", grace)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("REFUND_GRACE_PERIOD must not be negative")
	}
	return parsed, nil
}

// GetEnvAttestationPollInterval returns the attestation poll interval from environment variables
func GetEnvAttestationPollInterval() (time.Duration, error) {
	return getEnvDuration("ATTESTATION_POLL_INTERVAL", DefaultAttestationPollInterval)
}

// GetEnvAttestationAttemptTimeout returns the per-fetch attestation timeout from environment variables
func GetEnvAttestationAttemptTimeout() (time.Duration, error) {
	return getEnvDuration("ATTESTATION_ATTEMPT_TIMEOUT", DefaultAttestationAttemptTimeout)
}

// GetEnvAttestationOverallTimeout returns the total attestation wait budget from environment variables
func GetEnvAttestationOverallTimeout() (time.Duration, error) {
	return getEnvDuration("ATTESTATION_OVERALL_TIMEOUT", DefaultAttestationOverallTimeout)
}

// GetEnvReconcileInterval returns the expiry sweep interval from environment variables
func GetEnvReconcileInterval() (time.Duration, error) {
	return getEnvDuration("RECONCILE_INTERVAL", DefaultReconcileInterval)
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breakers are enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	enabled := os.Getenv("CIRCUIT_BREAKER_ENABLED")
	if enabled == "" {
		return DefaultCircuitBreakerEnabled, nil
	}

	if enabled == "true" {
		return true, nil
	} else if enabled == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid CIRCUIT_BREAKER_ENABLED value: %s, must be 'true' or 'false'", enabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker failure window from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)
}

// GetEnvIntakeEndpoint returns the intake endpoint from environment variables
func GetEnvIntakeEndpoint() (string, error) {
	return getEnvEndpoint("INTAKE_ENDPOINT", DefaultIntakeEndpoint)
}

// GetEnvBridgeEndpoint returns the bridge relayer endpoint from environment variables
func GetEnvBridgeEndpoint() (string, error) {
	return getEnvEndpoint("BRIDGE_ENDPOINT", DefaultBridgeEndpoint)
}

// GetEnvExchangeEndpoint returns the exchange venue endpoint from environment variables
func GetEnvExchangeEndpoint() (string, error) {
	return getEnvEndpoint("EXCHANGE_ENDPOINT", DefaultExchangeEndpoint)
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "":
		return logger.InfoLevel, nil
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be 'debug', 'info', 'notice' or 'error'", level)
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	coloring := os.Getenv("LOG_COLORING")
	if coloring == "" {
		return true, nil
	}

	if coloring == "true" {
		return true, nil
	} else if coloring == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid LOG_COLORING value: %s, must be 'true' or 'false'", coloring)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", key, raw)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}

func getEnvEndpoint(key, fallback string) (string, error) {
	endpoint := os.Getenv(key)
	if endpoint == "" {
		return fallback, nil
	}

	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return "", fmt.Errorf("invalid %s value: %s, must be a valid URL", key, endpoint)
	}
	return endpoint, nil
}
