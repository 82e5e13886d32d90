package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/circuitbreaker"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/reconciler"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/refund"
)

// StatsSource reports live service counters for the status endpoint
type StatsSource interface {
	Stats() map[string]interface{}
}

// Server represents the health, ops, and metrics HTTP server
type Server struct {
	port      string
	authToken string
	ledger    *ledger.Ledger
	refunds   *refund.Engine
	sweeper   *reconciler.Reconciler
	breakers  map[string]*circuitbreaker.Breaker
	stats     StatsSource
	logger    logger.Logger
	started   time.Time
}

// NewServer creates a new health check server
func NewServer(port, authToken string, l *ledger.Ledger, refunds *refund.Engine,
	sweeper *reconciler.Reconciler, breakers map[string]*circuitbreaker.Breaker,
	stats StatsSource, log logger.Logger,
) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{
		port:      port,
		authToken: authToken,
		ledger:    l,
		refunds:   refunds,
		sweeper:   sweeper,
		breakers:  breakers,
		stats:     stats,
		logger:    log,
		started:   time.Now(),
	}
}

// metricsAuthMiddleware checks for a valid bearer token
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no token is configured
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.authToken {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the assembled route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Readiness check
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.ledger.CountByState(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Ledger not reachable: %v", err)))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	})

	// Service status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	// Circuit breaker admin control endpoint
	mux.HandleFunc("POST /circuit/reset", s.handleCircuitReset)

	// Force an expiry sweep outside the regular interval
	mux.HandleFunc("POST /reconcile", s.handleReconcile)

	// Owner-facing refund endpoint
	mux.HandleFunc("POST /swaps/{id}/refund", s.handleRefund)

	// Expose Prometheus metrics with bearer token authentication
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	return mux
}

// Run serves until the context is cancelled
func (s *Server) Run(ctx context.Context) {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Health server shutdown error: %v", err)
		}
	}()

	s.logger.Info("Starting health and metrics server on port %s", s.port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Health server error: %v", err)
	}
}

// handleStatus reports ledger counts, circuit states, refund totals, and the
// live service counters
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]interface{})
	status["uptime_seconds"] = int64(time.Since(s.started).Seconds())

	counts, err := s.ledger.CountByState(r.Context())
	if err != nil {
		s.logger.Error("Error reading ledger counts for status: %v", err)
	} else {
		swaps := make(map[string]int, len(counts))
		for state, n := range counts {
			swaps[string(state)] = n
		}
		status["swaps"] = swaps
	}

	circuits := make(map[string]interface{}, len(s.breakers))
	for name, cb := range s.breakers {
		circuits[name] = cb.Snapshot()
	}
	status["circuits"] = circuits

	refunded, fees := s.refunds.Totals()
	status["refunds"] = map[string]string{
		"refunded_total": refunded.String(),
		"fees_total":     fees.String(),
	}

	if s.stats != nil {
		for key, value := range s.stats.Stats() {
			status[key] = value
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Error encoding status JSON: %v", err)
	}
}

// handleCircuitReset force-closes a named circuit breaker
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Missing name parameter"))
		return
	}

	cb, ok := s.breakers[name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(fmt.Sprintf("No circuit breaker named %s", name)))
		return
	}

	cb.Reset()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker %s reset", name)))
}

// handleReconcile runs one expiry sweep immediately
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	swept, err := s.sweeper.Sweep(r.Context(), time.Now().UTC())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fmt.Sprintf("Sweep failed: %v", err)))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"swept": swept})
}

// handleRefund refunds a swap on behalf of its owner
func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Invalid swap id"))
		return
	}

	owner := r.URL.Query().Get("owner")
	if !common.IsHexAddress(owner) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Missing or invalid owner parameter"))
		return
	}

	quote, err := s.refunds.Refund(r.Context(), id, common.HexToAddress(owner))
	if err != nil {
		s.writeRefundError(w, id, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"swap_id": strconv.FormatUint(id, 10),
		"amount":  quote.Amount.String(),
		"fee":     quote.Fee.String(),
		"kind":    quote.Kind,
	})
}

// writeRefundError maps refund failures onto HTTP status codes
func (s *Server) writeRefundError(w http.ResponseWriter, id uint64, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, refund.ErrNotOwner):
		w.WriteHeader(http.StatusForbidden)
	case errors.Is(err, refund.ErrRefundIneligible):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, refund.ErrRefundUnsupported):
		w.WriteHeader(http.StatusUnprocessableEntity)
	default:
		s.logger.Error("Refund for swap %d failed: %v", id, err)
		w.WriteHeader(http.StatusInternalServerError)
	}
	_, _ = w.Write([]byte(err.Error()))
}
