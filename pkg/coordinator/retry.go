package coordinator

import (
	"context"
	"sort"
	"time"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/metrics"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

// maxRetryQueueSize limits the retry queue length
const maxRetryQueueSize = 1000

// scheduleRetryAt queues a retry without blocking the calling worker
func (s *Service) scheduleRetryAt(swapID uint64, attempt int, errorType string, at time.Time) {
	rj := models.RetryJob{
		SwapID:      swapID,
		RetryCount:  attempt,
		NextAttempt: at,
		ErrorType:   errorType,
	}

	select {
	case s.retryJobs <- rj:
		s.logger.Debug("Scheduled retry for swap %d at %s (error: %s)",
			swapID, at.Format(time.RFC3339), errorType)
	default:
		metrics.DroppedRetries.Inc()
		s.logger.Error("Retry channel full, dropping retry for swap %d (error: %s)", swapID, errorType)
	}
}

// retryHandler holds scheduled retries until they are due, then feeds them
// back into the worker queue
func (s *Service) retryHandler(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var queue []models.RetryJob

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retry handler shutting down with %d queued retries", len(queue))
			return
		case rj := <-s.retryJobs:
			if len(queue) >= maxRetryQueueSize {
				metrics.DroppedRetries.Inc()
				s.logger.Error("Retry queue at capacity (%d jobs), dropping retry for swap %d",
					maxRetryQueueSize, rj.SwapID)
				continue
			}
			queue = append(queue, rj)

			// Keep the queue sorted by due time so dispatch can stop at
			// the first job that is not due yet
			sort.Slice(queue, func(i, j int) bool {
				return queue[i].NextAttempt.Before(queue[j].NextAttempt)
			})
			metrics.RetryQueueSize.Set(float64(len(queue)))
		case <-ticker.C:
			now := time.Now()
			dispatched := 0
			for _, rj := range queue {
				if rj.NextAttempt.After(now) {
					break
				}
				select {
				case s.pendingJobs <- job{SwapID: rj.SwapID, Attempt: rj.RetryCount}:
					metrics.RetriesExecuted.WithLabelValues(rj.ErrorType).Inc()
					dispatched++
				case <-ctx.Done():
					return
				}
			}
			if dispatched > 0 {
				queue = queue[dispatched:]
				s.logger.Debug("Dispatched %d retries, %d still queued", dispatched, len(queue))
			}
			metrics.RetryQueueSize.Set(float64(len(queue)))
		}
	}
}
