package coordinator

import (
	"sync"
	"time"
)

// inflightRecord tracks one swap currently held by a worker
type inflightRecord struct {
	workerID int
	since    time.Time
}

// inflightRegistry hands out exclusive claims on swap ids so two workers
// never run the saga for the same swap concurrently. The ledger's transitions
// survive a double-run, but the collaborator calls behind them are not free.
type inflightRegistry struct {
	mu      sync.Mutex
	records map[uint64]*inflightRecord
	timeout time.Duration
}

func newInflightRegistry(timeout time.Duration) *inflightRegistry {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &inflightRegistry{
		records: make(map[uint64]*inflightRecord),
		timeout: timeout,
	}
}

// Reserve claims a swap for a worker. Returns false if another worker
// already holds it.
func (r *inflightRegistry) Reserve(swapID uint64, workerID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.records[swapID]; held {
		return false
	}
	r.records[swapID] = &inflightRecord{
		workerID: workerID,
		since:    time.Now(),
	}
	return true
}

// Release drops a worker's claim on a swap
func (r *inflightRegistry) Release(swapID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, swapID)
}

// Held reports whether any worker currently holds the swap
func (r *inflightRegistry) Held(swapID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.records[swapID]
	return held
}

// Count returns the number of swaps currently claimed
func (r *inflightRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// FindStuck returns and releases claims older than the registry timeout.
// A claim that old means the worker's saga pass is wedged on something the
// step timeouts should have bounded, so the claim is broken to let another
// worker pick the swap up.
func (r *inflightRegistry) FindStuck() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var stuck []uint64
	for swapID, rec := range r.records {
		if now.Sub(rec.since) > r.timeout {
			stuck = append(stuck, swapID)
			delete(r.records, swapID)
		}
	}
	return stuck
}
