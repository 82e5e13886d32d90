package models

import (
	"time"
)

// SwapEvent is emitted on every accepted ledger transition
type SwapEvent struct {
	SwapID    uint64    `json:"swap_id"`
	OldState  SwapState `json:"old_state"`
	NewState  SwapState `json:"new_state"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
