package models

import (
	"time"
)

// SwapRequest is a swap submission pulled from the intake API.
// Amounts travel as decimal strings and are parsed at submission.
type SwapRequest struct {
	RequestID       string    `json:"request_id"`
	Owner           string    `json:"owner"`
	Direction       string    `json:"direction"`
	InputAmount     string    `json:"input_amount"`
	MinOutputAmount string    `json:"min_output_amount"`
	TargetAddress   string    `json:"target_address"`
	TargetDomain    uint32    `json:"target_domain"`
	Deadline        time.Time `json:"deadline"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
