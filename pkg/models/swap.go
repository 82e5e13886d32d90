package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SwapState identifies a stage in a swap's lifecycle.
type SwapState string

const (
	StateInitiated          SwapState = "INITIATED"
	StateSourceExchangeDone SwapState = "SOURCE_EXCHANGE_DONE"
	StateBridgeSent         SwapState = "BRIDGE_SENT"
	StateBridgeConfirmed    SwapState = "BRIDGE_CONFIRMED"
	StateCompleted          SwapState = "COMPLETED"
	StateFailed             SwapState = "FAILED"
	StateRefunded           SwapState = "REFUNDED"
	StateExpired            SwapState = "EXPIRED"
)

// ActiveStates are the states from which forward saga progress is still possible.
var ActiveStates = []SwapState{
	StateInitiated,
	StateSourceExchangeDone,
	StateBridgeSent,
	StateBridgeConfirmed,
}

// Terminal reports whether no further progress of any kind occurs from s.
// FAILED and EXPIRED are not terminal: both still admit a refund.
func (s SwapState) Terminal() bool {
	return s == StateCompleted || s == StateRefunded
}

// Active reports whether s is a state the saga can still advance from.
func (s SwapState) Active() bool {
	switch s {
	case StateInitiated, StateSourceExchangeDone, StateBridgeSent, StateBridgeConfirmed:
		return true
	}
	return false
}

// Direction fixes which chain is the source and which is the destination.
type Direction string

const (
	DirectionAToB Direction = "A_TO_B"
	DirectionBToA Direction = "B_TO_A"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionAToB || d == DirectionBToA
}

// Swap is the ledger record of one cross-chain swap.
type Swap struct {
	ID                 uint64         `json:"id"`
	Owner              common.Address `json:"owner"`
	Direction          Direction      `json:"direction"`
	InputAmount        *big.Int       `json:"input_amount"`
	MinOutputAmount    *big.Int       `json:"min_output_amount"`
	IntermediateAmount *big.Int       `json:"intermediate_amount,omitempty"`
	OutputAmount       *big.Int       `json:"output_amount,omitempty"`
	TargetAddress      string         `json:"target_address"`
	TargetDomain       uint32         `json:"target_domain"`
	Deadline           time.Time      `json:"deadline"`
	State              SwapState      `json:"state"`
	AttestationRef     common.Hash    `json:"attestation_ref"`
	FailureReason      string         `json:"failure_reason,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// HasAttestationRef reports whether the transfer handle has been recorded.
func (s *Swap) HasAttestationRef() bool {
	return s.AttestationRef != (common.Hash{})
}

// Expired reports whether the swap's deadline has passed at the given time.
func (s *Swap) Expired(now time.Time) bool {
	return now.After(s.Deadline)
}

// Clone returns a deep copy so callers can't mutate shared ledger state.
func (s *Swap) Clone() *Swap {
	c := *s
	if s.InputAmount != nil {
		c.InputAmount = new(big.Int).Set(s.InputAmount)
	}
	if s.MinOutputAmount != nil {
		c.MinOutputAmount = new(big.Int).Set(s.MinOutputAmount)
	}
	if s.IntermediateAmount != nil {
		c.IntermediateAmount = new(big.Int).Set(s.IntermediateAmount)
	}
	if s.OutputAmount != nil {
		c.OutputAmount = new(big.Int).Set(s.OutputAmount)
	}
	return &c
}
