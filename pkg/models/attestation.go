package models

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AttestationStatus is the relayer-reported status of a transfer proof.
type AttestationStatus string

const (
	AttestationPending  AttestationStatus = "pending_confirmations"
	AttestationComplete AttestationStatus = "complete"
	AttestationFailed   AttestationStatus = "failed"
)

// Attestation is a signed proof from the bridge's validator set that a
// cross-chain transfer happened and is safe to act on at the destination.
type Attestation struct {
	Status    AttestationStatus `json:"status"`
	Message   hexutil.Bytes     `json:"message"`
	Signature hexutil.Bytes     `json:"signature"`
}

// Complete reports whether the proof is full and usable. A "complete" status
// with an empty message or signature is a malformed relayer response, never
// returned to callers as a proof.
func (a *Attestation) Complete() bool {
	return a.Status == AttestationComplete && len(a.Message) > 0 && len(a.Signature) > 0
}
