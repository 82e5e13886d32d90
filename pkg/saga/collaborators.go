package saga

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

// ExchangeResult is the venue's report of an executed source-side exchange.
type ExchangeResult struct {
	AmountOut    *big.Int
	ExecutionRef string
}

// ExchangeVenue executes the source-side exchange into the bridgeable asset.
// Calls are keyed by swap id so a blind retry after a transport failure
// cannot double-execute.
type ExchangeVenue interface {
	Swap(ctx context.Context, swapID uint64, direction models.Direction, amountIn, minAmountOut *big.Int) (*ExchangeResult, error)
}

// TransferParams describes one cross-domain transfer. Nonce is the swap id,
// which the relayer uses to deduplicate retried sends.
type TransferParams struct {
	SwapID      uint64
	Amount      *big.Int
	DestDomain  uint32
	DestAddress string
	Nonce       uint64
}

// BridgeRelayer moves value between domains and serves transfer attestations.
type BridgeRelayer interface {
	// Send submits the transfer and returns its handle, the burn-message
	// hash the attestation is later looked up by.
	Send(ctx context.Context, params TransferParams) (common.Hash, error)

	// FetchAttestation returns the current attestation for a transfer
	// handle. A pending attestation is not an error.
	FetchAttestation(ctx context.Context, ref common.Hash) (*models.Attestation, error)

	// Reclaim pulls a stranded transfer back into coordinator custody,
	// located relayer-side by our sender identity and nonce.
	Reclaim(ctx context.Context, nonce uint64) error
}

// DestinationExecutor performs the destination-side completion and reports
// the amount actually delivered to the target address.
type DestinationExecutor interface {
	Complete(ctx context.Context, swapID uint64, att *models.Attestation, destAddress string) (*big.Int, error)
}

// AttestationWaiter blocks until a transfer's attestation is complete, the
// wait budget runs out, or the swap deadline passes.
type AttestationWaiter interface {
	Wait(ctx context.Context, ref common.Hash, deadline time.Time) (*models.Attestation, error)
}
