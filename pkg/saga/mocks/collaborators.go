package mocks

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/saga"
)

// VenueCall records one exchange request seen by the mock venue.
type VenueCall struct {
	SwapID   uint64
	AmountIn *big.Int
}

// MockVenue implements saga.ExchangeVenue with a proportional fill.
type MockVenue struct {
	mu sync.Mutex

	// FillBps sets the fill as a fraction of the input in basis points.
	FillBps int64
	// Err, when set, is returned instead of a fill.
	Err error
	// SwapFunc, when set, replaces the default behavior entirely.
	SwapFunc func(ctx context.Context, swapID uint64, direction models.Direction, amountIn, minAmountOut *big.Int) (*saga.ExchangeResult, error)

	Calls []VenueCall
}

// NewMockVenue creates a venue that fills at 98% of the input.
func NewMockVenue() *MockVenue {
	return &MockVenue{FillBps: 9800}
}

func (m *MockVenue) Swap(ctx context.Context, swapID uint64, direction models.Direction, amountIn, minAmountOut *big.Int) (*saga.ExchangeResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, VenueCall{SwapID: swapID, AmountIn: new(big.Int).Set(amountIn)})
	m.mu.Unlock()

	if m.SwapFunc != nil {
		return m.SwapFunc(ctx, swapID, direction, amountIn, minAmountOut)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	out := new(big.Int).Mul(amountIn, big.NewInt(m.FillBps))
	out.Div(out, big.NewInt(10000))
	if out.Cmp(minAmountOut) < 0 {
		return nil, &saga.CollaboratorError{Collaborator: "exchange", Err: fmt.Errorf("fill %s below floor %s", out, minAmountOut)}
	}
	return &saga.ExchangeResult{AmountOut: out, ExecutionRef: fmt.Sprintf("venue-exec-%d", swapID)}, nil
}

// CallCount returns how many exchange requests the venue has seen.
func (m *MockVenue) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockBridge implements saga.BridgeRelayer. By default every send is
// accepted with a handle derived from the nonce, and a complete attestation
// is registered for it immediately.
type MockBridge struct {
	mu sync.Mutex

	// SendErr, when set, is returned from Send.
	SendErr error
	// SendFunc, when set, replaces the default Send behavior.
	SendFunc func(ctx context.Context, params saga.TransferParams) (common.Hash, error)
	// FetchErr, when set, is returned from FetchAttestation.
	FetchErr error
	// FetchFunc, when set, replaces the default FetchAttestation behavior.
	FetchFunc func(ctx context.Context, ref common.Hash) (*models.Attestation, error)
	// ReclaimErr, when set, is returned from Reclaim.
	ReclaimErr error

	// Attestations is the relayer-side attestation table, keyed by handle.
	Attestations map[common.Hash]*models.Attestation

	SendCalls    []saga.TransferParams
	ReclaimCalls []uint64
}

// NewMockBridge creates a bridge with an empty attestation table.
func NewMockBridge() *MockBridge {
	return &MockBridge{Attestations: make(map[common.Hash]*models.Attestation)}
}

// HandleForNonce returns the deterministic transfer handle the default Send
// produces for a nonce.
func HandleForNonce(nonce uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(nonce))
}

func (m *MockBridge) Send(ctx context.Context, params saga.TransferParams) (common.Hash, error) {
	m.mu.Lock()
	m.SendCalls = append(m.SendCalls, params)
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, params)
	}
	if m.SendErr != nil {
		return common.Hash{}, m.SendErr
	}

	ref := HandleForNonce(params.Nonce)
	m.mu.Lock()
	if _, ok := m.Attestations[ref]; !ok {
		m.Attestations[ref] = &models.Attestation{
			Status:    models.AttestationComplete,
			Message:   hexutil.Bytes{0xbe, 0xef},
			Signature: hexutil.Bytes{0xca, 0xfe},
		}
	}
	m.mu.Unlock()
	return ref, nil
}

func (m *MockBridge) FetchAttestation(ctx context.Context, ref common.Hash) (*models.Attestation, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, ref)
	}
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if att, ok := m.Attestations[ref]; ok {
		return att, nil
	}
	return &models.Attestation{Status: models.AttestationPending}, nil
}

func (m *MockBridge) Reclaim(ctx context.Context, nonce uint64) error {
	m.mu.Lock()
	m.ReclaimCalls = append(m.ReclaimCalls, nonce)
	m.mu.Unlock()
	return m.ReclaimErr
}

// SetAttestation overwrites the relayer-side attestation for a handle.
func (m *MockBridge) SetAttestation(ref common.Hash, att *models.Attestation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attestations[ref] = att
}

// SendCount returns how many transfers the bridge has seen.
func (m *MockBridge) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SendCalls)
}

// DestinationCall records one completion seen by the mock destination.
type DestinationCall struct {
	SwapID      uint64
	DestAddress string
}

// MockDestination implements saga.DestinationExecutor with a fixed delivered
// amount.
type MockDestination struct {
	mu sync.Mutex

	// Delivered is the amount reported for every completion.
	Delivered *big.Int
	// Err, when set, is returned instead of a delivery.
	Err error
	// CompleteFunc, when set, replaces the default behavior.
	CompleteFunc func(ctx context.Context, swapID uint64, att *models.Attestation, destAddress string) (*big.Int, error)

	Calls []DestinationCall
}

// NewMockDestination creates a destination that always delivers the given
// amount.
func NewMockDestination(delivered *big.Int) *MockDestination {
	return &MockDestination{Delivered: new(big.Int).Set(delivered)}
}

func (m *MockDestination) Complete(ctx context.Context, swapID uint64, att *models.Attestation, destAddress string) (*big.Int, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, DestinationCall{SwapID: swapID, DestAddress: destAddress})
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, swapID, att, destAddress)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return new(big.Int).Set(m.Delivered), nil
}

// CallCount returns how many completions the destination has seen.
func (m *MockDestination) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
