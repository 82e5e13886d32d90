package attestation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/attestation"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

type fetcherFunc func(ctx context.Context, ref common.Hash) (*models.Attestation, error)

func (f fetcherFunc) FetchAttestation(ctx context.Context, ref common.Hash) (*models.Attestation, error) {
	return f(ctx, ref)
}

func completeAttestation() *models.Attestation {
	return &models.Attestation{
		Status:    models.AttestationComplete,
		Message:   hexutil.Bytes{0x01, 0x02},
		Signature: hexutil.Bytes{0x03, 0x04},
	}
}

func TestWaitReturnsOnComplete(t *testing.T) {
	polls := 0
	fetcher := fetcherFunc(func(ctx context.Context, ref common.Hash) (*models.Attestation, error) {
		polls++
		if polls < 3 {
			return &models.Attestation{Status: models.AttestationPending}, nil
		}
		return completeAttestation(), nil
	})

	w := attestation.NewWaiter(fetcher, 5*time.Millisecond, 50*time.Millisecond, time.Second, nil)
	att, err := w.Wait(context.Background(), common.HexToHash("0x01"), time.Now().Add(time.Minute))

	require.NoError(t, err)
	assert.True(t, att.Complete())
	assert.GreaterOrEqual(t, polls, 3)
}

func TestWaitTimesOutWhilePending(t *testing.T) {
	polls := 0
	fetcher := fetcherFunc(func(ctx context.Context, ref common.Hash) (*models.Attestation, error) {
		polls++
		return &models.Attestation{Status: models.AttestationPending}, nil
	})

	w := attestation.NewWaiter(fetcher, 5*time.Millisecond, 50*time.Millisecond, 30*time.Millisecond, nil)
	_, err := w.Wait(context.Background(), common.HexToHash("0x02"), time.Now().Add(time.Minute))

	require.Error(t, err)
	assert.True(t, errors.Is(err, attestation.ErrAttestationTimeout))
	assert.Greater(t, polls, 1, "should keep polling until the overall budget expires")
}

func TestWaitCapsBudgetAtSwapDeadline(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, ref common.Hash) (*models.Attestation, error) {
		return &models.Attestation{Status: models.AttestationPending}, nil
	})

	w := attestation.NewWaiter(fetcher, 5*time.Millisecond, 50*time.Millisecond, time.Hour, nil)

	start := time.Now()
	_, err := w.Wait(context.Background(), common.HexToHash("0x03"), time.Now().Add(40*time.Millisecond))
	require.Error(t, err)
	assert.True(t, errors.Is(err, attestation.ErrAttestationTimeout))
	assert.Less(t, time.Since(start), time.Second, "deadline should cap the hour-long overall budget")
}

func TestWaitRejectsPastDeadlineWithoutPolling(t *testing.T) {
	polls := 0
	fetcher := fetcherFunc(func(ctx context.Context, ref common.Hash) (*models.Attestation, error) {
		polls++
		return completeAttestation(), nil
	})

	w := attestation.NewWaiter(fetcher, 5*time.Millisecond, 50*time.Millisecond, time.Second, nil)
	_, err := w.Wait(context.Background(), common.HexToHash("0x04"), time.Now().Add(-time.Second))

	require.Error(t, err)
	assert.True(t, errors.Is(err, attestation.ErrAttestationTimeout))
	assert.Zero(t, polls)
}

func TestWaitReportsFailedTransfer(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, ref common.Hash) (*models.Attestation, error) {
		return &models.Attestation{Status: models.AttestationFailed}, nil
	})

	w := attestation.NewWaiter(fetcher, 5*time.Millisecond, 50*time.Millisecond, time.Second, nil)
	_, err := w.Wait(context.Background(), common.HexToHash("0x05"), time.Now().Add(time.Minute))

	require.Error(t, err)
	assert.True(t, errors.Is(err, attestation.ErrTransferFailed))
}

func TestWaitSurvivesTransientFetchErrors(t *testing.T) {
	polls := 0
	fetcher := fetcherFunc(func(ctx context.Context, ref common.Hash) (*models.Attestation, error) {
		polls++
		if polls < 3 {
			return nil, errors.New("connection reset")
		}
		return completeAttestation(), nil
	})

	w := attestation.NewWaiter(fetcher, 5*time.Millisecond, 50*time.Millisecond, time.Second, nil)
	att, err := w.Wait(context.Background(), common.HexToHash("0x06"), time.Now().Add(time.Minute))

	require.NoError(t, err)
	assert.True(t, att.Complete())
}

func TestWaitStopsOnCallerCancel(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, ref common.Hash) (*models.Attestation, error) {
		return &models.Attestation{Status: models.AttestationPending}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	w := attestation.NewWaiter(fetcher, 5*time.Millisecond, 50*time.Millisecond, time.Hour, nil)
	_, err := w.Wait(ctx, common.HexToHash("0x07"), time.Now().Add(time.Hour))

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, attestation.ErrAttestationTimeout))
}
