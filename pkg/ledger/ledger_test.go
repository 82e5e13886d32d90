package ledger_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/ledger/memory"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

var allStates = []models.SwapState{
	models.StateInitiated,
	models.StateSourceExchangeDone,
	models.StateBridgeSent,
	models.StateBridgeConfirmed,
	models.StateCompleted,
	models.StateFailed,
	models.StateRefunded,
	models.StateExpired,
}

type edge struct{ from, to models.SwapState }

// the full set of legal lifecycle edges
var legalEdges = []edge{
	{models.StateInitiated, models.StateSourceExchangeDone},
	{models.StateInitiated, models.StateFailed},
	{models.StateInitiated, models.StateExpired},
	{models.StateSourceExchangeDone, models.StateBridgeSent},
	{models.StateSourceExchangeDone, models.StateFailed},
	{models.StateSourceExchangeDone, models.StateExpired},
	{models.StateBridgeSent, models.StateBridgeConfirmed},
	{models.StateBridgeSent, models.StateFailed},
	{models.StateBridgeSent, models.StateExpired},
	{models.StateBridgeConfirmed, models.StateCompleted},
	{models.StateBridgeConfirmed, models.StateFailed},
	{models.StateBridgeConfirmed, models.StateExpired},
	{models.StateFailed, models.StateRefunded},
	{models.StateExpired, models.StateRefunded},
}

func isLegal(from, to models.SwapState) bool {
	for _, e := range legalEdges {
		if e.from == from && e.to == to {
			return true
		}
	}
	return false
}

func newLedger(t *testing.T) (*ledger.Ledger, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return ledger.New(store, &logger.EmptyLogger{}), store
}

// seed inserts a swap directly into the store in the given state, bypassing
// Create so tests can start from any point of the lifecycle.
func seed(t *testing.T, store *memory.Store, state models.SwapState) *models.Swap {
	t.Helper()
	swap := &models.Swap{
		Owner:           common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Direction:       models.DirectionAToB,
		InputAmount:     big.NewInt(100),
		MinOutputAmount: big.NewInt(90),
		TargetAddress:   "0x2000000000000000000000000000000000000002",
		TargetDomain:    6,
		Deadline:        time.Now().Add(time.Hour),
		State:           state,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	require.NoError(t, store.Insert(context.Background(), swap))
	return swap
}

func mutationFor(to models.SwapState) *ledger.Mutation {
	switch to {
	case models.StateCompleted, models.StateRefunded:
		return &ledger.Mutation{OutputAmount: big.NewInt(95)}
	case models.StateFailed:
		return &ledger.Mutation{FailureReason: "step failed"}
	}
	return nil
}

func TestRecordTransitionGraph(t *testing.T) {
	ctx := context.Background()

	for _, from := range allStates {
		for _, to := range allStates {
			if from == to {
				continue
			}
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				l, store := newLedger(t)
				swap := seed(t, store, from)

				applied, err := l.RecordTransition(ctx, swap.ID, to, "test", mutationFor(to))
				if isLegal(from, to) {
					require.NoError(t, err)
					assert.True(t, applied)

					got, err := l.Get(ctx, swap.ID)
					require.NoError(t, err)
					assert.Equal(t, to, got.State)
				} else {
					require.ErrorIs(t, err, ledger.ErrInvalidTransition)
					assert.False(t, applied)

					got, err := l.Get(ctx, swap.ID)
					require.NoError(t, err)
					assert.Equal(t, from, got.State)
				}
			})
		}
	}
}

func TestRecordTransitionIdempotent(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)
	swap := seed(t, store, models.StateInitiated)

	applied, err := l.RecordTransition(ctx, swap.ID, models.StateSourceExchangeDone, "exchange done",
		&ledger.Mutation{IntermediateAmount: big.NewInt(98)})
	require.NoError(t, err)
	require.True(t, applied)

	before, err := l.Get(ctx, swap.ID)
	require.NoError(t, err)

	// repeat delivery of the same transition is a silent no-op
	applied, err = l.RecordTransition(ctx, swap.ID, models.StateSourceExchangeDone, "exchange done",
		&ledger.Mutation{IntermediateAmount: big.NewInt(55)})
	require.NoError(t, err)
	assert.False(t, applied)

	after, err := l.Get(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, int64(98), after.IntermediateAmount.Int64())
}

func TestRecordTransitionConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)
	swap := seed(t, store, models.StateInitiated)

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan bool, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := l.RecordTransition(ctx, swap.ID, models.StateSourceExchangeDone, "racing", nil)
			assert.NoError(t, err)
			results <- applied
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for applied := range results {
		if applied {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one writer applies the transition")
}

func TestRecordTransitionNotFound(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.RecordTransition(context.Background(), 999, models.StateFailed, "", nil)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestMutationRules(t *testing.T) {
	ctx := context.Background()

	t.Run("output_amount_only_terminal", func(t *testing.T) {
		l, store := newLedger(t)
		swap := seed(t, store, models.StateInitiated)

		_, err := l.RecordTransition(ctx, swap.ID, models.StateSourceExchangeDone, "",
			&ledger.Mutation{OutputAmount: big.NewInt(95)})
		require.ErrorIs(t, err, ledger.ErrInvalidInput)
	})

	t.Run("failure_reason_only_failed", func(t *testing.T) {
		l, store := newLedger(t)
		swap := seed(t, store, models.StateInitiated)

		_, err := l.RecordTransition(ctx, swap.ID, models.StateSourceExchangeDone, "",
			&ledger.Mutation{FailureReason: "nope"})
		require.ErrorIs(t, err, ledger.ErrInvalidInput)
	})

	t.Run("attestation_ref_set_once", func(t *testing.T) {
		l, store := newLedger(t)
		swap := seed(t, store, models.StateSourceExchangeDone)

		ref := common.HexToHash("0x01")
		applied, err := l.RecordTransition(ctx, swap.ID, models.StateBridgeSent, "sent",
			&ledger.Mutation{AttestationRef: &ref})
		require.NoError(t, err)
		require.True(t, applied)

		other := common.HexToHash("0x02")
		_, err = l.RecordTransition(ctx, swap.ID, models.StateBridgeConfirmed, "confirmed",
			&ledger.Mutation{AttestationRef: &other})
		require.ErrorIs(t, err, ledger.ErrDuplicateRef)
	})

	t.Run("attestation_ref_unique_across_swaps", func(t *testing.T) {
		l, store := newLedger(t)
		first := seed(t, store, models.StateSourceExchangeDone)
		second := seed(t, store, models.StateSourceExchangeDone)

		ref := common.HexToHash("0xbeef")
		applied, err := l.RecordTransition(ctx, first.ID, models.StateBridgeSent, "sent",
			&ledger.Mutation{AttestationRef: &ref})
		require.NoError(t, err)
		require.True(t, applied)

		_, err = l.RecordTransition(ctx, second.ID, models.StateBridgeSent, "sent",
			&ledger.Mutation{AttestationRef: &ref})
		require.ErrorIs(t, err, ledger.ErrDuplicateRef)

		got, err := l.GetByAttestationRef(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})
}

func TestCreateAndEvents(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	swap := &models.Swap{
		Owner:           common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Direction:       models.DirectionAToB,
		InputAmount:     big.NewInt(100),
		MinOutputAmount: big.NewInt(90),
		TargetAddress:   "0x2000000000000000000000000000000000000002",
		TargetDomain:    6,
		Deadline:        time.Now().Add(time.Hour),
	}
	require.NoError(t, l.Create(ctx, swap))
	assert.Equal(t, models.StateInitiated, swap.State)
	assert.False(t, swap.CreatedAt.IsZero())

	ev := nextEvent(t, l)
	assert.Equal(t, swap.ID, ev.SwapID)
	assert.Equal(t, models.StateInitiated, ev.NewState)

	applied, err := l.RecordTransition(ctx, swap.ID, models.StateSourceExchangeDone, "venue filled",
		&ledger.Mutation{IntermediateAmount: big.NewInt(98)})
	require.NoError(t, err)
	require.True(t, applied)

	ev = nextEvent(t, l)
	assert.Equal(t, models.StateInitiated, ev.OldState)
	assert.Equal(t, models.StateSourceExchangeDone, ev.NewState)
	assert.Equal(t, "venue filled", ev.Reason)
	assert.False(t, ev.Timestamp.IsZero())
}

func nextEvent(t *testing.T, l *ledger.Ledger) models.SwapEvent {
	t.Helper()
	select {
	case ev := <-l.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
		return models.SwapEvent{}
	}
}
