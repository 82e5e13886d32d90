package coordinator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSettledAccumulatesPerDomain(t *testing.T) {
	v := newVolumeTracker()

	v.RecordSettled(6, big.NewInt(100), big.NewInt(97))
	v.RecordSettled(6, big.NewInt(50), big.NewInt(48))
	v.RecordSettled(3, big.NewInt(7), big.NewInt(6))

	totals := v.Totals()
	assert.Equal(t, big.NewInt(150), totals[6].Input)
	assert.Equal(t, big.NewInt(145), totals[6].Output)
	assert.Equal(t, big.NewInt(7), totals[3].Input)
	assert.Equal(t, big.NewInt(6), totals[3].Output)
}

func TestRecordSettledTracksPartialAmounts(t *testing.T) {
	v := newVolumeTracker()

	v.RecordSettled(6, nil, nil)
	assert.Empty(t, v.Totals())

	v.RecordSettled(6, big.NewInt(100), nil)
	totals := v.Totals()
	require.Contains(t, totals, uint32(6))
	assert.Equal(t, big.NewInt(100), totals[6].Input)
	assert.Zero(t, totals[6].Output.Sign())
}

func TestTotalsReturnsCopies(t *testing.T) {
	v := newVolumeTracker()
	v.RecordSettled(6, big.NewInt(100), big.NewInt(97))

	v.Totals()[6].Input.SetInt64(0)

	assert.Equal(t, big.NewInt(100), v.Totals()[6].Input)
}
