package models

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSwapStateTerminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateRefunded.Terminal())

	// FAILED and EXPIRED still admit a refund
	assert.False(t, StateFailed.Terminal())
	assert.False(t, StateExpired.Terminal())

	for _, s := range ActiveStates {
		assert.False(t, s.Terminal(), "state %s", s)
		assert.True(t, s.Active(), "state %s", s)
	}
}

func TestDirectionValid(t *testing.T) {
	assert.True(t, DirectionAToB.Valid())
	assert.True(t, DirectionBToA.Valid())
	assert.False(t, Direction("SIDEWAYS").Valid())
	assert.False(t, Direction("").Valid())
}

func TestSwapClone(t *testing.T) {
	s := &Swap{
		ID:          7,
		InputAmount: big.NewInt(100),
		State:       StateInitiated,
		Deadline:    time.Now().Add(time.Hour),
	}

	c := s.Clone()
	c.InputAmount.SetInt64(999)
	c.State = StateFailed

	assert.Equal(t, int64(100), s.InputAmount.Int64())
	assert.Equal(t, StateInitiated, s.State)
	assert.Nil(t, c.OutputAmount)
}

func TestAttestationComplete(t *testing.T) {
	a := &Attestation{Status: AttestationComplete, Message: []byte{0x01}, Signature: []byte{0x02}}
	assert.True(t, a.Complete())

	// status alone is not a proof
	assert.False(t, (&Attestation{Status: AttestationComplete}).Complete())
	assert.False(t, (&Attestation{Status: AttestationPending, Message: []byte{1}, Signature: []byte{1}}).Complete())
}
