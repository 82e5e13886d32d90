package bridgeclient

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/saga"
)

var testHandle = common.HexToHash("0x8f3b2a5d1e9c7f4a6b8d0e2c4a6f8b1d3e5c7a9f1b3d5e7c9a1f3b5d7e9c1a3f")

func testParams() saga.TransferParams {
	return saga.TransferParams{
		SwapID:      42,
		Amount:      big.NewInt(980),
		DestDomain:  6,
		DestAddress: "0x7099797fD87029a2A7D0bcb5a6B1e22F13f345C0",
		Nonce:       42,
	}
}

func TestSendReturnsHandle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/transfers", r.URL.Path)

		var req transferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, uint64(42), req.SwapID)
		assert.Equal(t, "980", req.Amount)
		assert.Equal(t, uint32(6), req.DestDomain)
		assert.Equal(t, uint64(42), req.Nonce)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"handle": "` + testHandle.Hex() + `", "status": "accepted"}`))
	}))
	defer server.Close()

	client := New(server.URL, nil)
	handle, err := client.Send(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, testHandle, handle)
}

func TestSendClassifiesRejectionAsBridgeFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error": "destination domain suspended"}`))
	}))
	defer server.Close()

	client := New(server.URL, nil)
	_, err := client.Send(context.Background(), testParams())

	var cerr *saga.CollaboratorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "bridge", cerr.Collaborator)
	assert.Contains(t, cerr.Error(), "destination domain suspended")
}

func TestSendSurfacesStrandedTransfer(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"explicit stranded status", `{"handle": "", "status": "stranded"}`},
		{"accepted without handle", `{"status": "accepted"}`},
		{"unusable handle", `{"handle": "0x0", "status": "accepted"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := New(server.URL, nil)
			_, err := client.Send(context.Background(), testParams())
			assert.ErrorIs(t, err, saga.ErrTransferStranded)
		})
	}
}

func TestSendTreatsServerErrorsAsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, nil)
	_, err := client.Send(context.Background(), testParams())
	require.Error(t, err)

	var cerr *saga.CollaboratorError
	assert.False(t, errors.As(err, &cerr))
	assert.False(t, errors.Is(err, saga.ErrTransferStranded))
}

func TestFetchAttestationPendingOnUnknownHandle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, nil)
	att, err := client.FetchAttestation(context.Background(), testHandle)
	require.NoError(t, err)
	assert.Nil(t, att)
}

func TestFetchAttestationDecodesProof(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/attestations/"+testHandle.Hex(), r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "complete", "message": "0xbeef", "signature": "0xcafe"}`))
	}))
	defer server.Close()

	client := New(server.URL, nil)
	att, err := client.FetchAttestation(context.Background(), testHandle)
	require.NoError(t, err)
	require.NotNil(t, att)

	assert.True(t, att.Complete())
	assert.Equal(t, models.AttestationComplete, att.Status)
	assert.Equal(t, []byte{0xbe, 0xef}, []byte(att.Message))
}

func TestReclaimPostsNonce(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := New(server.URL, nil)
	require.NoError(t, client.Reclaim(context.Background(), 42))
	assert.Equal(t, "/api/v1/transfers/42/reclaim", gotPath)
}

func TestReclaimReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("transfer already settled"))
	}))
	defer server.Close()

	client := New(server.URL, nil)
	err := client.Reclaim(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transfer already settled")
}

func TestCompleteReturnsDeliveredAmount(t *testing.T) {
	att := &models.Attestation{
		Status:    models.AttestationComplete,
		Message:   []byte{0xbe, 0xef},
		Signature: []byte{0xca, 0xfe},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/completions", r.URL.Path)

		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, uint64(42), req.SwapID)
		assert.Equal(t, []byte{0xbe, 0xef}, []byte(req.Message))
		assert.Equal(t, []byte{0xca, 0xfe}, []byte(req.Signature))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"amount_out": "970"}`))
	}))
	defer server.Close()

	client := New(server.URL, nil)
	amount, err := client.Complete(context.Background(), 42, att, "0x7099797fD87029a2A7D0bcb5a6B1e22F13f345C0")
	require.NoError(t, err)
	assert.Equal(t, int64(970), amount.Int64())
}

func TestCompleteClassifiesRejectionAsDestinationFault(t *testing.T) {
	att := &models.Attestation{
		Status:    models.AttestationComplete,
		Message:   []byte{0xbe, 0xef},
		Signature: []byte{0xca, 0xfe},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "attestation signature invalid"}`))
	}))
	defer server.Close()

	client := New(server.URL, nil)
	_, err := client.Complete(context.Background(), 42, att, "0x7099797fD87029a2A7D0bcb5a6B1e22F13f345C0")

	var cerr *saga.CollaboratorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "destination", cerr.Collaborator)
	assert.Contains(t, cerr.Error(), "attestation signature invalid")
}
