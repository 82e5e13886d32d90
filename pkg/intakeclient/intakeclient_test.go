package intakeclient

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const requestJSON = `{
	"request_id": "req-7",
	"owner": "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	"direction": "A_TO_B",
	"input_amount": "1000",
	"min_output_amount": "950",
	"target_address": "0x7099797fD87029a2A7D0bcb5a6B1e22F13f345C0",
	"target_domain": 6,
	"deadline": "2026-09-01T00:00:00Z",
	"status": "pending"
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, nil)
}

func TestFetchPendingRequestsPlainArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/requests", r.URL.Path)
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`[` + requestJSON + `]`))
	})

	requests, err := client.FetchPendingRequests()
	require.NoError(t, err)
	require.Len(t, requests, 1)

	assert.Equal(t, "req-7", requests[0].RequestID)
	assert.Equal(t, "A_TO_B", requests[0].Direction)
	assert.Equal(t, "1000", requests[0].InputAmount)
	assert.Equal(t, uint32(6), requests[0].TargetDomain)
}

func TestFetchPendingRequestsWrappedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"requests": [` + requestJSON + `], "page": 1, "total_count": 1, "total_pages": 1}`))
	})

	requests, err := client.FetchPendingRequests()
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "req-7", requests[0].RequestID)
}

func TestFetchPendingRequestsUnknownWrapperKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [` + requestJSON + `], "total_count": 1}`))
	})

	requests, err := client.FetchPendingRequests()
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "req-7", requests[0].RequestID)
}

func TestFetchPendingRequestsEmptyPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"requests": [], "page": 1, "total_count": 0, "total_pages": 0}`))
	})

	requests, err := client.FetchPendingRequests()
	require.NoError(t, err)
	assert.Empty(t, requests)
}

func TestFetchPendingRequestsServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("intake database down"))
	})

	_, err := client.FetchPendingRequests()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intake database down")
}

func TestAckPostsRequestID(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.Ack("req-7"))
	assert.Equal(t, "/api/v1/requests/req-7/ack", gotPath)
}

func TestAckReportsConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("already accepted elsewhere"))
	})

	err := client.Ack("req-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already accepted elsewhere")
}
