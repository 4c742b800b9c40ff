package evm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/txn/evm"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

func chainIDServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)

		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if req.Method == "eth_chainId" {
			resp["result"] = "0xaa36a7"
		} else {
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestRPCClientFailover(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	var hits int32
	live := chainIDServer(t, &hits)
	defer live.Close()

	client, err := evm.NewRPCClient(context.Background(), chain.ProviderConfig{
		Type:      chain.ProviderHTTP,
		URL:       deadURL + "," + live.URL,
		RateLimit: 100,
	}, nil)
	require.NoError(t, err)
	defer client.Close()

	id, err := client.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "11155111", id.String())
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	// Later calls stay on the endpoint that answered.
	_, err = client.ChainID(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestRPCClientNodeErrorDoesNotFailOver(t *testing.T) {
	var first, second int32
	a := chainIDServer(t, &first)
	defer a.Close()
	b := chainIDServer(t, &second)
	defer b.Close()

	client, err := evm.NewRPCClient(context.Background(), chain.ProviderConfig{
		Type: chain.ProviderHTTP,
		URL:  a.URL + "," + b.URL,
	}, nil)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.SuggestGasTipCap(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&first))
	assert.Zero(t, atomic.LoadInt32(&second))
}

func slowServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
}

func TestRPCClientTimeout(t *testing.T) {
	slow := slowServer()
	defer slow.Close()

	client, err := evm.NewRPCClient(context.Background(), chain.ProviderConfig{
		Type:    chain.ProviderHTTP,
		URL:     slow.URL,
		Timeout: 50 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	defer client.Close()

	start := time.Now()
	_, err = client.ChainID(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRPCClientTimeoutFailsOver(t *testing.T) {
	slow := slowServer()
	defer slow.Close()

	var hits int32
	live := chainIDServer(t, &hits)
	defer live.Close()

	client, err := evm.NewRPCClient(context.Background(), chain.ProviderConfig{
		Type:    chain.ProviderHTTP,
		URL:     slow.URL + "," + live.URL,
		Timeout: 50 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	defer client.Close()

	id, err := client.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "11155111", id.String())
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestRPCClientRequiresURL(t *testing.T) {
	_, err := evm.NewRPCClient(context.Background(), chain.ProviderConfig{Type: chain.ProviderHTTP}, nil)
	assert.Error(t, err)
}
