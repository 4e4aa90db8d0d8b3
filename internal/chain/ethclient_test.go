package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id"`
}

type rpcResponder func(req rpcRequest) interface{}

func newJSONRPCServer(t *testing.T, handlers map[string]rpcResponder) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		h, ok := handlers[req.Method]
		if !ok {
			t.Fatalf("unexpected RPC method %s", req.Method)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      json.RawMessage(req.ID),
			"result":  h(req),
		})
	}))
}

func TestHeadBlockReturnsCurrentBlockNumber(t *testing.T) {
	srv := newJSONRPCServer(t, map[string]rpcResponder{
		"eth_chainId":     func(rpcRequest) interface{} { return "0x1" },
		"eth_blockNumber": func(rpcRequest) interface{} { return "0x64" },
	})
	defer srv.Close()

	conn, err := NewEthConnector(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	head, err := conn.HeadBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), head)
}

func TestNewEthConnectorWrapsDialFailureAsTransient(t *testing.T) {
	_, err := NewEthConnector(context.Background(), "http://127.0.0.1:0", nil)
	require.ErrorIs(t, err, ErrTransientRPC)
}

func TestGetLogsReturnsEmptyForInvertedRange(t *testing.T) {
	srv := newJSONRPCServer(t, map[string]rpcResponder{
		"eth_chainId": func(rpcRequest) interface{} { return "0x1" },
	})
	defer srv.Close()

	conn, err := NewEthConnector(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	logs, err := conn.GetLogs(context.Background(), 10, 5, common.Address{}, common.Hash{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

