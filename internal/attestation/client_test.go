package attestation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsCompleteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"complete","attestation":"0xdead"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.Get(context.Background(), common.HexToHash("0x1"))
	require.NoError(t, err)
	assert.True(t, resp.Complete())
	assert.Equal(t, "0xdead", resp.Attestation)
}

func TestGetTreatsPendingAsNotComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pending"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.Get(context.Background(), common.HexToHash("0x1"))
	require.NoError(t, err)
	assert.False(t, resp.Complete())
}

func TestGetTreatsHTTPErrorAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Get(context.Background(), common.HexToHash("0x1"))
	assert.Error(t, err)
}
