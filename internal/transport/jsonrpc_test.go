package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
)

func TestSubmitTransactionParsesSuccessfulResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		checkpoint := "12345"
		_ = checkpoint
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"digest":"abc123","effects":{"status":{"status":"success"}},"checkpoint":"12345"}}`))
	}))
	defer srv.Close()

	client := NewHTTPJSONRPCClient(srv.URL, 0)
	result, err := client.SubmitTransaction(context.Background(), []byte("tx"), [][]byte{[]byte("sig")})
	require.NoError(t, err)
	assert.Equal(t, "abc123", result.Digest)
	assert.True(t, result.HasCheckpoint)
}

func TestSubmitTransactionReturnsProviderErrorOnFailedEffects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"digest":"abc123","effects":{"status":{"status":"failure"}}}}`))
	}))
	defer srv.Close()

	client := NewHTTPJSONRPCClient(srv.URL, 0)
	_, err := client.SubmitTransaction(context.Background(), []byte("tx"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, aggrerrors.ErrProvider)
}

func TestSubmitTransactionReturnsProviderErrorOnRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"insufficient gas"}}`))
	}))
	defer srv.Close()

	client := NewHTTPJSONRPCClient(srv.URL, 0)
	_, err := client.SubmitTransaction(context.Background(), []byte("tx"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, aggrerrors.ErrProvider)
	assert.Contains(t, err.Error(), "insufficient gas")
}

func TestSubmitTransactionReturnsTransportErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPJSONRPCClient(srv.URL, 0)
	_, err := client.SubmitTransaction(context.Background(), []byte("tx"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, aggrerrors.ErrTransport)
}
