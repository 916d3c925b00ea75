package pi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keybase-market/pimarket/pkg/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Pi.APIKey = "test-key"
	cfg.Pi.BaseURL = srv.URL
	c, err := NewClient(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	return c, srv
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	cfg := &config.Config{}
	_, err := NewClient(cfg, zap.NewNop().Sugar())
	require.Error(t, err)
}

func TestVerifyToken_SendsBearerAndParsesUser(t *testing.T) {
	var gotAuth string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"uid": "uid-1", "username": "pioneer", "wallet_address": "GABC",
		})
	}))

	user, err := c.VerifyToken(context.Background(), "tok-123")
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-123", gotAuth)
	require.Equal(t, "uid-1", user.UID)
	require.Equal(t, "pioneer", user.Username)
}

func TestVerifyToken_ExpiredToken(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.VerifyToken(context.Background(), "stale")
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyToken_GatewayUnreachable(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := c.VerifyToken(context.Background(), "tok")
	require.ErrorIs(t, err, ErrGatewayUnreachable)
}

func TestApprovePayment_UsesKeyAuth(t *testing.T) {
	var gotAuth, gotPath string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{"identifier": "p1"})
	}))

	require.NoError(t, c.ApprovePayment(context.Background(), "p1"))
	require.Equal(t, "Key test-key", gotAuth)
	require.Equal(t, "/payments/p1/approve", gotPath)
}

func TestCompletePayment_AlreadyCompleted(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "already_completed", "error_message": "payment already completed",
		})
	}))

	err := c.CompletePayment(context.Background(), "p1", "tx1")
	require.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestCompletePayment_GatewayError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "invalid_transaction", "error_message": "txid mismatch",
		})
	}))

	err := c.CompletePayment(context.Background(), "p1", "tx-bad")
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, "invalid_transaction", gwErr.Code)
	require.Equal(t, http.StatusBadRequest, gwErr.Status)
	require.False(t, errors.Is(err, ErrAlreadyCompleted))
}

func TestListIncompletePayments(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/incomplete_server_payments", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"incomplete_server_payments": []map[string]any{
				{"identifier": "p1", "amount": 3.14},
				{"identifier": "p2", "amount": 1.0},
			},
		})
	}))

	infos, err := c.ListIncompletePayments(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, "p1", infos[0].Identifier)
}
