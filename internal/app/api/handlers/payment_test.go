package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/keybase-market/pimarket/internal/app/api/middleware"
	"github.com/keybase-market/pimarket/internal/app/service/donation"
	"github.com/keybase-market/pimarket/internal/app/service/payment"
	"github.com/keybase-market/pimarket/internal/models"
	"github.com/keybase-market/pimarket/internal/platform/pi"
)

type stubManager struct {
	createErr  error
	approveErr error
	failMsg    string
	swept      []string
}

func (s *stubManager) Create(_ context.Context, req *payment.CreatePaymentRequest) (*payment.Attempt, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &payment.Attempt{ID: "attempt-1", SessionKey: req.SessionID}, nil
}

func (s *stubManager) Approve(_ context.Context, _, _ string) error { return s.approveErr }

func (s *stubManager) Complete(_ context.Context, _, _ string, _ *donation.CompletedDonation) error {
	return nil
}

func (s *stubManager) Cancel(_ context.Context, _, _ string) error { return nil }

func (s *stubManager) Fail(_ context.Context, _, _, _ string) string { return s.failMsg }

func (s *stubManager) Outcome(_ context.Context, _ string) (*payment.PaymentResult, error) {
	return &payment.PaymentResult{Success: true, PaymentID: "p1", TxID: "tx1"}, nil
}

func (s *stubManager) SweepIncomplete(_ context.Context, paymentID string) {
	s.swept = append(s.swept, paymentID)
}

func (s *stubManager) SweepServerPayments(_ context.Context) (int, error) { return len(s.swept), nil }

func fakeAuth(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserKey, user)
		c.Next()
	}
}

func newPaymentRouter(mgr payment.Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api/v1/payments")
	g.Use(fakeAuth(&models.User{ID: "id-1", PiUID: "u1"}))
	RegisterPaymentRoutes(g, mgr)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApiCreatePayment_ReturnsAttemptID(t *testing.T) {
	r := newPaymentRouter(&stubManager{})
	w := postJSON(t, r, "/api/v1/payments/create", map[string]any{"session_id": "s1", "amount": 1.5})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "attempt-1")
	require.Contains(t, w.Body.String(), `"code":0`)
}

func TestApiCreatePayment_InFlightConflict(t *testing.T) {
	r := newPaymentRouter(&stubManager{createErr: payment.ErrAttemptInFlight})
	w := postJSON(t, r, "/api/v1/payments/create", map[string]any{"session_id": "s1", "amount": 1})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":40000`)
}

func TestApiCreatePayment_RejectsNonPositiveAmount(t *testing.T) {
	r := newPaymentRouter(&stubManager{})
	w := postJSON(t, r, "/api/v1/payments/create", map[string]any{"session_id": "s1", "amount": 0})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":40000`)
}

func TestApiApprovePayment_SurfacesGatewayFailure(t *testing.T) {
	r := newPaymentRouter(&stubManager{approveErr: pi.ErrGatewayUnreachable})
	w := postJSON(t, r, "/api/v1/payments/approve", map[string]any{"payment_id": "p1"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":50000`)
}

func TestApiPaymentError_ReturnsMappedMessage(t *testing.T) {
	r := newPaymentRouter(&stubManager{failMsg: payment.ScopeDeniedMessage})
	w := postJSON(t, r, "/api/v1/payments/error", map[string]any{"payment_id": "p1", "message": "scope"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), payment.ScopeDeniedMessage)
}

func TestApiIncompletePayment_Sweeps(t *testing.T) {
	mgr := &stubManager{}
	r := newPaymentRouter(mgr)
	w := postJSON(t, r, "/api/v1/payments/incomplete", map[string]any{"payment_id": "p-old"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"p-old"}, mgr.swept)
}
