package payment

import (
	"context"
	"errors"

	"github.com/keybase-market/pimarket/internal/platform/pi"
)

// Gateway is the slice of the Pi client this flow needs. Every call carries
// the client's bounded timeout; retry policy stays here, not in the client.
type Gateway interface {
	ApprovePayment(ctx context.Context, paymentID string) error
	CompletePayment(ctx context.Context, paymentID, txid string) error
	GetPayment(ctx context.Context, paymentID string) (*pi.PaymentInfo, error)
	CancelPayment(ctx context.Context, paymentID string) error
	ListIncompletePayments(ctx context.Context) ([]*pi.PaymentInfo, error)
}

// ErrAttemptInFlight rejects a second attempt while one is in flight for
// the same session; the check happens before any gateway call.
var ErrAttemptInFlight = errors.New("a payment attempt is already in flight for this session")

// ScopeDeniedMessage replaces raw gateway text when the error indicates the
// payments scope was never granted; it tells the user what to actually do.
const ScopeDeniedMessage = "payment permission not granted; log in again to grant the payments scope"

// CancelledMessage is the outcome error for user-cancelled attempts.
const CancelledMessage = "cancelled"

// CreatePaymentRequest registers a new attempt. SessionID keys the
// single-attempt invariant; it falls back to UserUID when empty.
type CreatePaymentRequest struct {
	SessionID string         `json:"session_id"`
	UserUID   string         `json:"user_uid"`
	Amount    float64        `json:"amount"`
	Memo      string         `json:"memo"`
	Metadata  map[string]any `json:"metadata"`
}

func (r *CreatePaymentRequest) sessionKey() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.UserUID
}

// PaymentResult is the outward-facing outcome of an attempt. It resolves
// once, on completion or on one of the terminal callbacks.
type PaymentResult struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"payment_id,omitempty"`
	TxID      string `json:"txid,omitempty"`
	Error     string `json:"error,omitempty"`
}
