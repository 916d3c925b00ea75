package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/keybase-market/pimarket/pkg/tool"
	"github.com/keybase-market/pimarket/pkg/types"
)

// Attempt is one payment driven through the three-callback protocol:
//
//	created -> pendingApproval -> approved -> pendingCompletion -> completed
//
// with cancelled/failed as the other terminal states. The backend is purely
// reactive: every transition is triggered by a client-runtime callback, and
// between callbacks the attempt just waits. The struct reacts to events
// directly so tests can drive each transition without a real runtime.
type Attempt struct {
	ID         string
	SessionKey string
	UserUID    string
	Amount     float64
	Memo       string
	Metadata   map[string]any

	mu        sync.Mutex
	paymentID string
	txid      string
	status    types.PaymentStatus
	failure   string

	done   chan struct{}
	result *PaymentResult
}

func newAttempt(req *CreatePaymentRequest) *Attempt {
	return &Attempt{
		ID:         tool.GenerateUUIDV7(),
		SessionKey: req.sessionKey(),
		UserUID:    req.UserUID,
		Amount:     req.Amount,
		Memo:       req.Memo,
		Metadata:   req.Metadata,
		status:     types.PaymentStatusCreated,
		done:       make(chan struct{}),
	}
}

func (a *Attempt) Status() types.PaymentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Attempt) PaymentID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paymentID
}

// bindPayment records the gateway-assigned payment id reported by the
// readyForApproval callback and moves created -> pendingApproval.
func (a *Attempt) bindPayment(paymentID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.Terminal() {
		return fmt.Errorf("attempt already %s", a.status)
	}
	if a.paymentID != "" && a.paymentID != paymentID {
		return fmt.Errorf("attempt is bound to payment %s, got %s", a.paymentID, paymentID)
	}
	a.paymentID = paymentID
	if a.status == types.PaymentStatusCreated {
		a.status = types.PaymentStatusPendingApproval
	}
	return nil
}

func (a *Attempt) markApproved() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.status.Terminal() {
		a.status = types.PaymentStatusApproved
	}
}

// markPendingCompletion records the ledger txid reported by the
// readyForCompletion callback.
func (a *Attempt) markPendingCompletion(txid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.Terminal() {
		return
	}
	a.txid = txid
	a.status = types.PaymentStatusPendingCompletion
}

// failQuietly marks the attempt failed without resolving the outcome. Used
// on approval failures: the gateway's own error path may still deliver a
// cancel or error callback, and that callback is the authoritative end of
// the attempt.
func (a *Attempt) failQuietly(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.Terminal() {
		return
	}
	a.status = types.PaymentStatusFailed
	a.failure = reason
}

func (a *Attempt) failureReason() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failure
}

// resolve settles the outward-facing outcome exactly once and sets the
// final status. Later resolutions are discarded, which also covers gateway
// calls racing a cancellation.
func (a *Attempt) resolve(status types.PaymentStatus, res *PaymentResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result != nil {
		return
	}
	a.status = status
	a.result = res
	close(a.done)
}

// Outcome blocks until the attempt settles or ctx expires. There is no
// internal deadline between callbacks: a stalled client runtime leaves the
// attempt pending until the user abandons or retries.
func (a *Attempt) Outcome(ctx context.Context) (*PaymentResult, error) {
	select {
	case <-a.done:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the outcome has resolved.
func (a *Attempt) Settled() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
