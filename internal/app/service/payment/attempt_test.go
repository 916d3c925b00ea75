package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keybase-market/pimarket/pkg/types"
)

func TestAttempt_WalksHappyPath(t *testing.T) {
	a := newAttempt(&CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 2})
	require.Equal(t, types.PaymentStatusCreated, a.Status())

	require.NoError(t, a.bindPayment("p1"))
	require.Equal(t, types.PaymentStatusPendingApproval, a.Status())
	require.Equal(t, "p1", a.PaymentID())

	a.markApproved()
	require.Equal(t, types.PaymentStatusApproved, a.Status())

	a.markPendingCompletion("tx1")
	require.Equal(t, types.PaymentStatusPendingCompletion, a.Status())

	a.resolve(types.PaymentStatusCompleted, &PaymentResult{Success: true, PaymentID: "p1", TxID: "tx1"})
	require.True(t, a.Settled())

	res, err := a.Outcome(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "tx1", res.TxID)
}

func TestAttempt_RejectsRebindingToAnotherPayment(t *testing.T) {
	a := newAttempt(&CreatePaymentRequest{SessionID: "s1", Amount: 1})
	require.NoError(t, a.bindPayment("p1"))
	require.Error(t, a.bindPayment("p2"))
	require.NoError(t, a.bindPayment("p1"))
}

func TestAttempt_FailQuietlyLeavesOutcomeOpen(t *testing.T) {
	a := newAttempt(&CreatePaymentRequest{SessionID: "s1", Amount: 1})
	require.NoError(t, a.bindPayment("p1"))

	a.failQuietly("gateway said no")
	require.Equal(t, types.PaymentStatusFailed, a.Status())
	require.False(t, a.Settled())

	// The terminal callback still settles the outward promise.
	a.resolve(types.PaymentStatusCancelled, &PaymentResult{Success: false, Error: CancelledMessage})
	require.True(t, a.Settled())

	res, err := a.Outcome(context.Background())
	require.NoError(t, err)
	require.Equal(t, CancelledMessage, res.Error)
}

func TestAttempt_ResolvesExactlyOnce(t *testing.T) {
	a := newAttempt(&CreatePaymentRequest{SessionID: "s1", Amount: 1})
	a.resolve(types.PaymentStatusCompleted, &PaymentResult{Success: true, PaymentID: "p1"})
	a.resolve(types.PaymentStatusCancelled, &PaymentResult{Success: false, Error: CancelledMessage})

	res, err := a.Outcome(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, types.PaymentStatusCompleted, a.Status())
}

func TestAttempt_OutcomeHonorsContext(t *testing.T) {
	a := newAttempt(&CreatePaymentRequest{SessionID: "s1", Amount: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Outcome(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
