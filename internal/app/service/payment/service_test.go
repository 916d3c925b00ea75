package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/keybase-market/pimarket/internal/app/service/donation"
	"github.com/keybase-market/pimarket/internal/app/service/paymentlog"
	"github.com/keybase-market/pimarket/internal/models"
	"github.com/keybase-market/pimarket/internal/platform/pi"
	"github.com/keybase-market/pimarket/pkg/types"
)

type stubGateway struct {
	mu           sync.Mutex
	approveErr   error
	completeErr  error
	cancelErr    error
	approved     []string
	completed    []string
	cancelled    []string
	incomplete   []*pi.PaymentInfo
	paymentInfos map[string]*pi.PaymentInfo
}

func (g *stubGateway) ApprovePayment(_ context.Context, paymentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.approveErr != nil {
		return g.approveErr
	}
	g.approved = append(g.approved, paymentID)
	return nil
}

func (g *stubGateway) CompletePayment(_ context.Context, paymentID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.completeErr != nil {
		return g.completeErr
	}
	g.completed = append(g.completed, paymentID)
	return nil
}

func (g *stubGateway) CancelPayment(_ context.Context, paymentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, paymentID)
	return nil
}

func (g *stubGateway) GetPayment(_ context.Context, paymentID string) (*pi.PaymentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if info, ok := g.paymentInfos[paymentID]; ok {
		return info, nil
	}
	return nil, &pi.GatewayError{Op: "get_payment", Status: 404}
}

func (g *stubGateway) ListIncompletePayments(_ context.Context) ([]*pi.PaymentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.incomplete, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Donation{}, &models.PaymentEventLog{}))
	return db
}

func newTestService(t *testing.T, gw *stubGateway) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	log := zap.NewNop().Sugar()
	if gw.paymentInfos == nil {
		gw.paymentInfos = map[string]*pi.PaymentInfo{}
	}
	svc := NewService(gw, donation.NewService(db, log), paymentlog.New(db, log), log)
	return svc, db
}

func TestCreate_RejectsSecondInFlightAttempt(t *testing.T) {
	svc, _ := newTestService(t, &stubGateway{})
	ctx := context.Background()

	_, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)

	_, err = svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 2})
	require.ErrorIs(t, err, ErrAttemptInFlight)
}

func TestApproveFailure_FreesSlotWithoutSettlingOutcome(t *testing.T) {
	gw := &stubGateway{approveErr: errors.New("network is down")}
	svc, _ := newTestService(t, gw)
	ctx := context.Background()

	a, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)

	require.Error(t, svc.Approve(ctx, "s1", "p1"))
	require.Equal(t, types.PaymentStatusFailed, a.Status())
	require.False(t, a.Settled())

	// The slot is free for a fresh attempt.
	_, err = svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)

	// The runtime's cancel callback still settles the first attempt.
	require.NoError(t, svc.Cancel(ctx, "", "p1"))
	require.True(t, a.Settled())
	res, err := a.Outcome(ctx)
	require.NoError(t, err)
	require.Equal(t, CancelledMessage, res.Error)
}

func TestCancel_StaleCallbackSettlesSupersededAttempt(t *testing.T) {
	gw := &stubGateway{approveErr: errors.New("network is down")}
	svc, _ := newTestService(t, gw)
	ctx := context.Background()

	first, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)
	require.Error(t, svc.Approve(ctx, "s1", "p1"))

	// The user retries before the runtime delivers the cancel callback for
	// the failed payment.
	second, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)

	// The late callback carries the old paymentID and the same session. It
	// must settle the superseded attempt, not the fresh one.
	require.NoError(t, svc.Cancel(ctx, "s1", "p1"))

	require.True(t, first.Settled())
	require.Equal(t, types.PaymentStatusCancelled, first.Status())
	res, err := first.Outcome(ctx)
	require.NoError(t, err)
	require.Equal(t, "p1", res.PaymentID)
	require.Equal(t, CancelledMessage, res.Error)

	require.False(t, second.Settled())
	require.Equal(t, types.PaymentStatusCreated, second.Status())

	// The fresh attempt still holds the slot.
	_, err = svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.ErrorIs(t, err, ErrAttemptInFlight)
}

func TestApproveFailure_RepeatedFailuresKeepOneParkedAttempt(t *testing.T) {
	gw := &stubGateway{approveErr: errors.New("network is down")}
	svc, _ := newTestService(t, gw)
	ctx := context.Background()

	first, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)
	require.Error(t, svc.Approve(ctx, "s1", "p1"))

	second, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)
	require.Error(t, svc.Approve(ctx, "s1", "p2"))

	// Parking the second failure settles the first, so its callbacks stop
	// being owed and its payment index entry is released.
	require.True(t, first.Settled())
	res, err := first.Outcome(ctx)
	require.NoError(t, err)
	require.Equal(t, "network is down", res.Error)
	require.False(t, second.Settled())

	svc.mu.Lock()
	_, firstIndexed := svc.payments["p1"]
	parked := svc.parked["s1"]
	svc.mu.Unlock()
	require.False(t, firstIndexed)
	require.Same(t, second, parked)
}

func TestComplete_ResolvesOutcomeAndRecordsDonation(t *testing.T) {
	gw := &stubGateway{paymentInfos: map[string]*pi.PaymentInfo{
		"p1": {Identifier: "p1", UserUID: "u1", Amount: 3.14, Memo: "coffee"},
	}}
	svc, db := newTestService(t, gw)
	ctx := context.Background()

	a, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 3.14, Memo: "coffee"})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, "s1", "p1"))
	require.NoError(t, svc.Complete(ctx, "p1", "tx1", &donation.CompletedDonation{UserUID: "u1", Username: "pioneer"}))

	res, err := a.Outcome(ctx)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "p1", res.PaymentID)
	require.Equal(t, "tx1", res.TxID)

	var count int64
	require.NoError(t, db.Model(&models.Donation{}).Where("pi_payment_id = ?", "p1").Count(&count).Error)
	require.EqualValues(t, 1, count)

	var d models.Donation
	require.NoError(t, db.Where("pi_payment_id = ?", "p1").First(&d).Error)
	require.InDelta(t, 3.14, d.Amount, 1e-9)
	require.Equal(t, types.DonationStatusCompleted, d.Status)
}

func TestComplete_AlreadyCompletedOnGatewayIsSuccess(t *testing.T) {
	gw := &stubGateway{
		completeErr: pi.ErrAlreadyCompleted,
		paymentInfos: map[string]*pi.PaymentInfo{
			"p1": {Identifier: "p1", UserUID: "u1", Amount: 1},
		},
	}
	svc, _ := newTestService(t, gw)
	ctx := context.Background()

	a, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, "s1", "p1"))
	require.NoError(t, svc.Complete(ctx, "p1", "tx1", nil))

	res, err := a.Outcome(ctx)
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestComplete_RepeatedNotificationKeepsOneDonation(t *testing.T) {
	gw := &stubGateway{paymentInfos: map[string]*pi.PaymentInfo{
		"p1": {Identifier: "p1", UserUID: "u1", Amount: 1},
	}}
	svc, db := newTestService(t, gw)
	ctx := context.Background()

	_, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, "s1", "p1"))
	require.NoError(t, svc.Complete(ctx, "p1", "tx1", nil))
	require.NoError(t, svc.Complete(ctx, "p1", "tx1", nil))

	var count int64
	require.NoError(t, db.Model(&models.Donation{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestComplete_GatewayFailureSettlesFailed(t *testing.T) {
	gw := &stubGateway{completeErr: &pi.GatewayError{Op: "complete_payment", Status: 400, Code: "invalid_transaction"}}
	svc, db := newTestService(t, gw)
	ctx := context.Background()

	a, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, "s1", "p1"))
	require.Error(t, svc.Complete(ctx, "p1", "tx1", nil))

	res, err := a.Outcome(ctx)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, types.PaymentStatusFailed, a.Status())

	var count int64
	require.NoError(t, db.Model(&models.Donation{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestComplete_GatewayLookupFailureUsesAttemptAmount(t *testing.T) {
	// No paymentInfos entry: GetPayment answers 404, the attempt is the
	// only amount source left.
	gw := &stubGateway{}
	svc, db := newTestService(t, gw)
	ctx := context.Background()

	_, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 10, Memo: "coffee"})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, "s1", "p1"))
	require.NoError(t, svc.Complete(ctx, "p1", "tx1", &donation.CompletedDonation{UserUID: "u1", Username: "pioneer"}))

	var d models.Donation
	require.NoError(t, db.Where("pi_payment_id = ?", "p1").First(&d).Error)
	require.InDelta(t, 10, d.Amount, 1e-9)
	require.Equal(t, "coffee", d.Memo)
}

func TestComplete_UnknownAmountSkipsDonation(t *testing.T) {
	// GetPayment fails and no attempt survives, e.g. a completion retried
	// after a restart. Completing still succeeds, but no zero-amount
	// donation is written.
	gw := &stubGateway{}
	svc, db := newTestService(t, gw)
	ctx := context.Background()

	require.NoError(t, svc.Complete(ctx, "p9", "tx9", &donation.CompletedDonation{UserUID: "u1", Username: "pioneer"}))

	var count int64
	require.NoError(t, db.Model(&models.Donation{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestCancel_NeverFailsEvenWhenGatewayDoes(t *testing.T) {
	gw := &stubGateway{cancelErr: errors.New("gateway down")}
	svc, _ := newTestService(t, gw)
	ctx := context.Background()

	a, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, "s1", "p1"))

	require.NoError(t, svc.Cancel(ctx, "s1", "p1"))
	res, err := a.Outcome(ctx)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, CancelledMessage, res.Error)

	// Slot freed.
	_, err = svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)
}

func TestFail_ScopeDenialGetsRemediationMessage(t *testing.T) {
	svc, _ := newTestService(t, &stubGateway{})
	ctx := context.Background()

	msg := svc.Fail(ctx, "s1", "p1", "User did not grant the payments scope")
	require.Equal(t, ScopeDeniedMessage, msg)

	msg = svc.Fail(ctx, "s1", "p1", "some other runtime error")
	require.Equal(t, "some other runtime error", msg)
}

func TestOutcome_UnblocksWhenCompletionArrives(t *testing.T) {
	gw := &stubGateway{paymentInfos: map[string]*pi.PaymentInfo{
		"p1": {Identifier: "p1", UserUID: "u1", Amount: 1},
	}}
	svc, _ := newTestService(t, gw)
	ctx := context.Background()

	_, err := svc.Create(ctx, &CreatePaymentRequest{SessionID: "s1", UserUID: "u1", Amount: 1})
	require.NoError(t, err)

	type outcome struct {
		res *PaymentResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := svc.Outcome(ctx, "s1")
		ch <- outcome{res, err}
	}()

	require.NoError(t, svc.Approve(ctx, "s1", "p1"))
	require.NoError(t, svc.Complete(ctx, "p1", "tx1", nil))

	got := <-ch
	require.NoError(t, got.err)
	require.True(t, got.res.Success)

	_, err = svc.Outcome(ctx, "s1")
	require.Error(t, err)
}

func TestSweepServerPayments_CancelsEverything(t *testing.T) {
	gw := &stubGateway{incomplete: []*pi.PaymentInfo{
		{Identifier: "p1"}, {Identifier: "p2"}, {Identifier: "p3"},
	}}
	svc, _ := newTestService(t, gw)

	n, err := svc.SweepServerPayments(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.ElementsMatch(t, []string{"p1", "p2", "p3"}, gw.cancelled)
}
