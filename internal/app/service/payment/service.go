package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/keybase-market/pimarket/internal/app/service/donation"
	"github.com/keybase-market/pimarket/internal/app/service/paymentlog"
	"github.com/keybase-market/pimarket/internal/models"
	"github.com/keybase-market/pimarket/internal/platform/pi"
	"github.com/keybase-market/pimarket/pkg/logctx"
	"github.com/keybase-market/pimarket/pkg/types"
)

// Manager drives payment attempts through approval and completion and
// reconciles gateway outcomes into local records.
type Manager interface {
	// Create registers a new attempt, enforcing the single in-flight
	// attempt per session before any gateway call.
	Create(ctx context.Context, req *CreatePaymentRequest) (*Attempt, error)
	// Approve reacts to the readyForApproval callback.
	Approve(ctx context.Context, sessionID, paymentID string) error
	// Complete reacts to the readyForCompletion callback. A gateway
	// already-completed response is a success branch, and donation
	// bookkeeping failures never fail the completion.
	Complete(ctx context.Context, paymentID, txid string, d *donation.CompletedDonation) error
	// Cancel reacts to the cancellation callback; it never fails.
	Cancel(ctx context.Context, sessionID, paymentID string) error
	// Fail reacts to the error callback and returns the user-facing
	// message, substituting a remediation hint on scope denial.
	Fail(ctx context.Context, sessionID, paymentID, message string) string
	// Outcome blocks until the session's in-flight attempt settles or ctx
	// expires.
	Outcome(ctx context.Context, sessionID string) (*PaymentResult, error)
	// SweepIncomplete cancels a leftover payment from a prior session.
	SweepIncomplete(ctx context.Context, paymentID string)
	// SweepServerPayments cancels every incomplete server payment the
	// gateway still holds; returns how many were cancelled.
	SweepServerPayments(ctx context.Context) (int, error)
}

type Service struct {
	gw        Gateway
	donations *donation.Service
	events    *paymentlog.Service
	log       *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]*Attempt
	payments map[string]*Attempt
	parked   map[string]*Attempt
}

func NewService(gw Gateway, donations *donation.Service, events *paymentlog.Service, log *zap.SugaredLogger) *Service {
	return &Service{
		gw:        gw,
		donations: donations,
		events:    events,
		log:       log,
		sessions:  make(map[string]*Attempt),
		payments:  make(map[string]*Attempt),
		parked:    make(map[string]*Attempt),
	}
}

func (s *Service) Create(ctx context.Context, req *CreatePaymentRequest) (*Attempt, error) {
	if req == nil || req.sessionKey() == "" {
		return nil, errors.New("session id or user uid is required")
	}
	if req.Amount <= 0 {
		return nil, errors.New("amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[req.sessionKey()]; ok && !existing.Status().Terminal() {
		return nil, ErrAttemptInFlight
	}

	a := newAttempt(req)
	s.sessions[a.SessionKey] = a
	logctx.FromCtx(ctx, s.log).Infow("payment attempt created",
		"attempt_id", a.ID, "session", a.SessionKey, "amount", a.Amount)
	return a, nil
}

func (s *Service) Approve(ctx context.Context, sessionID, paymentID string) (retErr error) {
	log := logctx.FromCtx(ctx, s.log)
	s.saveEvent(ctx, models.PaymentEventPhaseApprove, paymentID, "", models.PaymentEventLogStatusReceived, nil)
	defer func() {
		s.saveHandledEvent(ctx, models.PaymentEventPhaseApprove, paymentID, "", retErr)
	}()

	a := s.lookup(sessionID, paymentID)
	if a != nil {
		if err := a.bindPayment(paymentID); err != nil {
			return err
		}
		s.mu.Lock()
		s.payments[paymentID] = a
		s.mu.Unlock()
	}

	if err := s.gw.ApprovePayment(ctx, paymentID); err != nil {
		// The attempt is over as far as forward progress goes, but the
		// outcome stays open: the runtime's own error path still owes us a
		// cancel or error callback.
		log.Errorw("payment approval failed", "payment_id", paymentID, "err", err)
		if a != nil {
			a.failQuietly(err.Error())
			s.park(a)
		}
		return fmt.Errorf("payment approval failed: %w", err)
	}

	if a != nil {
		a.markApproved()
	}
	log.Infow("payment approved", "payment_id", paymentID)
	return nil
}

func (s *Service) Complete(ctx context.Context, paymentID, txid string, d *donation.CompletedDonation) (retErr error) {
	log := logctx.FromCtx(ctx, s.log)
	s.saveEvent(ctx, models.PaymentEventPhaseComplete, paymentID, txid, models.PaymentEventLogStatusReceived, d)
	defer func() {
		s.saveHandledEvent(ctx, models.PaymentEventPhaseComplete, paymentID, txid, retErr)
	}()

	a := s.lookupByPayment(paymentID)
	if a != nil {
		a.markPendingCompletion(txid)
	}

	// The gateway's payment object is authoritative for amount and memo;
	// the caller only carries attribution. A missing caller record, e.g. a
	// completion retried after a restart, is filled entirely from the
	// gateway.
	if info, err := s.gw.GetPayment(ctx, paymentID); err != nil {
		// Downgrade to the attempt the caller started, which recorded the
		// same amount and memo at creation time.
		log.Warnw("failed to load payment for attribution", "payment_id", paymentID, "err", err)
		if a != nil && d != nil {
			d.Amount = a.Amount
			if d.Memo == "" {
				d.Memo = a.Memo
			}
			if d.Metadata == nil {
				d.Metadata = a.Metadata
			}
		}
	} else {
		if d == nil {
			d = &donation.CompletedDonation{UserUID: info.UserUID}
		}
		d.Amount = info.Amount
		if d.Memo == "" {
			d.Memo = info.Memo
		}
		if d.Metadata == nil {
			d.Metadata = info.Metadata
		}
	}

	if err := s.gw.CompletePayment(ctx, paymentID, txid); err != nil {
		if !errors.Is(err, pi.ErrAlreadyCompleted) {
			log.Errorw("payment completion failed", "payment_id", paymentID, "txid", txid, "err", err)
			if a != nil {
				s.settle(a, types.PaymentStatusFailed, &PaymentResult{
					Success: false, PaymentID: paymentID, Error: err.Error(),
				})
			}
			return fmt.Errorf("payment completion failed: %w", err)
		}
		// Completed out-of-band, e.g. a retried client callback. Proceed
		// with bookkeeping.
		log.Infow("payment already completed on gateway", "payment_id", paymentID, "txid", txid)
	}

	if d != nil && d.Amount <= 0 {
		// Neither the gateway nor a live attempt could tell us the amount.
		// A zero-amount completed record is worse than none.
		log.Warnw("skipping donation record, amount unknown", "payment_id", paymentID, "txid", txid)
		d = nil
	}
	if d != nil {
		if _, err := s.donations.SaveCompleted(ctx, paymentID, txid, d); err != nil {
			// The payment is real and completed on the gateway regardless
			// of local bookkeeping.
			log.Errorw("failed to record donation", "payment_id", paymentID, "txid", txid, "err", err)
		}
	}

	if a != nil {
		s.settle(a, types.PaymentStatusCompleted, &PaymentResult{
			Success: true, PaymentID: paymentID, TxID: txid,
		})
	}
	log.Infow("payment completed", "payment_id", paymentID, "txid", txid)
	return nil
}

func (s *Service) Cancel(ctx context.Context, sessionID, paymentID string) error {
	log := logctx.FromCtx(ctx, s.log)
	s.saveEvent(ctx, models.PaymentEventPhaseCancel, paymentID, "", models.PaymentEventLogStatusReceived, nil)

	// Cancellation is cleanup of an already-broken state; a gateway
	// failure here is logged, never propagated.
	if err := s.gw.CancelPayment(ctx, paymentID); err != nil {
		log.Warnw("gateway cancel failed", "payment_id", paymentID, "err", err)
	}

	if a := s.lookup(sessionID, paymentID); a != nil {
		s.settle(a, types.PaymentStatusCancelled, &PaymentResult{
			Success: false, PaymentID: paymentID, Error: CancelledMessage,
		})
	}
	s.saveHandledEvent(ctx, models.PaymentEventPhaseCancel, paymentID, "", nil)
	log.Infow("payment cancelled", "payment_id", paymentID)
	return nil
}

func (s *Service) Fail(ctx context.Context, sessionID, paymentID, message string) string {
	msg := message
	if scopeDenied(message) {
		msg = ScopeDeniedMessage
	}
	if a := s.lookup(sessionID, paymentID); a != nil {
		s.settle(a, types.PaymentStatusFailed, &PaymentResult{
			Success: false, PaymentID: paymentID, Error: msg,
		})
	}
	s.saveEvent(ctx, models.PaymentEventPhaseError, paymentID, "", models.PaymentEventLogStatusHandled, map[string]string{"message": message})
	logctx.FromCtx(ctx, s.log).Warnw("payment error callback", "payment_id", paymentID, "message", message)
	return msg
}

// Outcome waits on the attempt currently keyed by sessionID, falling back
// to a parked attempt still owed its terminal callback. Attempts that
// already settled have released their slot, so a late call reports no
// attempt in flight.
func (s *Service) Outcome(ctx context.Context, sessionID string) (*PaymentResult, error) {
	s.mu.Lock()
	a := s.sessions[sessionID]
	if a == nil {
		a = s.parked[sessionID]
	}
	s.mu.Unlock()
	if a == nil {
		return nil, fmt.Errorf("no payment attempt in flight for session %s", sessionID)
	}
	return a.Outcome(ctx)
}

func (s *Service) SweepIncomplete(ctx context.Context, paymentID string) {
	if err := s.gw.CancelPayment(ctx, paymentID); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("failed to cancel incomplete payment", "payment_id", paymentID, "err", err)
	}
	s.saveEvent(ctx, models.PaymentEventPhaseSweep, paymentID, "", models.PaymentEventLogStatusHandled, nil)
}

func (s *Service) SweepServerPayments(ctx context.Context) (int, error) {
	infos, err := s.gw.ListIncompletePayments(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list incomplete payments: %w", err)
	}
	cancelled := 0
	for _, info := range infos {
		if err := s.gw.CancelPayment(ctx, info.Identifier); err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("failed to cancel incomplete payment",
				"payment_id", info.Identifier, "err", err)
			continue
		}
		s.saveEvent(ctx, models.PaymentEventPhaseSweep, info.Identifier, "", models.PaymentEventLogStatusHandled, nil)
		cancelled++
	}
	return cancelled, nil
}

// scopeDenied sniffs gateway error text for a missing payments scope.
func scopeDenied(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "payments") && strings.Contains(m, "scope")
}

// lookup resolves a callback to its attempt. The paymentID is
// authoritative: a payment-indexed attempt wins even when its session slot
// has since been reused by a fresh attempt. The session slot is consulted
// only when its attempt is unbound or bound to the same payment, so a stale
// callback for a superseded payment cannot settle its successor.
func (s *Service) lookup(sessionID, paymentID string) *Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if paymentID != "" {
		if a, ok := s.payments[paymentID]; ok {
			return a
		}
	}
	if sessionID != "" {
		if a, ok := s.sessions[sessionID]; ok {
			if pid := a.PaymentID(); pid == "" || paymentID == "" || pid == paymentID {
				return a
			}
		}
	}
	return nil
}

func (s *Service) lookupByPayment(paymentID string) *Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[paymentID]
}

// settle resolves the outcome and drops the attempt from every index.
func (s *Service) settle(a *Attempt, status types.PaymentStatus, res *PaymentResult) {
	a.resolve(status, res)
	s.mu.Lock()
	if s.sessions[a.SessionKey] == a {
		delete(s.sessions, a.SessionKey)
	}
	if s.parked[a.SessionKey] == a {
		delete(s.parked, a.SessionKey)
	}
	if pid := a.PaymentID(); pid != "" && s.payments[pid] == a {
		delete(s.payments, pid)
	}
	s.mu.Unlock()
}

// park frees the in-flight slot for a fresh attempt while keeping the
// attempt reachable by its paymentID, because the runtime's error path
// still owes a terminal callback for it. At most one parked attempt is
// kept per session; a newer failure settles the older one as failed.
func (s *Service) park(a *Attempt) {
	s.mu.Lock()
	if s.sessions[a.SessionKey] == a {
		delete(s.sessions, a.SessionKey)
	}
	prev := s.parked[a.SessionKey]
	s.parked[a.SessionKey] = a
	s.mu.Unlock()
	if prev != nil && prev != a {
		s.settle(prev, types.PaymentStatusFailed, &PaymentResult{
			Success: false, PaymentID: prev.PaymentID(), Error: prev.failureReason(),
		})
	}
}

func (s *Service) saveEvent(ctx context.Context, phase models.PaymentEventPhase, paymentID, txid string, status models.PaymentEventLogStatus, data any) {
	entry := &models.PaymentEventLog{
		PaymentID: paymentID,
		TxID:      txid,
		Phase:     phase,
		Status:    status,
		TraceID:   traceIDFrom(ctx),
	}
	if uid, ok := ctx.Value("pi_uid").(string); ok && uid != "" {
		entry.UserUID = lo.ToPtr(uid)
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			entry.Data = datatypes.JSON(raw)
		}
	}
	s.events.Save(ctx, entry)
}

func (s *Service) saveHandledEvent(ctx context.Context, phase models.PaymentEventPhase, paymentID, txid string, retErr error) {
	status := models.PaymentEventLogStatusHandled
	resMap := map[string]any{}
	if retErr != nil {
		status = models.PaymentEventLogStatusHandleFailed
		resMap["error"] = retErr.Error()
	}
	entry := &models.PaymentEventLog{
		PaymentID: paymentID,
		TxID:      txid,
		Phase:     phase,
		Status:    status,
		TraceID:   traceIDFrom(ctx),
	}
	if raw, err := json.Marshal(resMap); err == nil {
		j := datatypes.JSON(raw)
		entry.Result = &j
	}
	s.events.Save(ctx, entry)
}

func traceIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value("traceID").(string); ok {
		return v
	}
	return ""
}
