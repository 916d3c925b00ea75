package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keybase-market/pimarket/internal/app/api/middleware"
	"github.com/keybase-market/pimarket/internal/app/service/donation"
	"github.com/keybase-market/pimarket/internal/app/service/payment"
	"github.com/keybase-market/pimarket/pkg/response"
)

type CreatePaymentBody struct {
	SessionID string         `json:"session_id"`
	Amount    float64        `json:"amount" binding:"required,gt=0"`
	Memo      string         `json:"memo"`
	Metadata  map[string]any `json:"metadata"`
}

type CreatePaymentResponse struct {
	AttemptID string `json:"attempt_id"`
}

// @Summary      Create Payment Attempt
// @Description  Registers a new payment attempt. Only one attempt may be in flight per session.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body CreatePaymentBody true "Payment attempt request"
// @Success      200  {object}  handlers.RespCreatePayment
// @Router       /api/v1/payments/create [post]
func ApiCreatePayment(mgr payment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body CreatePaymentBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		user := middleware.AuthenticatedUser(c)
		if user == nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}

		attempt, err := mgr.Create(c.Request.Context(), &payment.CreatePaymentRequest{
			SessionID: body.SessionID,
			UserUID:   user.PiUID,
			Amount:    body.Amount,
			Memo:      body.Memo,
			Metadata:  body.Metadata,
		})
		if err != nil {
			if errors.Is(err, payment.ErrAttemptInFlight) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&CreatePaymentResponse{AttemptID: attempt.ID}))
	}
}

type ApprovePaymentBody struct {
	PaymentID string `json:"payment_id" binding:"required"`
	SessionID string `json:"session_id"`
}

// @Summary      Approve Payment
// @Description  Server-side approval for the readyForApproval callback.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body ApprovePaymentBody true "Approval callback"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments/approve [post]
func ApiApprovePayment(mgr payment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body ApprovePaymentBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := mgr.Approve(c.Request.Context(), body.SessionID, body.PaymentID); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

type CompletePaymentBody struct {
	PaymentID string `json:"payment_id" binding:"required"`
	TxID      string `json:"txid" binding:"required"`
}

// @Summary      Complete Payment
// @Description  Server-side completion for the readyForCompletion callback. Repeated notifications are harmless.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body CompletePaymentBody true "Completion callback"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments/complete [post]
func ApiCompletePayment(mgr payment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body CompletePaymentBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		var d *donation.CompletedDonation
		if user := middleware.AuthenticatedUser(c); user != nil {
			d = &donation.CompletedDonation{
				UserUID:  user.PiUID,
				Username: user.DisplayName(),
			}
		}
		if err := mgr.Complete(c.Request.Context(), body.PaymentID, body.TxID, d); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

type CancelPaymentBody struct {
	PaymentID string `json:"payment_id" binding:"required"`
	SessionID string `json:"session_id"`
}

// @Summary      Cancel Payment
// @Description  Reacts to the user-cancellation callback; always succeeds.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body CancelPaymentBody true "Cancellation callback"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments/cancel [post]
func ApiCancelPayment(mgr payment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body CancelPaymentBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		_ = mgr.Cancel(c.Request.Context(), body.SessionID, body.PaymentID)
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

type PaymentErrorBody struct {
	PaymentID string `json:"payment_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type PaymentErrorResponse struct {
	Message string `json:"message"`
}

// @Summary      Report Payment Error
// @Description  Reacts to the runtime error callback and returns the user-facing message.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body PaymentErrorBody true "Error callback"
// @Success      200  {object}  handlers.RespPaymentError
// @Router       /api/v1/payments/error [post]
func ApiPaymentError(mgr payment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body PaymentErrorBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		msg := mgr.Fail(c.Request.Context(), body.SessionID, body.PaymentID, body.Message)
		c.JSON(http.StatusOK, response.OKT(&PaymentErrorResponse{Message: msg}))
	}
}

type PaymentOutcomeBody struct {
	SessionID string `json:"session_id" binding:"required"`
}

// @Summary      Await Payment Outcome
// @Description  Blocks until the session's in-flight attempt settles, then returns the outcome.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body PaymentOutcomeBody true "Outcome request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments/outcome [post]
func ApiPaymentOutcome(mgr payment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body PaymentOutcomeBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := mgr.Outcome(c.Request.Context(), body.SessionID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type IncompletePaymentBody struct {
	PaymentID string `json:"payment_id" binding:"required"`
}

// @Summary      Sweep Incomplete Payment
// @Description  Cancels a payment surfaced by the client runtime as incomplete from a prior session.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body IncompletePaymentBody true "Incomplete payment callback"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments/incomplete [post]
func ApiIncompletePayment(mgr payment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body IncompletePaymentBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		mgr.SweepIncomplete(c.Request.Context(), body.PaymentID)
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, mgr payment.Manager) {
	r.POST("/create", ApiCreatePayment(mgr))
	r.POST("/approve", ApiApprovePayment(mgr))
	r.POST("/complete", ApiCompletePayment(mgr))
	r.POST("/cancel", ApiCancelPayment(mgr))
	r.POST("/error", ApiPaymentError(mgr))
	r.POST("/outcome", ApiPaymentOutcome(mgr))
	r.POST("/incomplete", ApiIncompletePayment(mgr))
}
