package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/keybase-market/pimarket/internal/app/api/middleware"
	"github.com/keybase-market/pimarket/internal/app/service/donation"
	"github.com/keybase-market/pimarket/internal/app/service/identity"
	"github.com/keybase-market/pimarket/internal/app/service/payment"
	"github.com/keybase-market/pimarket/internal/app/service/seller"
	"github.com/keybase-market/pimarket/internal/app/service/statistics"
	"github.com/keybase-market/pimarket/pkg/response"
	"github.com/keybase-market/pimarket/pkg/types"
)

// @Summary      List Donations (Admin)
// @Description  Retrieves a paginated and filterable list of donations.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body donation.ScanDonationsRequest true "List donations request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListDonations
// @Router       /api/v1/admin/list_donations [post]
func ApiListDonations(svc *donation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req donation.ScanDonationsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.ScanDonations(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Donation Statistics (Admin)
// @Description  Retrieves daily donation statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.DonationStatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespDonationStatistic
// @Router       /api/v1/admin/get_donation_statistic [post]
func ApiGetDonationStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.DonationStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetDonationStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List Users (Admin)
// @Description  Retrieves a paginated and filterable list of users with tokens stripped.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body identity.ScanUsersRequest true "List users request"
// @Success      200  {object}  handlers.RespListUsers
// @Router       /api/v1/admin/list_users [post]
func ApiListUsers(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req identity.ScanUsersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.ScanUsers(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type UpdateUserRoleBody struct {
	UserID string     `json:"user_id" binding:"required"`
	Role   types.Role `json:"role" binding:"required"`
}

// @Summary      Update User Role (Admin)
// @Description  Sets a user's role. This and seller approval are the only role write paths.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body UpdateUserRoleBody true "Role update request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/update_user_role [post]
func ApiUpdateUserRole(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body UpdateUserRoleBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		user, err := svc.UpdateRole(c.Request.Context(), body.UserID, body.Role)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(user))
	}
}

type ReviewSellerApplicationBody struct {
	ApplicationID string `json:"application_id" binding:"required"`
	Approve       bool   `json:"approve"`
	Notes         string `json:"notes"`
}

// @Summary      Review Seller Application (Admin)
// @Description  Approves or rejects a pending seller application. Approval promotes the applicant to seller.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ReviewSellerApplicationBody true "Review decision"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/review_seller_application [post]
func ApiReviewSellerApplication(svc *seller.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body ReviewSellerApplicationBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		reviewer := middleware.AuthenticatedUser(c)
		if reviewer == nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}
		app, err := svc.Review(c.Request.Context(), &seller.ReviewRequest{
			ApplicationID: body.ApplicationID,
			ReviewerID:    reviewer.ID,
			Approve:       body.Approve,
			Notes:         body.Notes,
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(app))
	}
}

// @Summary      List Seller Applications (Admin)
// @Description  Retrieves seller applications, optionally filtered by status.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body seller.ListRequest true "List request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/list_seller_applications [post]
func ApiListSellerApplications(svc *seller.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req seller.ListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.List(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type SweepIncompletePaymentsResponse struct {
	Cancelled int `json:"cancelled"`
}

// @Summary      Sweep Incomplete Payments (Admin)
// @Description  Cancels every incomplete server payment still held by the gateway.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/sweep_incomplete_payments [post]
func ApiSweepIncompletePayments(mgr payment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := mgr.SweepServerPayments(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&SweepIncompletePaymentsResponse{Cancelled: n}))
	}
}

func RegisterAdminRoutes(r gin.IRouter, donations *donation.Service, stats *statistics.Service, users *identity.Service, sellers *seller.Service, mgr payment.Manager) {
	r.POST("/list_donations", ApiListDonations(donations))
	r.POST("/get_donation_statistic", ApiGetDonationStatistic(stats))
	r.POST("/list_users", ApiListUsers(users))
	r.POST("/update_user_role", ApiUpdateUserRole(users))
	r.POST("/list_seller_applications", ApiListSellerApplications(sellers))
	r.POST("/review_seller_application", ApiReviewSellerApplication(sellers))
	r.POST("/sweep_incomplete_payments", ApiSweepIncompletePayments(mgr))
}
