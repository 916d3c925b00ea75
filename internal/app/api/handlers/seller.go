package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/keybase-market/pimarket/internal/app/api/middleware"
	"github.com/keybase-market/pimarket/internal/app/service/seller"
	"github.com/keybase-market/pimarket/pkg/response"
)

// @Summary      Apply To Sell
// @Description  Files a seller application for the authenticated user. One application per user.
// @Tags         Seller
// @Accept       json
// @Produce      json
// @Param        request body seller.ApplyRequest true "Application details"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/seller/apply [post]
func ApiApplyToSell(svc *seller.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req seller.ApplyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		user := middleware.AuthenticatedUser(c)
		if user == nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}
		req.UserID = user.ID

		app, err := svc.Apply(c.Request.Context(), &req)
		if err != nil {
			if errors.Is(err, seller.ErrAlreadyApplied) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(app))
	}
}

// @Summary      My Seller Application
// @Description  Returns the authenticated user's seller application, if any.
// @Tags         Seller
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/seller/application [get]
func ApiMySellerApplication(svc *seller.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.AuthenticatedUser(c)
		if user == nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}
		app, err := svc.GetByUser(c.Request.Context(), user.ID)
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

func RegisterSellerRoutes(r gin.IRouter, svc *seller.Service) {
	r.POST("/apply", ApiApplyToSell(svc))
	r.GET("/application", ApiMySellerApplication(svc))
}
