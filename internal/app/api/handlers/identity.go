package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keybase-market/pimarket/internal/app/api/middleware"
	"github.com/keybase-market/pimarket/internal/app/service/identity"
	"github.com/keybase-market/pimarket/internal/models"
	"github.com/keybase-market/pimarket/internal/platform/pi"
	"github.com/keybase-market/pimarket/pkg/config"
	"github.com/keybase-market/pimarket/pkg/logctx"
	"github.com/keybase-market/pimarket/pkg/response"
	"go.uber.org/zap"
)

type VerifyIdentityRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

type VerifyIdentityResponse struct {
	User         *models.User `json:"user"`
	SessionToken string       `json:"session_token,omitempty"`
}

// @Summary      Verify Identity
// @Description  Verifies a Pi bearer token and creates or refreshes the local user. Expired tokens answer 401 with an expired flag.
// @Tags         Identity
// @Accept       json
// @Produce      json
// @Param        request body VerifyIdentityRequest true "Identity verification request"
// @Success      200  {object}  handlers.RespVerifyIdentity
// @Router       /api/v1/identity/verify [post]
func ApiVerifyIdentity(svc *identity.Service, cfg *config.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyIdentityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		user, err := svc.Reconcile(c.Request.Context(), req.AccessToken)
		if err != nil {
			if errors.Is(err, pi.ErrTokenExpired) {
				c.JSON(http.StatusUnauthorized,
					response.ErrorT(response.APIResponseCodeUnauthorized, gin.H{"expired": true}))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, err.Error()))
			return
		}

		out := &VerifyIdentityResponse{User: user}
		if cfg.AdminAuth.JWTSecret != "" {
			token, err := middleware.IssueSessionToken(&cfg.AdminAuth, user)
			if err != nil {
				// The identity itself verified; a signing failure only costs
				// the session token.
				logctx.FromGin(c, log).Errorw("failed to issue session token", "err", err)
			} else {
				out.SessionToken = token
			}
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

func RegisterIdentityRoutes(r gin.IRouter, svc *identity.Service, cfg *config.Config, log *zap.SugaredLogger) {
	r.POST("/verify", ApiVerifyIdentity(svc, cfg, log))
}
