package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"gorm.io/gorm"

	"github.com/keybase-market/pimarket/internal/app/service/identity"
	"github.com/keybase-market/pimarket/internal/models"
	"github.com/keybase-market/pimarket/internal/platform/pi"
	"github.com/keybase-market/pimarket/pkg/config"
	"github.com/keybase-market/pimarket/pkg/response"
	"github.com/keybase-market/pimarket/pkg/types"
)

// UserKey is the gin context key holding the authenticated *models.User.
const UserKey = "user"

// AuthenticatedUser returns the user attached by PiAuthMiddleware or
// AdminAuthMiddleware.
func AuthenticatedUser(c *gin.Context) *models.User {
	if v, ok := c.Get(UserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// PiAuthMiddleware authenticates a request by reconciling its Pi bearer
// token. Expired tokens answer 401 with an expired flag so the client can
// force a re-login; gateway outages answer 200 with an error envelope like
// every other failure.
func PiAuthMiddleware(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}

		user, err := svc.Reconcile(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, pi.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					response.ErrorT(response.APIResponseCodeUnauthorized, gin.H{"expired": true}))
				return
			}
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}

		attachUser(c, user)
		c.Next()
	}
}

// SessionClaims is the payload of the signed session token issued on
// successful identity verification.
type SessionClaims struct {
	UserID string     `json:"uid"`
	PiUID  string     `json:"pi_uid"`
	Role   types.Role `json:"role"`
	jwt.StandardClaims
}

// IssueSessionToken signs a session token for the user.
func IssueSessionToken(cfg *config.AdminAuthConfig, user *models.User) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		UserID: user.ID,
		PiUID:  user.PiUID,
		Role:   user.Role,
		StandardClaims: jwt.StandardClaims{
			Subject:   user.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(cfg.TokenTTL()).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

// AdminAuthMiddleware guards admin routes with a session token. The role
// inside the token is advisory only; the stored role is re-checked on every
// request so a demotion takes effect immediately.
func AdminAuthMiddleware(cfg *config.AdminAuthConfig, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}

		claims := &SessionClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !parsed.Valid {
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).Where("id = ?", claims.UserID).First(&user).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}
		if user.Role != types.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeForbidden, nil))
			return
		}

		attachUser(c, user.Sanitized())
		c.Next()
	}
}

func attachUser(c *gin.Context, user *models.User) {
	c.Set(UserKey, user)
	c.Set("pi_uid", user.PiUID)
	ctx := context.WithValue(c.Request.Context(), "pi_uid", user.PiUID)
	c.Request = c.Request.WithContext(ctx)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
