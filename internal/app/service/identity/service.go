package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/keybase-market/pimarket/internal/models"
	"github.com/keybase-market/pimarket/internal/platform/pi"
	"github.com/keybase-market/pimarket/pkg/logctx"
	"github.com/keybase-market/pimarket/pkg/tool"
	"github.com/keybase-market/pimarket/pkg/types"
)

// TokenVerifier is the slice of the gateway client this service needs.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, accessToken string) (*pi.User, error)
}

// Service turns a bearer token into an authoritative local User record.
// It never writes Role and never surfaces username-uniqueness races.
type Service struct {
	db  *gorm.DB
	gw  TokenVerifier
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, gw TokenVerifier, log *zap.SugaredLogger) *Service {
	return &Service{db: db, gw: gw, log: log}
}

// Reconcile verifies accessToken against the gateway and creates or
// refreshes the local User. The returned record has the access token
// stripped. pi.ErrTokenExpired propagates unchanged so callers can force a
// re-login; all other gateway failures propagate as-is.
func (s *Service) Reconcile(ctx context.Context, accessToken string) (*models.User, error) {
	if accessToken == "" {
		return nil, errors.New("access token is required")
	}

	piUser, err := s.gw.VerifyToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = s.db.WithContext(ctx).Where("pi_uid = ?", piUser.UID).First(&user).Error
	switch {
	case err == nil:
		return s.refresh(ctx, &user, piUser, accessToken)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.create(ctx, piUser, accessToken)
	default:
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
}

// GetByUID loads a user by gateway identity, with the token stripped.
func (s *Service) GetByUID(ctx context.Context, piUID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("pi_uid = ?", piUID).First(&user).Error; err != nil {
		return nil, err
	}
	return user.Sanitized(), nil
}

func (s *Service) create(ctx context.Context, piUser *pi.User, accessToken string) (*models.User, error) {
	now := time.Now()
	user := &models.User{
		ID:              tool.GenerateUUIDV7(),
		PiUID:           piUser.UID,
		Role:            types.RoleReader,
		AccessToken:     lo.ToPtr(accessToken),
		AuthenticatedAt: &now,
	}
	if piUser.Username != "" {
		user.Username = lo.ToPtr(piUser.Username)
	}
	if piUser.WalletAddress != "" {
		user.WalletAddress = lo.ToPtr(piUser.WalletAddress)
	}

	err := s.db.WithContext(ctx).Create(user).Error
	if err == nil {
		return user.Sanitized(), nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// The conflict is either a concurrent reconcile for the same identity
	// or a username collision. The former wins the row; re-read and refresh.
	var existing models.User
	if lookupErr := s.db.WithContext(ctx).Where("pi_uid = ?", piUser.UID).First(&existing).Error; lookupErr == nil {
		return s.refresh(ctx, &existing, piUser, accessToken)
	}

	// Username collision with a different identity. A name collision must
	// never block authentication: retry with a generated name, then with no
	// name at all.
	logctx.FromCtx(ctx, s.log).Warnw("username taken, creating with fallback name",
		"pi_uid", piUser.UID, "username", piUser.Username)

	user.Username = lo.ToPtr("user_" + tool.ShortID(piUser.UID, 8))
	if err := s.db.WithContext(ctx).Create(user).Error; err == nil {
		return user.Sanitized(), nil
	} else if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user.Username = nil
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user.Sanitized(), nil
}

// refresh updates token, timestamp and, when safe, the username. Role is
// never touched here under any circumstance.
func (s *Service) refresh(ctx context.Context, user *models.User, piUser *pi.User, accessToken string) (*models.User, error) {
	now := time.Now()
	updates := map[string]any{
		"access_token":     accessToken,
		"authenticated_at": now,
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to refresh user: %w", err)
	}
	user.AccessToken = lo.ToPtr(accessToken)
	user.AuthenticatedAt = &now

	// Adopt the gateway's name only when it actually changed; on conflict
	// keep the stored name and proceed.
	if piUser.Username != "" && (user.Username == nil || *user.Username != piUser.Username) {
		err := s.db.WithContext(ctx).Model(user).Update("username", piUser.Username).Error
		switch {
		case err == nil:
			user.Username = lo.ToPtr(piUser.Username)
		case errors.Is(err, gorm.ErrDuplicatedKey):
			logctx.FromCtx(ctx, s.log).Warnw("username update conflicts, keeping stored name",
				"pi_uid", piUser.UID, "username", piUser.Username)
		default:
			return nil, fmt.Errorf("failed to update username: %w", err)
		}
	}

	return user.Sanitized(), nil
}
