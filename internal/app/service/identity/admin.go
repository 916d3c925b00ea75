package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/keybase-market/pimarket/internal/models"
	"github.com/keybase-market/pimarket/pkg/logctx"
	"github.com/keybase-market/pimarket/pkg/types"
)

type ScanUsersRequest struct {
	Filters []*types.CommonFilter `json:"filters"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

type ScanUsersResponse struct {
	Users []*models.User `json:"users"`
	Total int64          `json:"total"`
}

// ScanUsers is the admin listing; access tokens are stripped from every row.
func (s *Service) ScanUsers(ctx context.Context, req *ScanUsersRequest) (*ScanUsersResponse, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	if len(req.Filters) > 0 {
		exprs := make([]clause.Expression, 0, len(req.Filters))
		for _, f := range req.Filters {
			exprs = append(exprs, f)
		}
		query = query.Where(clause.Where{Exprs: []clause.Expression{clause.And(exprs...)}})
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var users []*models.User
	if err := query.Order("created_at DESC").Limit(limit).Offset(req.Offset).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	return &ScanUsersResponse{
		Users: lo.Map(users, func(u *models.User, _ int) *models.User { return u.Sanitized() }),
		Total: total,
	}, nil
}

// UpdateRole is the only write path for User.Role besides seller approval.
func (s *Service) UpdateRole(ctx context.Context, userID string, role types.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if user.Role == role {
		return user.Sanitized(), nil
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("role", role).Error; err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	user.Role = role
	logctx.FromCtx(ctx, s.log).Infow("user role updated", "user_id", userID, "role", role)
	return user.Sanitized(), nil
}
