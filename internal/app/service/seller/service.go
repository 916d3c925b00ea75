package seller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/keybase-market/pimarket/internal/models"
	"github.com/keybase-market/pimarket/pkg/logctx"
	"github.com/keybase-market/pimarket/pkg/tool"
	"github.com/keybase-market/pimarket/pkg/types"
)

// ErrAlreadyApplied rejects a second application for the same user.
var ErrAlreadyApplied = errors.New("a seller application already exists for this user")

// Service owns the seller-application lifecycle. Approval is one of the two
// write paths for User.Role; it still refuses to downgrade an admin.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

type ApplyRequest struct {
	UserID         string   `json:"user_id"`
	BusinessName   string   `json:"business_name" binding:"required"`
	BusinessType   string   `json:"business_type" binding:"required"`
	Location       string   `json:"location" binding:"required"`
	Description    string   `json:"description" binding:"required"`
	Email          string   `json:"email" binding:"required,email"`
	Phone          string   `json:"phone"`
	OwnershipProof []string `json:"ownership_proof"`
}

// Apply files a pending application for the user. A duplicate surfaces as
// ErrAlreadyApplied regardless of the existing application's status.
func (s *Service) Apply(ctx context.Context, req *ApplyRequest) (*models.SellerApplication, error) {
	if req == nil || req.UserID == "" {
		return nil, errors.New("user id is required")
	}

	proof := datatypes.JSON([]byte("[]"))
	if len(req.OwnershipProof) > 0 {
		raw, err := json.Marshal(req.OwnershipProof)
		if err != nil {
			return nil, fmt.Errorf("invalid ownership proof: %w", err)
		}
		proof = datatypes.JSON(raw)
	}

	app := &models.SellerApplication{
		ID:             tool.GenerateUUIDV7(),
		UserID:         req.UserID,
		BusinessName:   req.BusinessName,
		BusinessType:   req.BusinessType,
		Location:       req.Location,
		Description:    req.Description,
		Email:          req.Email,
		Phone:          req.Phone,
		OwnershipProof: proof,
		Status:         types.SellerApplicationStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(app).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyApplied
		}
		return nil, fmt.Errorf("failed to create seller application: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("seller application filed",
		"application_id", app.ID, "user_id", req.UserID)
	return app, nil
}

// GetByUser returns the user's application, or gorm.ErrRecordNotFound.
func (s *Service) GetByUser(ctx context.Context, userID string) (*models.SellerApplication, error) {
	var app models.SellerApplication
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&app).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

type ListRequest struct {
	Status types.SellerApplicationStatus `json:"status"`
	Limit  int                           `json:"limit"`
	Offset int                           `json:"offset"`
}

type ListResponse struct {
	Items []*models.SellerApplication `json:"items"`
	Total int64                       `json:"total"`
}

func (s *Service) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	query := s.db.WithContext(ctx).Model(&models.SellerApplication{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}

	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var items []*models.SellerApplication
	if err := query.Order("created_at ASC").Limit(limit).Offset(req.Offset).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return &ListResponse{Items: items, Total: total}, nil
}

type ReviewRequest struct {
	ApplicationID string `json:"application_id"`
	ReviewerID    string `json:"reviewer_id"`
	Approve       bool   `json:"approve"`
	Notes         string `json:"notes"`
}

// Review settles a pending application. Approval promotes the applicant to
// seller unless they already hold the admin role; rejection only records
// the decision. Reviewing an already-reviewed application fails.
func (s *Service) Review(ctx context.Context, req *ReviewRequest) (*models.SellerApplication, error) {
	var app models.SellerApplication
	if err := s.db.WithContext(ctx).Where("id = ?", req.ApplicationID).First(&app).Error; err != nil {
		return nil, err
	}
	if app.Reviewed() {
		return nil, fmt.Errorf("application %s is already %s", app.ID, app.Status)
	}

	status := types.SellerApplicationStatusRejected
	if req.Approve {
		status = types.SellerApplicationStatusApproved
	}
	now := time.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":      status,
			"notes":       req.Notes,
			"reviewed_by": req.ReviewerID,
			"reviewed_at": now,
		}
		if err := tx.Model(&app).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update application: %w", err)
		}
		if !req.Approve {
			return nil
		}

		var user models.User
		if err := tx.Where("id = ?", app.UserID).First(&user).Error; err != nil {
			return fmt.Errorf("failed to load applicant: %w", err)
		}
		// Admins already outrank sellers.
		if user.Role == types.RoleAdmin {
			return nil
		}
		if err := tx.Model(&user).Update("role", types.RoleSeller).Error; err != nil {
			return fmt.Errorf("failed to promote applicant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	app.Status = status
	app.Notes = req.Notes
	app.ReviewedBy = lo.ToPtr(req.ReviewerID)
	app.ReviewedAt = &now
	logctx.FromCtx(ctx, s.log).Infow("seller application reviewed",
		"application_id", app.ID, "status", status, "reviewer", req.ReviewerID)
	return &app, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
