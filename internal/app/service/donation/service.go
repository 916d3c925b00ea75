package donation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/keybase-market/pimarket/internal/models"
	"github.com/keybase-market/pimarket/pkg/logctx"
	"github.com/keybase-market/pimarket/pkg/tool"
	"github.com/keybase-market/pimarket/pkg/types"
)

// CompletedDonation is the attribution data carried through a payment
// attempt, resolved against the local user store at completion time.
type CompletedDonation struct {
	UserUID  string         `json:"user_uid"`
	Username string         `json:"username"`
	Amount   float64        `json:"amount"`
	Memo     string         `json:"memo"`
	Metadata map[string]any `json:"metadata"`
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// SaveCompleted writes the donation record for a completed payment. The
// write is idempotent per (paymentID, txid): a duplicate completion
// notification returns the existing record instead of failing. The
// attributed user is auto-created with role=reader when missing.
func (s *Service) SaveCompleted(ctx context.Context, paymentID, txid string, d *CompletedDonation) (*models.Donation, error) {
	if d == nil {
		return nil, errors.New("donation data is required")
	}
	if paymentID == "" || txid == "" {
		return nil, errors.New("payment id and txid are required")
	}

	user, err := s.resolveUser(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve donation user: %w", err)
	}

	rec := &models.Donation{
		ID:          tool.GenerateUUIDV7(),
		UserID:      user.ID,
		Amount:      d.Amount,
		PiPaymentID: paymentID,
		TxID:        txid,
		Status:      types.DonationStatusCompleted,
		Memo:        d.Memo,
		Metadata:    datatypes.JSONMap(d.Metadata),
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pi_payment_id"}, {Name: "txid"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to save donation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Already recorded by an earlier completion callback.
		logctx.FromCtx(ctx, s.log).Infow("donation already recorded",
			"payment_id", paymentID, "txid", txid)
		var existing models.Donation
		if err := s.db.WithContext(ctx).
			Where("pi_payment_id = ? AND txid = ?", paymentID, txid).
			First(&existing).Error; err != nil {
			return nil, fmt.Errorf("failed to load existing donation: %w", err)
		}
		return &existing, nil
	}
	return rec, nil
}

// resolveUser finds the attributed user by gateway identity, creating a
// minimal record when the attribution target is missing.
func (s *Service) resolveUser(ctx context.Context, d *CompletedDonation) (*models.User, error) {
	if d.UserUID == "" {
		return nil, errors.New("user uid is required for attribution")
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("pi_uid = ?", d.UserUID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Warnw("donation user missing, creating minimal record", "pi_uid", d.UserUID)

	now := time.Now()
	created := &models.User{
		ID:              tool.GenerateUUIDV7(),
		PiUID:           d.UserUID,
		Role:            types.RoleReader,
		AuthenticatedAt: &now,
	}
	name := d.Username
	if name == "" {
		name = "user_" + tool.ShortID(d.UserUID, 8)
	}
	created.Username = lo.ToPtr(name)

	if err := s.db.WithContext(ctx).Create(created).Error; err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// Either a concurrent create won the pi_uid, or the best-effort
		// name collided; re-read first, then retry nameless.
		if lookupErr := s.db.WithContext(ctx).Where("pi_uid = ?", d.UserUID).First(&user).Error; lookupErr == nil {
			return &user, nil
		}
		created.Username = nil
		if err := s.db.WithContext(ctx).Create(created).Error; err != nil {
			return nil, err
		}
	}
	return created, nil
}

type ScanDonationsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanDonationsResponse struct {
	Items []*models.Donation `json:"items"`
	Total int64              `json:"total"`
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// ScanDonations implements paginated/admin listing with filters
func (s *Service) ScanDonations(ctx context.Context, req *ScanDonationsRequest) (*ScanDonationsResponse, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if req.Size <= 0 {
		req.Size = 50
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.Donation{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count donations: %w", err)
	}

	var rows []*models.Donation
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}

	return &ScanDonationsResponse{Items: rows, Total: total}, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
