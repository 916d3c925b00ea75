package statistics

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/keybase-market/pimarket/internal/models"
	"github.com/keybase-market/pimarket/pkg/types"
)

type StatisticType string

const (
	// Daily counts and volume
	StatisticTypeDailyDonationCount  StatisticType = "daily_donation_count"
	StatisticTypeDailyDonationAmount StatisticType = "daily_donation_amount"
	StatisticTypeTotalDonationAmount StatisticType = "total_donation_amount"

	// Donor related
	StatisticTypeDailyNewDonorCount StatisticType = "daily_new_donor_count"
	StatisticTypeTotalDonorCount    StatisticType = "total_donor_count"
)

type DonationStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type DonationStatisticRequest struct {
	Filters   []*types.CommonFilter        `json:"filters"`
	DataItems []*DonationStatisticDataItem `json:"data_items"`
}

// Build composes a WHERE clause from the request filters.
func (f *DonationStatisticRequest) Build(builder clause.Builder) {
	if len(f.Filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, filter := range f.Filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		filter.Build(builder)
	}
}

type DonationStatisticResponseDataItem struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type DonationStatisticResponse struct {
	DataItems map[StatisticType][]DonationStatisticResponseDataItem `json:"data_items"`
}

// Service computes donation statistics over completed donations only.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) completed(ctx context.Context, request *DonationStatisticRequest) *gorm.DB {
	return s.db.WithContext(ctx).Table((models.Donation{}).TableName()).
		Where("status = ?", types.DonationStatusCompleted).
		Where(clause.Where{Exprs: []clause.Expression{request}})
}

func (s *Service) dailyDonationCountQuery(ctx context.Context, request *DonationStatisticRequest) *gorm.DB {
	return s.completed(ctx, request).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value").
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order("date")
}

func (s *Service) getDailyDonationCount(ctx context.Context, request *DonationStatisticRequest) ([]DonationStatisticResponseDataItem, error) {
	var results []DonationStatisticResponseDataItem
	if err := s.dailyDonationCountQuery(ctx, request).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) dailyDonationAmountQuery(ctx context.Context, request *DonationStatisticRequest) *gorm.DB {
	return s.completed(ctx, request).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, sum(amount) as value").
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
}

func (s *Service) getDailyDonationAmount(ctx context.Context, request *DonationStatisticRequest) ([]DonationStatisticResponseDataItem, error) {
	var results []DonationStatisticResponseDataItem
	if err := s.dailyDonationAmountQuery(ctx, request).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalDonationAmount(ctx context.Context, request *DonationStatisticRequest) ([]DonationStatisticResponseDataItem, error) {
	var results []DonationStatisticResponseDataItem
	q := s.completed(ctx, request).Select("COALESCE(sum(amount), 0) as value")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) dailyNewDonorCountQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Raw(`
WITH first_donation AS (
    SELECT user_id, MIN(DATE(created_at)) as first_date
    FROM donation
    WHERE status = 'completed'
    GROUP BY user_id
)
SELECT TO_CHAR(first_date, 'YYYY-MM-DD') as date, COUNT(*) as value
FROM first_donation
GROUP BY first_date
ORDER BY first_date DESC
`)
}

func (s *Service) getDailyNewDonorCount(ctx context.Context, _ *DonationStatisticRequest) ([]DonationStatisticResponseDataItem, error) {
	var results []DonationStatisticResponseDataItem
	if err := s.dailyNewDonorCountQuery(ctx).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalDonorCount(ctx context.Context, request *DonationStatisticRequest) ([]DonationStatisticResponseDataItem, error) {
	var results []DonationStatisticResponseDataItem
	q := s.completed(ctx, request).Select("count(distinct user_id) as value")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDonationStatistic(ctx context.Context, request *DonationStatisticRequest, dataItem *DonationStatisticDataItem) ([]DonationStatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyDonationCount:
		return s.getDailyDonationCount(ctx, request)
	case StatisticTypeDailyDonationAmount:
		return s.getDailyDonationAmount(ctx, request)
	case StatisticTypeTotalDonationAmount:
		return s.getTotalDonationAmount(ctx, request)
	case StatisticTypeDailyNewDonorCount:
		return s.getDailyNewDonorCount(ctx, request)
	case StatisticTypeTotalDonorCount:
		return s.getTotalDonorCount(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetDonationStatistic resolves every requested data item concurrently.
func (s *Service) GetDonationStatistic(ctx context.Context, request *DonationStatisticRequest) (*DonationStatisticResponse, error) {
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []DonationStatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *DonationStatisticDataItem) {
			defer wg.Done()
			res, err := s.getDonationStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []DonationStatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[StatisticType][]DonationStatisticResponseDataItem)
	for i := 0; i < len(request.DataItems); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				return nil, err
			}
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &DonationStatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
