package statistics

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/keybase-market/pimarket/internal/models"
	"github.com/keybase-market/pimarket/pkg/tool"
	"github.com/keybase-market/pimarket/pkg/types"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Donation{}))
	return New(db), db
}

func seedDonation(t *testing.T, db *gorm.DB, userID string, amount float64, status types.DonationStatus) {
	t.Helper()
	require.NoError(t, db.Create(&models.Donation{
		ID: tool.GenerateUUIDV7(), UserID: userID, Amount: amount,
		PiPaymentID: "p-" + tool.GenerateUUIDV7(), TxID: "tx", Status: status,
	}).Error)
}

func TestGetDonationStatistic_TotalsSkipPending(t *testing.T) {
	svc, db := newTestService(t)
	u1, u2 := tool.GenerateUUIDV7(), tool.GenerateUUIDV7()
	seedDonation(t, db, u1, 2, types.DonationStatusCompleted)
	seedDonation(t, db, u1, 3, types.DonationStatusCompleted)
	seedDonation(t, db, u2, 5, types.DonationStatusCompleted)
	seedDonation(t, db, u2, 100, types.DonationStatusPending)

	res, err := svc.GetDonationStatistic(context.Background(), &DonationStatisticRequest{
		DataItems: []*DonationStatisticDataItem{
			{ID: StatisticTypeTotalDonationAmount},
			{ID: StatisticTypeTotalDonorCount},
		},
	})
	require.NoError(t, err)

	amount := res.DataItems[StatisticTypeTotalDonationAmount]
	require.Len(t, amount, 1)
	require.InDelta(t, 10, amount[0].Value, 1e-9)

	donors := res.DataItems[StatisticTypeTotalDonorCount]
	require.Len(t, donors, 1)
	require.InDelta(t, 2, donors[0].Value, 1e-9)
}

// newDryRunService builds statements without executing them, so the
// postgres-only daily queries can be checked on their SQL shape.
func newDryRunService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{DryRun: true})
	require.NoError(t, err)
	return New(db)
}

func TestDailyDonationCountQuery_BucketsByDay(t *testing.T) {
	svc := newDryRunService(t)

	q := svc.dailyDonationCountQuery(context.Background(), &DonationStatisticRequest{}).
		Find(&[]DonationStatisticResponseDataItem{})
	require.NoError(t, q.Error)

	sql := q.Statement.SQL.String()
	require.Contains(t, sql, "TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value")
	require.Contains(t, sql, "GROUP BY TO_CHAR(created_at, 'YYYY-MM-DD')")
	require.Contains(t, sql, "ORDER BY date")
	require.Contains(t, sql, "status = ?")
	require.Contains(t, sql, "1=1")
	require.Equal(t, []any{types.DonationStatusCompleted}, q.Statement.Vars)
}

func TestDailyDonationAmountQuery_AppliesFilters(t *testing.T) {
	svc := newDryRunService(t)

	req := &DonationStatisticRequest{Filters: []*types.CommonFilter{
		{Field: "amount", Operator: types.CommonFilterOperatorGte, Values: []any{5}},
	}}
	q := svc.dailyDonationAmountQuery(context.Background(), req).
		Find(&[]DonationStatisticResponseDataItem{})
	require.NoError(t, q.Error)

	sql := q.Statement.SQL.String()
	require.Contains(t, sql, "sum(amount) as value")
	require.Contains(t, sql, "GROUP BY TO_CHAR(created_at, 'YYYY-MM-DD')")
	require.Contains(t, sql, "`amount` >= ?")
	require.Contains(t, sql, "`date` DESC")
	require.Equal(t, []any{types.DonationStatusCompleted, 5}, q.Statement.Vars)
}

func TestDailyNewDonorCountQuery_CountsFirstDonationsOnly(t *testing.T) {
	svc := newDryRunService(t)

	q := svc.dailyNewDonorCountQuery(context.Background()).
		Find(&[]DonationStatisticResponseDataItem{})
	require.NoError(t, q.Error)

	sql := q.Statement.SQL.String()
	require.Contains(t, sql, "MIN(DATE(created_at)) as first_date")
	require.Contains(t, sql, "WHERE status = 'completed'")
	require.Contains(t, sql, "GROUP BY user_id")
	require.Contains(t, sql, "GROUP BY first_date")
}

func TestGetDonationStatistic_RejectsUnknownDataItem(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetDonationStatistic(context.Background(), &DonationStatisticRequest{
		DataItems: []*DonationStatisticDataItem{{ID: StatisticType("bogus")}},
	})
	require.Error(t, err)
}
