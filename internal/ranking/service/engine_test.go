package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tucanprint/tucan-backend/internal/ranking/repository"
	"github.com/tucanprint/tucan-backend/pkg/testutil"
)

type fakeParams struct {
	ints     map[string]int
	strings  map[string]string
	decimals map[string]decimal.Decimal
	jsons    map[string]string
}

func (f fakeParams) GetInt(ctx context.Context, name string, def int) int {
	if v, ok := f.ints[name]; ok {
		return v
	}
	return def
}

func (f fakeParams) GetString(ctx context.Context, name, def string) string {
	if v, ok := f.strings[name]; ok {
		return v
	}
	return def
}

func (f fakeParams) GetDecimal(ctx context.Context, name string, def decimal.Decimal) decimal.Decimal {
	if v, ok := f.decimals[name]; ok {
		return v
	}
	return def
}

func (f fakeParams) GetJSON(ctx context.Context, name string, dest interface{}) bool {
	return false
}

func TestNormalizeFloorsDenominator(t *testing.T) {
	// Flat population: spread is zero, floored to 1, everyone maps to 0
	out := normalize([]float64{5, 5, 5})
	assert.Equal(t, []float64{0, 0, 0}, out)
}

func TestNormalizeMinMax(t *testing.T) {
	out := normalize([]float64{0, 50, 100})
	assert.Equal(t, []float64{0, 0.5, 1}, out)
}

func TestPeriodFor(t *testing.T) {
	aug := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-08", PeriodFor(aug, "monthly"))
	assert.Equal(t, "2026-Q3", PeriodFor(aug, "quarterly"))

	jan := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-01", PeriodFor(jan, "monthly"))
	assert.Equal(t, "2026-Q1", PeriodFor(jan, "quarterly"))
}

func TestScoreActivitiesBestCustomerScoresHundred(t *testing.T) {
	activities := []repository.CustomerActivity{
		{CustomerID: 1, OrderCount: 10, TotalValue: decimal.NewFromInt(1000), CriticalValue: decimal.NewFromInt(500), Margin: decimal.NewFromInt(200)},
		{CustomerID: 2, OrderCount: 2, TotalValue: decimal.NewFromInt(100), CriticalValue: decimal.Zero, Margin: decimal.NewFromInt(10)},
	}

	scores := scoreActivities(activities, DefaultRankingWeights(), 90)

	assert.Equal(t, 100.0, scores[0].score, "customer leading every metric scores 100")
	assert.Equal(t, 0.0, scores[1].score, "customer trailing every metric scores 0")
	assert.Equal(t, 1.0, scores[0].metrics[MetricCritical])
}

func TestRunRecordsSignedVariation(t *testing.T) {
	mock := testutil.NewMockDB(t)
	engine := NewEngine(
		repository.NewActivityRepository(mock.DB),
		repository.NewRankingRepository(mock.DB),
		fakeParams{},
		nil,
		testutil.TestLogger(),
	)

	// Single customer: every normalized metric is 0, score 0; the
	// previous period scored 15, so variacion is -15.
	mock.Mock.ExpectQuery("SELECT o.customer_id").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "order_count", "total_value", "critical_value", "margin"}).
			AddRow(7, 4, "800", "100", "50"))

	mock.Mock.ExpectQuery("SELECT customer_id, period, score, variacion, metrics, created_at").
		WithArgs(int64(7), "2026-08").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "period", "score", "variacion", "metrics", "created_at"}).
			AddRow(7, "2026-07", 15.0, 0.0, "{}", time.Now()))

	mock.Mock.ExpectExec("INSERT INTO customer_rankings").
		WithArgs(int64(7), 0.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.Mock.ExpectExec("INSERT INTO customer_ranking_history").
		WithArgs(int64(7), "2026-08", 0.0, -15.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	report, err := engine.Run(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, "2026-08", report.Period)
	assert.Equal(t, 1, report.Updated)
	mock.AssertExpectations(t)
}

func TestRunFirstPeriodHasZeroVariation(t *testing.T) {
	mock := testutil.NewMockDB(t)
	engine := NewEngine(
		repository.NewActivityRepository(mock.DB),
		repository.NewRankingRepository(mock.DB),
		fakeParams{},
		nil,
		testutil.TestLogger(),
	)

	mock.Mock.ExpectQuery("SELECT o.customer_id").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "order_count", "total_value", "critical_value", "margin"}).
			AddRow(7, 4, "800", "100", "50"))

	mock.Mock.ExpectQuery("SELECT customer_id, period, score, variacion, metrics, created_at").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id"}))

	mock.Mock.ExpectExec("INSERT INTO customer_rankings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectExec("INSERT INTO customer_ranking_history").
		WithArgs(int64(7), "2026-08", 0.0, 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	_, err := engine.Run(context.Background(), now)
	require.NoError(t, err)
	mock.AssertExpectations(t)
}
