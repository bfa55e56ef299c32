package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tucanprint/tucan-backend/pkg/errors"
	"github.com/tucanprint/tucan-backend/pkg/testutil"
)

func TestAggregateScansDecimals(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewActivityRepository(mock.DB)

	since := time.Now().AddDate(0, 0, -90)
	threshold := decimal.NewFromInt(100)

	mock.Mock.ExpectQuery("SELECT o.customer_id").
		WithArgs(since, threshold).
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "order_count", "total_value", "critical_value", "margin"}).
			AddRow(1, 12, "3450.50", "1200.00", "430.25").
			AddRow(2, 3, "220.00", "0", "15.75"))

	activities, err := repo.Aggregate(context.Background(), since, threshold)
	require.NoError(t, err)
	require.Len(t, activities, 2)

	assert.Equal(t, int64(1), activities[0].CustomerID)
	assert.True(t, activities[0].TotalValue.Equal(decimal.RequireFromString("3450.50")))
	assert.True(t, activities[1].CriticalValue.IsZero())
	mock.AssertExpectations(t)
}

func TestGetScoreNotFound(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewRankingRepository(mock.DB)

	mock.Mock.ExpectQuery("FROM customer_rankings WHERE customer_id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"customer_id"}))

	_, err := repo.GetScore(context.Background(), 42)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mock.AssertExpectations(t)
}

func TestPreviousPeriodNilWhenNoHistory(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewRankingRepository(mock.DB)

	mock.Mock.ExpectQuery("FROM customer_ranking_history").
		WithArgs(int64(7), "2026-08").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id"}))

	prev, err := repo.PreviousPeriod(context.Background(), 7, "2026-08")
	require.NoError(t, err)
	assert.Nil(t, prev)
	mock.AssertExpectations(t)
}

func TestPreviousPeriodReturnsNewestEarlierRow(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewRankingRepository(mock.DB)

	mock.Mock.ExpectQuery("FROM customer_ranking_history").
		WithArgs(int64(7), "2026-08").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "period", "score", "variacion", "metrics", "created_at"}).
			AddRow(7, "2026-07", 70.0, 5.0, "{}", time.Now()))

	prev, err := repo.PreviousPeriod(context.Background(), 7, "2026-08")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "2026-07", prev.Period)
	assert.Equal(t, 70.0, prev.Score)
	mock.AssertExpectations(t)
}

func TestGetOrCreateSkipsExistingOffer(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewOfferRepository(mock.DB)

	offer := &OfferProposal{CustomerID: 7, Title: "Descuento fidelidad 10%", Kind: OfferKindDiscount}

	mock.Mock.ExpectExec("INSERT INTO offer_proposals").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.GetOrCreate(context.Background(), offer)
	require.NoError(t, err)
	assert.False(t, created)
	mock.AssertExpectations(t)
}

func TestGetOrCreateInsertsAndReadsID(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewOfferRepository(mock.DB)

	offer := &OfferProposal{CustomerID: 7, Title: "Descuento fidelidad 10%", Kind: OfferKindDiscount, RuleName: "fidelidad_premium", Period: "2026-08"}

	mock.Mock.ExpectExec("INSERT INTO offer_proposals").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectQuery("SELECT id FROM offer_proposals").
		WithArgs(int64(7), "Descuento fidelidad 10%").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

	created, err := repo.GetOrCreate(context.Background(), offer)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(12), offer.ID)
	assert.Equal(t, OfferStatePending, offer.State)
	mock.AssertExpectations(t)
}

func TestMetricsMapDecodes(t *testing.T) {
	h := RankingHistory{Metrics: `{"critical_norm":0.7,"margin_norm":0.2}`}
	m := h.MetricsMap()
	assert.Equal(t, 0.7, m["critical_norm"])
	assert.Equal(t, 0.2, m["margin_norm"])

	empty := RankingHistory{Metrics: "not json"}
	assert.Empty(t, empty.MetricsMap())
}
