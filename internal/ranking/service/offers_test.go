package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tucanprint/tucan-backend/internal/ranking/repository"
	"github.com/tucanprint/tucan-backend/pkg/testutil"
)

type fakeOfferNotifier struct {
	proposed []*repository.OfferProposal
}

func (f *fakeOfferNotifier) NotifyOfferProposed(ctx context.Context, offer *repository.OfferProposal) {
	f.proposed = append(f.proposed, offer)
}

func newOfferEngine(mock *testutil.MockDB, notifier OfferNotifier) *OfferEngine {
	return NewOfferEngine(
		repository.NewRankingRepository(mock.DB),
		repository.NewOfferRepository(mock.DB),
		fakeParams{},
		notifier,
		testutil.TestLogger(),
	)
}

func TestOfferEngineProposesForHighScore(t *testing.T) {
	mock := testutil.NewMockDB(t)
	notifier := &fakeOfferNotifier{}
	engine := newOfferEngine(mock, notifier)

	ts := time.Now()

	mock.Mock.ExpectQuery("SELECT customer_id, score, updated_at FROM customer_rankings").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "score", "updated_at"}).
			AddRow(7, 85.0, ts))

	// History: one period, no decline, no critical/margin signal
	mock.Mock.ExpectQuery("FROM customer_ranking_history").
		WithArgs(int64(7), 6).
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "period", "score", "variacion", "metrics", "created_at"}).
			AddRow(7, "2026-08", 85.0, 0.0, `{"critical_norm":0.1,"margin_norm":0.2}`, ts))

	// Only fidelidad_premium (score_gte 80) matches
	mock.Mock.ExpectExec("INSERT INTO offer_proposals").
		WithArgs(int64(7), "Descuento fidelidad 10%", repository.OfferKindDiscount, repository.OfferStatePending,
			"fidelidad_premium", 85.0, sqlmock.AnyArg(), "2026-08").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectQuery("SELECT id FROM offer_proposals").
		WithArgs(int64(7), "Descuento fidelidad 10%").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))

	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.RuleMatches)
	assert.Equal(t, 1, report.OffersCreated)
	assert.Equal(t, 0, report.Failures)
	require.Len(t, notifier.proposed, 1)
	assert.Equal(t, int64(41), notifier.proposed[0].ID)
	mock.AssertExpectations(t)
}

func TestOfferEngineSecondRunCreatesNothing(t *testing.T) {
	mock := testutil.NewMockDB(t)
	notifier := &fakeOfferNotifier{}
	engine := newOfferEngine(mock, notifier)

	ts := time.Now()

	mock.Mock.ExpectQuery("SELECT customer_id, score, updated_at FROM customer_rankings").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "score", "updated_at"}).
			AddRow(7, 85.0, ts))

	mock.Mock.ExpectQuery("FROM customer_ranking_history").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "period", "score", "variacion", "metrics", "created_at"}).
			AddRow(7, "2026-08", 85.0, 0.0, `{}`, ts))

	// Conflict: the offer already exists, zero rows affected
	mock.Mock.ExpectExec("INSERT INTO offer_proposals").
		WillReturnResult(sqlmock.NewResult(0, 0))

	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.RuleMatches, "the rule still matches")
	assert.Equal(t, 0, report.OffersCreated, "but no duplicate offer is created")
	assert.Empty(t, notifier.proposed)
	mock.AssertExpectations(t)
}

func TestOfferEngineSkipsCustomerWithoutHistory(t *testing.T) {
	mock := testutil.NewMockDB(t)
	engine := newOfferEngine(mock, nil)

	mock.Mock.ExpectQuery("SELECT customer_id, score, updated_at FROM customer_rankings").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "score", "updated_at"}).
			AddRow(9, 95.0, time.Now()))

	mock.Mock.ExpectQuery("FROM customer_ranking_history").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "period", "score", "variacion", "metrics", "created_at"}))

	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.RuleMatches)
	assert.Equal(t, 0, report.OffersCreated)
	mock.AssertExpectations(t)
}
