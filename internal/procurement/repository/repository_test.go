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

func TestStockGetNotFound(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewStockRepository(mock.DB)

	mock.Mock.ExpectQuery("SELECT id, name, quantity, unit_cost").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), 42)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestQuantityForUpdateMissingItemIsZero(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewStockRepository(mock.DB)

	mock.Mock.ExpectBegin()
	mock.ExpectQuery(`SELECT quantity FROM stock_items WHERE id = $1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}))

	tx, err := mock.DB.Beginx()
	require.NoError(t, err)

	qty, err := repo.QuantityForUpdateTx(tx, 7)
	require.NoError(t, err)
	assert.True(t, qty.IsZero())
}

func TestMarkAppliedTxIsIdempotent(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewStockApplicationRepository(mock.DB)

	mock.Mock.ExpectBegin()
	mock.Mock.ExpectExec("INSERT INTO stock_applications").
		WithArgs(int64(10), "reserved").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectExec("INSERT INTO stock_applications").
		WithArgs(int64(10), "reserved").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := mock.DB.Beginx()
	require.NoError(t, err)

	applied, err := repo.MarkAppliedTx(tx, 10, "reserved")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.MarkAppliedTx(tx, 10, "reserved")
	require.NoError(t, err)
	assert.False(t, applied, "second application of the same transition must be skipped")
}

func TestLockForOrderTxLocksApplicationRows(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewStockApplicationRepository(mock.DB)

	mock.Mock.ExpectBegin()
	mock.ExpectQuery(`SELECT state FROM stock_applications WHERE order_id = $1 ORDER BY state FOR UPDATE`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("reserved"))

	tx, err := mock.DB.Beginx()
	require.NoError(t, err)

	require.NoError(t, repo.LockForOrderTx(tx, 10))
	mock.AssertExpectations(t)
}

func TestWeightsGetFallsBackToDefaults(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewWeightsRepository(mock.DB)

	mock.Mock.ExpectQuery("SELECT id, version, price, cumplimiento").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.4, w.Price)
	assert.Equal(t, 0.3, w.Cumplimiento)
	assert.Equal(t, 0.2, w.Incidencias)
	assert.Equal(t, 0.1, w.Disponibilidad)
}

func TestListStatsScopedToStockItem(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewSupplierRepository(mock.DB)

	// Price average and latest inquiry are filtered to the requested item
	mock.ExpectQuery(`AVG(po.unit_price) FILTER (WHERE po.stock_item_id = $1)`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"supplier_id", "total_orders", "confirmed_orders", "incident_orders", "avg_price", "last_inquiry_available"}).
			AddRow(1, 10, 8, 1, "12.50", true).
			AddRow(2, 0, 0, 0, nil, nil))

	stats, err := repo.ListStats(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.True(t, stats[0].AvgPrice.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, *stats[0].LastInquiryAvailable)
	assert.Nil(t, stats[1].AvgPrice)
	assert.Nil(t, stats[1].LastInquiryAvailable)
	mock.AssertExpectations(t)
}

func TestHasRecentProposal(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewProposalRepository(mock.DB)

	since := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	mock.Mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(3), since).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.HasRecentProposal(context.Background(), 3, since)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReplaceForOrderTxWritesSortedRows(t *testing.T) {
	mock := testutil.NewMockDB(t)
	repo := NewReservationRepository(mock.DB)

	mock.Mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM order_reservations WHERE order_id = $1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.Mock.ExpectExec("INSERT INTO order_reservations").
		WithArgs(int64(5), int64(1), decimal.NewFromInt(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectExec("INSERT INTO order_reservations").
		WithArgs(int64(5), int64(2), decimal.NewFromInt(250)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := mock.DB.Beginx()
	require.NoError(t, err)

	err = repo.ReplaceForOrderTx(tx, 5, map[int64]decimal.Decimal{
		2: decimal.NewFromInt(250),
		1: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	mock.AssertExpectations(t)
}
