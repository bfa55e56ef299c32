package service

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
	"github.com/tucanprint/tucan-backend/pkg/testutil"
)

type fakeResolver struct {
	reqs Requirements
}

func (f fakeResolver) Resolve(ctx context.Context, productID int64, quantity decimal.Decimal) (Requirements, error) {
	return f.reqs, nil
}

type fakeNotifier struct {
	shortfalls []Requirements
}

func (f *fakeNotifier) NotifyShortfall(ctx context.Context, orderID *int64, shortfall Requirements) {
	f.shortfalls = append(f.shortfalls, shortfall)
}

func newCalculator(mock *testutil.MockDB, resolver Resolver, notifier ShortfallNotifier) *ConsumptionCalculator {
	log := testutil.TestLogger()
	return NewConsumptionCalculator(
		mock.DB,
		resolver,
		NewStockLedger(mock.DB, repository.NewStockRepository(mock.DB), log),
		repository.NewReservationRepository(mock.DB),
		repository.NewStockApplicationRepository(mock.DB),
		notifier,
		log,
	)
}

func TestOnOrderCreatedReservesStock(t *testing.T) {
	mock := testutil.NewMockDB(t)
	notifier := &fakeNotifier{}
	calc := newCalculator(mock, fakeResolver{reqs: Requirements{1: dec(100)}}, notifier)

	// Advisory check sees enough stock
	mock.ExpectQuery(`SELECT quantity FROM stock_items WHERE id = $1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow("500"))

	mock.Mock.ExpectBegin()
	mock.Mock.ExpectExec("INSERT INTO stock_applications").
		WithArgs(int64(10), "reserved").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT quantity FROM stock_items WHERE id = $1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow("500"))
	mock.ExpectExec(`UPDATE stock_items SET quantity = $2, updated_at = NOW() WHERE id = $1`).
		WithArgs(int64(1), dec(400)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM order_reservations WHERE order_id = $1`).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.Mock.ExpectExec("INSERT INTO order_reservations").
		WithArgs(int64(10), int64(1), dec(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectCommit()

	order := &repository.Order{ID: 10, ProductID: 7, Quantity: dec(50)}
	result, err := calc.OnOrderCreated(context.Background(), order)
	require.NoError(t, err)

	assert.True(t, result.OK)
	assert.Empty(t, notifier.shortfalls)
	mock.AssertExpectations(t)
}

func TestOnOrderCreatedShortfallIsWarningNotFailure(t *testing.T) {
	mock := testutil.NewMockDB(t)
	notifier := &fakeNotifier{}
	calc := newCalculator(mock, fakeResolver{reqs: Requirements{1: dec(100)}}, notifier)

	mock.ExpectQuery(`SELECT quantity FROM stock_items WHERE id = $1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow("30"))

	mock.Mock.ExpectBegin()
	mock.Mock.ExpectExec("INSERT INTO stock_applications").
		WithArgs(int64(11), "reserved").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT quantity FROM stock_items WHERE id = $1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow("30"))
	mock.ExpectExec(`UPDATE stock_items SET quantity = $2, updated_at = NOW() WHERE id = $1`).
		WithArgs(int64(1), decimal.Zero).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM order_reservations WHERE order_id = $1`).
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.Mock.ExpectExec("INSERT INTO order_reservations").
		WithArgs(int64(11), int64(1), dec(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectCommit()

	order := &repository.Order{ID: 11, ProductID: 7, Quantity: dec(50)}
	result, err := calc.OnOrderCreated(context.Background(), order)
	require.NoError(t, err, "insufficient stock must not fail the order")

	assert.False(t, result.OK)
	assert.True(t, result.Shortfall[1].Equal(dec(70)))
	require.Len(t, notifier.shortfalls, 1)
}

func TestOnOrderCreatedDuplicateTransitionSkipsStockEffects(t *testing.T) {
	mock := testutil.NewMockDB(t)
	calc := newCalculator(mock, fakeResolver{reqs: Requirements{1: dec(100)}}, &fakeNotifier{})

	mock.ExpectQuery(`SELECT quantity FROM stock_items WHERE id = $1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow("500"))

	mock.Mock.ExpectBegin()
	mock.Mock.ExpectExec("INSERT INTO stock_applications").
		WithArgs(int64(12), "reserved").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.Mock.ExpectCommit()

	order := &repository.Order{ID: 12, ProductID: 7, Quantity: dec(50)}
	_, err := calc.OnOrderCreated(context.Background(), order)
	require.NoError(t, err)
	mock.AssertExpectations(t)
}

func TestOnOrderCancelledReleasesInFull(t *testing.T) {
	mock := testutil.NewMockDB(t)
	calc := newCalculator(mock, fakeResolver{}, &fakeNotifier{})

	mock.Mock.ExpectBegin()
	mock.ExpectQuery(`SELECT state FROM stock_applications WHERE order_id = $1 ORDER BY state FOR UPDATE`).
		WithArgs(int64(13)).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("reserved"))
	mock.Mock.ExpectExec("INSERT INTO stock_applications").
		WithArgs(int64(13), "released").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectQuery("SELECT order_id, stock_item_id, quantity FROM order_reservations").
		WithArgs(int64(13)).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "stock_item_id", "quantity"}).
			AddRow(13, 1, "100"))
	mock.ExpectQuery(`SELECT quantity FROM stock_items WHERE id = $1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow("400"))
	mock.ExpectExec(`UPDATE stock_items SET quantity = $2, updated_at = NOW() WHERE id = $1`).
		WithArgs(int64(1), dec(500)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM order_reservations WHERE order_id = $1`).
		WithArgs(int64(13)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectCommit()

	err := calc.OnOrderCancelled(context.Background(), 13)
	require.NoError(t, err)
	mock.AssertExpectations(t)
}

func TestOnOrderUpdatedAppliesNetDelta(t *testing.T) {
	mock := testutil.NewMockDB(t)
	notifier := &fakeNotifier{}
	calc := newCalculator(mock, fakeResolver{reqs: Requirements{1: dec(60)}}, notifier)

	// Previously reserved 100, new requirement 60: 40 goes back.
	mock.Mock.ExpectBegin()
	mock.ExpectQuery(`SELECT state FROM stock_applications WHERE order_id = $1 ORDER BY state FOR UPDATE`).
		WithArgs(int64(14)).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("reserved"))
	mock.Mock.ExpectQuery("SELECT order_id, stock_item_id, quantity FROM order_reservations").
		WithArgs(int64(14)).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "stock_item_id", "quantity"}).
			AddRow(14, 1, "100"))
	mock.ExpectQuery(`SELECT quantity FROM stock_items WHERE id = $1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow("200"))
	mock.ExpectExec(`UPDATE stock_items SET quantity = $2, updated_at = NOW() WHERE id = $1`).
		WithArgs(int64(1), dec(240)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM order_reservations WHERE order_id = $1`).
		WithArgs(int64(14)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectExec("INSERT INTO order_reservations").
		WithArgs(int64(14), int64(1), dec(60)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectCommit()

	order := &repository.Order{ID: 14, ProductID: 7, Quantity: dec(30)}
	result, err := calc.OnOrderUpdated(context.Background(), order)
	require.NoError(t, err)

	assert.True(t, result.OK, "a quantity decrease never needs validation")
	mock.AssertExpectations(t)
}

func TestOnOrderUpdatedSerializedRedeliveryAppliesDeltaOnce(t *testing.T) {
	mock := testutil.NewMockDB(t)
	calc := newCalculator(mock, fakeResolver{reqs: Requirements{1: dec(20)}}, &fakeNotifier{})

	// First delivery of the 10→20 update: locks the order, reads the
	// old baseline and applies the +10 delta.
	mock.Mock.ExpectBegin()
	mock.ExpectQuery(`SELECT state FROM stock_applications WHERE order_id = $1 ORDER BY state FOR UPDATE`).
		WithArgs(int64(15)).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("reserved"))
	mock.Mock.ExpectQuery("SELECT order_id, stock_item_id, quantity FROM order_reservations").
		WithArgs(int64(15)).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "stock_item_id", "quantity"}).
			AddRow(15, 1, "10"))
	mock.ExpectQuery(`SELECT quantity FROM stock_items WHERE id = $1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow("100"))
	mock.ExpectExec(`UPDATE stock_items SET quantity = $2, updated_at = NOW() WHERE id = $1`).
		WithArgs(int64(1), dec(90)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM order_reservations WHERE order_id = $1`).
		WithArgs(int64(15)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectExec("INSERT INTO order_reservations").
		WithArgs(int64(15), int64(1), dec(20)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectCommit()

	// Redelivery of the same update: the lock forces it behind the
	// first transaction, so the baseline it reads is already 20 and
	// the delta is zero — no stock statement may be issued.
	mock.Mock.ExpectBegin()
	mock.ExpectQuery(`SELECT state FROM stock_applications WHERE order_id = $1 ORDER BY state FOR UPDATE`).
		WithArgs(int64(15)).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("reserved"))
	mock.Mock.ExpectQuery("SELECT order_id, stock_item_id, quantity FROM order_reservations").
		WithArgs(int64(15)).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "stock_item_id", "quantity"}).
			AddRow(15, 1, "20"))
	mock.ExpectExec(`DELETE FROM order_reservations WHERE order_id = $1`).
		WithArgs(int64(15)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectExec("INSERT INTO order_reservations").
		WithArgs(int64(15), int64(1), dec(20)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.Mock.ExpectCommit()

	order := &repository.Order{ID: 15, ProductID: 7, Quantity: dec(10)}
	_, err := calc.OnOrderUpdated(context.Background(), order)
	require.NoError(t, err)

	_, err = calc.OnOrderUpdated(context.Background(), order)
	require.NoError(t, err)
	mock.AssertExpectations(t)
}
