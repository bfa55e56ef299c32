package testutil

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/tucanprint/tucan-backend/pkg/database"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// MockDB bundles a sqlmock-backed database for repository tests
type MockDB struct {
	DB   *database.DB
	Mock sqlmock.Sqlmock
}

// NewMockDB creates a database backed by sqlmock. The connection is
// registered for cleanup when the test ends.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	log := logger.New("test", "test")
	db := database.NewFromSqlx(sqlxDB, log)

	t.Cleanup(func() {
		db.Close()
	})

	return &MockDB{
		DB:   db,
		Mock: mock,
	}
}

// ExpectQuery expects a query matching the exact SQL string
func (m *MockDB) ExpectQuery(sql string) *sqlmock.ExpectedQuery {
	return m.Mock.ExpectQuery(regexp.QuoteMeta(sql))
}

// ExpectExec expects an exec matching the exact SQL string
func (m *MockDB) ExpectExec(sql string) *sqlmock.ExpectedExec {
	return m.Mock.ExpectExec(regexp.QuoteMeta(sql))
}

// AssertExpectations verifies all expectations were met
func (m *MockDB) AssertExpectations(t *testing.T) {
	t.Helper()
	if err := m.Mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

// TestLogger returns a logger suitable for tests
func TestLogger() *logger.Logger {
	return logger.New("test", "test")
}
