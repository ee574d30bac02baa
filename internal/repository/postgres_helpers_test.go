package repository

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bankportal/idcore/internal/database"
)

func newMockPostgres(t *testing.T) (*database.Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return &database.Postgres{DB: db}, mock
}
