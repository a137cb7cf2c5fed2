package repository

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// newMockDB returns a sqlx.DB backed by a sqlmock connection, along with the
// mock controller used to set expectations. Postgres-specific syntax (FOR
// UPDATE SKIP LOCKED, RETURNING, tsvector queries) isn't reproducible against
// an in-memory SQLite stand-in, so the gateway tests assert against the
// exact SQL/bindings sent to the driver instead of a live database.
func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}
