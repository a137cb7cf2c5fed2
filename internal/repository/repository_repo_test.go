package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/devlens/internal/models"
)

// TestRepositoryRepository_Upsert_RefetchesAfterConflict verifies that an
// upsert against an existing canonical_url re-reads the row so the caller's
// struct gets the persisted id back, since ON CONFLICT DO UPDATE doesn't
// return it inline here.
func TestRepositoryRepository_Upsert_RefetchesAfterConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepositoryRepository(db)

	r := &models.Repository{
		ID:           "new_id",
		Provider:     "github",
		CanonicalURL: "https://github.com/acme/widget",
		Owner:        "acme",
		Name:         "widget",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	mock.ExpectExec(`INSERT INTO repositories`).WillReturnResult(sqlmock.NewResult(0, 1))

	cols := []string{"id", "provider", "canonical_url", "owner", "name", "default_branch", "head_commit",
		"description", "language", "stars", "forks", "size_kb", "last_analyzed_at", "created_at", "updated_at"}
	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM repositories WHERE canonical_url = \$1`).
		WithArgs("https://github.com/acme/widget").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"existing_id", "github", "https://github.com/acme/widget", "acme", "widget",
			"main", "deadbeef", "", "Go", 10, 2, 512, nil, now, now))

	err := repo.Upsert(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "existing_id", r.ID)
	assert.Equal(t, "deadbeef", r.HeadCommit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepositoryRepository(db)

	mock.ExpectQuery(`SELECT \* FROM repositories WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	got, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, got)
}
