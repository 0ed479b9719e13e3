package files

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGRepoCreateMapsUniqueViolation(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	repo := &PGRepo{DB: sqlDB}
	now := time.Now().UTC()
	rec := FileRecord{ID: "f1", OwnerID: "u1", Name: "a.txt", Size: 3, MimeType: "text/plain", StorageKey: "k/1", CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO files")).
		WithArgs("f1", "u1", nil, "a.txt", int64(3), "text/plain", "k/1", false, false, now, now).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = repo.Create(context.Background(), rec)
	assert.ErrorIs(t, err, ErrInvalidInput)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM files WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = (&PGRepo{DB: sqlDB}).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoListBuildsFilter(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	now := time.Now().UTC()
	parent := "folder-1"
	cols := []string{"id", "owner_id", "parent_id", "name", "size_bytes", "mime_type", "storage_key", "is_deleted", "is_favorite", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE owner_id = $1 AND is_deleted = FALSE AND is_favorite = TRUE AND parent_id = $2 ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4")).
		WithArgs("u1", parent, 200, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("f1", "u1", parent, "a.txt", int64(3), "text/plain", "k/1", false, true, now, now))

	recs, err := (&PGRepo{DB: sqlDB}).List(context.Background(), ListFilter{
		OwnerID:       "u1",
		ParentID:      &parent,
		FavoritesOnly: true,
		Limit:         500,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].ParentID)
	assert.Equal(t, parent, *recs[0].ParentID)
	assert.Equal(t, "k/1", recs[0].StorageKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoUpdateMissingRow(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	name := "b.txt"
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE files")).
		WithArgs("f1", sql.NullString{String: name, Valid: true}, sql.NullBool{}, sql.NullBool{}, at, true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = (&PGRepo{DB: sqlDB}).Update(context.Background(), "f1", FilePatch{Name: &name, OnlyLive: true, UpdatedAt: at})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoUpdateSetsOnlyPatchedColumns(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	deleted := true
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SET name = COALESCE\(\$2::text, name\),\s+is_deleted = COALESCE\(\$3::boolean, is_deleted\)`).
		WithArgs("f1", sql.NullString{}, sql.NullBool{Bool: true, Valid: true}, sql.NullBool{}, at, false).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "owner_id", "parent_id", "name", "size_bytes", "mime_type", "storage_key",
			"is_deleted", "is_favorite", "created_at", "updated_at",
		}).AddRow("f1", "u1", nil, "a.txt", int64(3), "text/plain", "k/1", true, true, at, at))

	rec, err := (&PGRepo{DB: sqlDB}).Update(context.Background(), "f1", FilePatch{IsDeleted: &deleted, UpdatedAt: at})
	require.NoError(t, err)
	assert.True(t, rec.IsDeleted)
	assert.True(t, rec.IsFavorite)
	assert.Equal(t, "a.txt", rec.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoStorageKeyReferenced(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("k/1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("k/2").
		WillReturnError(errors.New("conn reset"))

	repo := &PGRepo{DB: sqlDB}
	ok, err := repo.StorageKeyReferenced(context.Background(), "k/1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.StorageKeyReferenced(context.Background(), "k/2")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
