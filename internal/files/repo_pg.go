package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cloudvault-backend/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const fileColumns = `id, owner_id, parent_id, name, size_bytes, mime_type, storage_key, is_deleted, is_favorite, created_at, updated_at`

// Create inserts a new record.
func (r *PGRepo) Create(ctx context.Context, rec FileRecord) error {
	const query = `
INSERT INTO files (` + fileColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.DB.ExecContext(ctx, query,
		rec.ID,
		rec.OwnerID,
		nullString(rec.ParentID),
		rec.Name,
		rec.Size,
		rec.MimeType,
		nullIfEmpty(rec.StorageKey),
		rec.IsDeleted,
		rec.IsFavorite,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate id or storage key", ErrInvalidInput)
		}
		return err
	}
	return nil
}

// GetByID fetches a record by id.
func (r *PGRepo) GetByID(ctx context.Context, id string) (FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	rec, err := scanFile(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileRecord{}, ErrNotFound
		}
		return FileRecord{}, err
	}
	return rec, nil
}

// List returns matching records ordered newest first.
func (r *PGRepo) List(ctx context.Context, f ListFilter) ([]FileRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	conds := []string{"owner_id = $1"}
	args := []any{f.OwnerID}
	if !f.IncludeDeleted {
		conds = append(conds, "is_deleted = FALSE")
	}
	if f.FavoritesOnly {
		conds = append(conds, "is_favorite = TRUE")
	}
	if f.ParentID != nil {
		args = append(args, *f.ParentID)
		conds = append(conds, fmt.Sprintf("parent_id = $%d", len(args)))
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM files WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		fileColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]FileRecord, 0)
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Update sets only the columns p names, in one statement. storage_key is
// never touched.
func (r *PGRepo) Update(ctx context.Context, id string, p FilePatch) (FileRecord, error) {
	const query = `
UPDATE files
SET name = COALESCE($2::text, name),
    is_deleted = COALESCE($3::boolean, is_deleted),
    is_favorite = COALESCE($4::boolean, is_favorite),
    updated_at = $5
WHERE id = $1 AND (NOT $6::boolean OR NOT is_deleted)
RETURNING ` + fileColumns

	rec, err := scanFile(r.DB.QueryRowContext(ctx, query,
		id,
		nullString(p.Name),
		nullBool(p.IsDeleted),
		nullBool(p.IsFavorite),
		p.UpdatedAt,
		p.OnlyLive,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileRecord{}, ErrNotFound
		}
		return FileRecord{}, err
	}
	return rec, nil
}

// Delete removes a record.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// UsageBytes sums the owner's blob-backed records.
func (r *PGRepo) UsageBytes(ctx context.Context, ownerID string) (int64, error) {
	const query = `SELECT COALESCE(SUM(size_bytes), 0) FROM files WHERE owner_id = $1 AND storage_key IS NOT NULL`
	var total int64
	if err := r.DB.QueryRowContext(ctx, query, ownerID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// StorageKeyReferenced reports whether any record holds key.
func (r *PGRepo) StorageKeyReferenced(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM files WHERE storage_key = $1)`, key).Scan(&exists)
	return exists, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (FileRecord, error) {
	var rec FileRecord
	var parentID sql.NullString
	var storageKey sql.NullString
	if err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&parentID,
		&rec.Name,
		&rec.Size,
		&rec.MimeType,
		&storageKey,
		&rec.IsDeleted,
		&rec.IsFavorite,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return FileRecord{}, err
	}
	if parentID.Valid {
		p := parentID.String
		rec.ParentID = &p
	}
	if storageKey.Valid {
		rec.StorageKey = storageKey.String
	}
	return rec, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
