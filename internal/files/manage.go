package files

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloudvault-backend/internal/shared/storage/object"
	"cloudvault-backend/internal/shared/telemetry"
	"cloudvault-backend/internal/shared/util"
)

// List returns the owner's files newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]FileRecord, error) {
	if strings.TrimSpace(filter.OwnerID) == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.List(ctx, filter)
}

// Get returns one of the owner's records, including soft-deleted ones.
func (s *Service) Get(ctx context.Context, ownerID, id string) (FileRecord, error) {
	rec, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return FileRecord{}, err
	}
	if rec.OwnerID != ownerID {
		return FileRecord{}, ErrNotFound
	}
	return rec, nil
}

// Rename changes the display name only.
func (s *Service) Rename(ctx context.Context, ownerID, id, name string) (FileRecord, error) {
	clean, err := util.SanitizeFileName(name)
	if err != nil {
		return FileRecord{}, fmt.Errorf("%w: file name", ErrInvalidInput)
	}
	return s.mutate(ctx, ownerID, id, FilePatch{Name: &clean, OnlyLive: true})
}

// SetFavorite toggles the favorite flag.
func (s *Service) SetFavorite(ctx context.Context, ownerID, id string, favorite bool) (FileRecord, error) {
	return s.mutate(ctx, ownerID, id, FilePatch{IsFavorite: &favorite, OnlyLive: true})
}

// SoftDelete hides the file. The blob stays until a hard delete.
func (s *Service) SoftDelete(ctx context.Context, ownerID, id string) (FileRecord, error) {
	deleted := true
	return s.mutate(ctx, ownerID, id, FilePatch{IsDeleted: &deleted})
}

// Restore undoes a soft delete.
func (s *Service) Restore(ctx context.Context, ownerID, id string) (FileRecord, error) {
	deleted := false
	return s.mutate(ctx, ownerID, id, FilePatch{IsDeleted: &deleted})
}

// mutate checks ownership, then hands the patch to the repo, which applies
// it without reading the record back into this process first.
func (s *Service) mutate(ctx context.Context, ownerID, id string, p FilePatch) (FileRecord, error) {
	rec, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return FileRecord{}, err
	}
	if rec.IsDeleted && p.OnlyLive {
		return FileRecord{}, ErrNotFound
	}
	p.UpdatedAt = s.clock()
	return s.Repo.Update(ctx, rec.ID, p)
}

// HardDelete removes the record, then the blob. The record goes first so a
// failure can only leave an unreferenced blob, which is queued for cleanup.
func (s *Service) HardDelete(ctx context.Context, ownerID, id string) error {
	rec, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, rec.ID); err != nil {
		return err
	}
	if rec.StorageKey == "" {
		return nil
	}

	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout())
	defer cancel()
	if err := s.Store.Delete(delCtx, rec.StorageKey); err != nil && !errors.Is(err, object.ErrNotFound) {
		telemetry.Warn("files.blob_delete_failed", map[string]any{
			"file_id":     rec.ID,
			"storage_key": rec.StorageKey,
			"err":         err,
		})
		s.reportOrphan(ctx, rec.StorageKey, rec.OwnerID, "hard_delete_failed", requestIDFrom(ctx))
	}
	return nil
}

// Replace ingests new content as a new record and then hard-deletes the old
// one. The old record's storage key is never re-pointed.
func (s *Service) Replace(ctx context.Context, ownerID, id string, req IngestRequest) (FileRecord, error) {
	old, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return FileRecord{}, err
	}
	if old.IsDeleted {
		return FileRecord{}, ErrNotFound
	}
	req.OwnerID = ownerID
	req.ParentID = old.ParentID
	if strings.TrimSpace(req.FileName) == "" {
		req.FileName = old.Name
	}

	rec, err := s.ingest(ctx, req, old.Size)
	if err != nil {
		return FileRecord{}, err
	}
	if old.IsFavorite {
		favorite := true
		updated, err := s.Repo.Update(ctx, rec.ID, FilePatch{IsFavorite: &favorite, UpdatedAt: s.clock()})
		if err != nil {
			telemetry.Warn("files.replace_favorite_failed", map[string]any{"file_id": rec.ID, "err": err})
		} else {
			rec = updated
		}
	}
	if err := s.HardDelete(ctx, ownerID, old.ID); err != nil {
		telemetry.Warn("files.replace_cleanup_failed", map[string]any{
			"old_file_id": old.ID,
			"new_file_id": rec.ID,
			"err":         err,
		})
	}
	return rec, nil
}
