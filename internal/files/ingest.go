package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"cloudvault-backend/internal/shared/metrics"
	"cloudvault-backend/internal/shared/saga"
	"cloudvault-backend/internal/shared/storage/object"
	"cloudvault-backend/internal/shared/telemetry"
	"cloudvault-backend/internal/shared/util"
)

const sniffLen = 3072

// IngestRequest is one upload. Size must be measured by the caller before
// the body is handed over.
type IngestRequest struct {
	OwnerID          string
	ParentID         *string
	FileName         string
	DeclaredMimeType string
	Size             int64
	Body             io.Reader
}

// Ingest commits the blob and its FileRecord as one unit. On a metadata
// failure the blob is deleted again; if that delete fails too, the blob is
// reported to the orphan queue and the caller still gets ErrMetadataWriteFailed.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (FileRecord, error) {
	return s.ingest(ctx, req, 0)
}

func (s *Service) ingest(ctx context.Context, req IngestRequest, reclaimBytes int64) (FileRecord, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" || req.Body == nil {
		return FileRecord{}, ErrInvalidInput
	}
	name, err := util.SanitizeFileName(req.FileName)
	if err != nil {
		return FileRecord{}, fmt.Errorf("%w: file name", ErrInvalidInput)
	}
	if req.Size < 0 {
		return FileRecord{}, fmt.Errorf("%w: size", ErrInvalidInput)
	}
	if req.Size > s.maxUpload() {
		metrics.IncUpload("too_large")
		return FileRecord{}, ErrPayloadTooLarge
	}
	if err := s.checkQuota(ctx, ownerID, req.Size-reclaimBytes); err != nil {
		return FileRecord{}, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(req.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return FileRecord{}, fmt.Errorf("%w: read body: %v", ErrInvalidInput, err)
	}
	head = head[:n]
	body := io.MultiReader(bytes.NewReader(head), req.Body)
	mimeType := resolveMimeType(req.DeclaredMimeType, head)

	now := s.clock()
	key := object.NewKey(ownerID)
	rec := FileRecord{
		ID:         uuid.NewString(),
		Name:       name,
		OwnerID:    ownerID,
		ParentID:   req.ParentID,
		Size:       req.Size,
		MimeType:   mimeType,
		StorageKey: key,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	res := saga.TwoStep{
		First: func(ctx context.Context) error {
			putCtx, cancel := context.WithTimeout(ctx, s.storeTimeout())
			defer cancel()
			return s.Store.Put(putCtx, key, body, req.Size, object.PutOptions{ContentType: mimeType, OwnerID: ownerID})
		},
		Second: func(ctx context.Context) error {
			return s.Repo.Create(ctx, rec)
		},
		Undo: func(ctx context.Context) error {
			if err := s.Store.Delete(ctx, key); err != nil && !errors.Is(err, object.ErrNotFound) {
				return err
			}
			return nil
		},
		UndoTimeout: s.storeTimeout(),
	}.Run(ctx)
	metrics.IncSagaOutcome(res.Outcome.String())

	fields := map[string]any{
		"file_id":     rec.ID,
		"owner_id":    ownerID,
		"storage_key": key,
		"size":        req.Size,
		"outcome":     res.Outcome.String(),
		"request_id":  requestIDFrom(ctx),
	}
	switch res.Outcome {
	case saga.Committed:
		metrics.IncUpload("committed")
		metrics.AddUploadBytes(req.Size)
		telemetry.Info("files.ingest_committed", fields)
		return rec, nil
	case saga.Aborted:
		metrics.IncUpload("failed")
		fields["err"] = res.Err
		telemetry.Error("files.ingest_store_failed", fields)
		return FileRecord{}, fmt.Errorf("%w: %v", ErrStorageWriteFailed, res.Err)
	case saga.RolledBack:
		metrics.IncUpload("failed")
		fields["err"] = res.Err
		telemetry.Error("files.ingest_metadata_failed", fields)
		return FileRecord{}, fmt.Errorf("%w: %v", ErrMetadataWriteFailed, res.Err)
	default:
		metrics.IncUpload("failed")
		fields["err"] = res.Err
		fields["undo_err"] = res.UndoErr
		telemetry.Error("files.ingest_rollback_failed", fields)
		s.reportOrphan(ctx, key, ownerID, "ingest_rollback_failed", requestIDFrom(ctx))
		return FileRecord{}, fmt.Errorf("%w: %v", ErrMetadataWriteFailed, res.Err)
	}
}

func (s *Service) checkQuota(ctx context.Context, ownerID string, additional int64) error {
	if s.Quota == nil || additional <= 0 {
		return nil
	}
	limit, err := s.Quota.QuotaBytes(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("quota lookup: %w", err)
	}
	if limit < 0 {
		return nil
	}
	used, err := s.Repo.UsageBytes(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("usage lookup: %w", err)
	}
	if used+additional > limit {
		metrics.IncUpload("quota_exceeded")
		return ErrQuotaExceeded
	}
	return nil
}

// resolveMimeType trusts a well-formed declared type unless it is the
// generic octet-stream, in which case the content is sniffed.
func resolveMimeType(declared string, head []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" {
		if mt, params, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return mime.FormatMediaType(mt, params)
		}
	}
	return mimetype.Detect(head).String()
}
