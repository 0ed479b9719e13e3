package files

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloudvault-backend/internal/shared/metrics"
	"cloudvault-backend/internal/shared/storage/object"
	"cloudvault-backend/internal/shared/telemetry"
)

const defaultContentType = "application/octet-stream"

// Download is an open blob plus the framing needed to serve it. The caller
// must close Body on every path.
type Download struct {
	Body               io.ReadCloser
	Size               int64
	ContentType        string
	FileName           string
	Disposition        string
	ContentDisposition string
}

// Retrieve resolves fileID to its blob. Missing, deleted, blob-less and
// foreign records are all reported as ErrNotFound.
func (s *Service) Retrieve(ctx context.Context, requesterID, fileID string, inline bool) (*Download, error) {
	if fileID == "" {
		return nil, ErrInvalidInput
	}
	rec, err := s.Repo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.IncRetrieval("not_found")
			return nil, ErrNotFound
		}
		metrics.IncRetrieval("failed")
		return nil, fmt.Errorf("lookup file: %w", err)
	}
	if rec.IsDeleted || rec.OwnerID != requesterID {
		metrics.IncRetrieval("not_found")
		return nil, ErrNotFound
	}
	if rec.StorageKey == "" {
		s.integrityDefect(ctx, rec, "record has no storage key")
		return nil, ErrNotFound
	}

	obj, err := s.Store.Get(ctx, rec.StorageKey)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			s.integrityDefect(ctx, rec, "blob missing from object store")
			return nil, ErrNotFound
		}
		metrics.IncRetrieval("failed")
		return nil, fmt.Errorf("open blob: %w", err)
	}

	size := obj.Size
	if size <= 0 {
		size = rec.Size
	}
	if size != rec.Size {
		telemetry.Warn("files.size_mismatch", map[string]any{
			"file_id":     rec.ID,
			"record_size": rec.Size,
			"blob_size":   size,
		})
	}

	contentType := rec.MimeType
	if contentType == "" {
		contentType = obj.ContentType
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	disposition := DispositionAttachment
	if inline {
		disposition = DispositionInline
	}
	name := servedName(rec.Name, contentType)

	metrics.IncRetrieval("served")
	return &Download{
		Body:               obj.Body,
		Size:               size,
		ContentType:        contentType,
		FileName:           name,
		Disposition:        disposition,
		ContentDisposition: contentDisposition(disposition, name),
	}, nil
}

func (s *Service) integrityDefect(ctx context.Context, rec FileRecord, reason string) {
	metrics.IncRetrieval("not_found")
	metrics.IncIntegrityDefect()
	telemetry.Error("files.integrity_defect", map[string]any{
		"file_id":     rec.ID,
		"owner_id":    rec.OwnerID,
		"storage_key": rec.StorageKey,
		"reason":      reason,
		"request_id":  requestIDFrom(ctx),
	})
}
