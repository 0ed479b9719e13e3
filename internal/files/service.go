package files

import (
	"context"
	"net/url"
	"strings"
	"time"

	"cloudvault-backend/internal/queue"
	"cloudvault-backend/internal/shared/metrics"
	"cloudvault-backend/internal/shared/storage/object"
	"cloudvault-backend/internal/shared/telemetry"
)

const (
	// DefaultMaxUploadBytes is the per-file ceiling (50 MiB).
	DefaultMaxUploadBytes int64 = 50 << 20
	defaultStoreTimeout         = 30 * time.Second
	retrievePath                = "/api/v1/files/retrieve"
)

// Service implements ingestion, retrieval and file management.
type Service struct {
	Store   object.ObjectStore
	Repo    Repo
	Orphans queue.Client
	Quota   QuotaPolicy

	MaxUploadBytes int64
	// StoreTimeout bounds object store writes and deletes. Reads are bounded
	// by the caller since the body is streamed after return.
	StoreTimeout  time.Duration
	PublicBaseURL string

	now func() time.Time
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) maxUpload() int64 {
	if s.MaxUploadBytes > 0 {
		return s.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

func (s *Service) storeTimeout() time.Duration {
	if s.StoreTimeout > 0 {
		return s.StoreTimeout
	}
	return defaultStoreTimeout
}

// RetrievalURL is the permanent URL that serves a file's bytes.
func (s *Service) RetrievalURL(fileID string) string {
	return strings.TrimRight(s.PublicBaseURL, "/") + retrievePath + "?fileId=" + url.QueryEscape(fileID)
}

// reportOrphan queues a blob that no record references.
func (s *Service) reportOrphan(ctx context.Context, key, ownerID, reason, requestID string) {
	metrics.IncOrphan("enqueued")
	client := s.Orphans
	if client == nil {
		client = queue.LogClient{}
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout())
	defer cancel()
	if err := client.Send(sendCtx, queue.NewOrphanMessage(key, ownerID, reason, requestID)); err != nil {
		metrics.IncOrphan("enqueue_failed")
		telemetry.Error("files.orphan_enqueue_failed", map[string]any{
			"storage_key": key,
			"owner_id":    ownerID,
			"reason":      reason,
			"err":         err,
		})
	}
}

type requestIDKey struct{}

// WithRequestID tags ctx so orphan reports can be correlated with a request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
