package queue

import (
	"context"

	"cloudvault-backend/internal/shared/telemetry"
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// LogClient records messages in the log only. It is used when no queue is
// configured so orphan reports are still visible to operators.
type LogClient struct{}

// Send logs msg.
func (LogClient) Send(_ context.Context, msg Message) error {
	telemetry.Warn("queue.orphan_unqueued", map[string]any{
		"kind":        msg.Kind,
		"storage_key": msg.StorageKey,
		"owner_id":    msg.OwnerID,
		"reason":      msg.Reason,
		"request_id":  msg.RequestID,
	})
	return nil
}

var _ Client = LogClient{}
