package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// KindOrphanBlob marks a blob that no FileRecord references.
const KindOrphanBlob = "orphan_blob"

const messageVersion = 1

// Message is the payload sent to the janitor worker.
type Message struct {
	Kind       string `json:"kind"`
	StorageKey string `json:"storageKey"`
	OwnerID    string `json:"ownerId"`
	Reason     string `json:"reason"`
	RequestID  string `json:"requestId,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewOrphanMessage builds an orphan-blob message stamped with the current time.
func NewOrphanMessage(storageKey, ownerID, reason, requestID string) Message {
	return Message{
		Kind:       KindOrphanBlob,
		StorageKey: storageKey,
		OwnerID:    ownerID,
		Reason:     reason,
		RequestID:  requestID,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    messageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses and validates a JSON payload.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Kind != KindOrphanBlob {
		return Message{}, fmt.Errorf("unsupported message kind %q", msg.Kind)
	}
	if msg.StorageKey == "" {
		return Message{}, errors.New("message missing storageKey")
	}
	return msg, nil
}
