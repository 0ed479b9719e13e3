package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestInfoWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { Configure("info", "json") })

	Info("upload committed", map[string]any{"fileId": "f1", "size": 5})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json: %v (%s)", err, buf.String())
	}
	if entry["level"] != "info" || entry["msg"] != "upload committed" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["fileId"] != "f1" {
		t.Fatalf("expected fileId field, got %v", entry["fileId"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts field")
	}
}

func TestErrorFieldsRenderMessage(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { Configure("info", "json") })

	Error("rollback failed", map[string]any{"err": errors.New("boom")})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["err"] != "boom" {
		t.Fatalf("expected err=boom, got %v", entry["err"])
	}
}
