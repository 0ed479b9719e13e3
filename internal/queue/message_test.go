package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"cloudvault-backend/internal/shared/storage/object"
)

func TestDecodeMessageValidates(t *testing.T) {
	msg := NewOrphanMessage("abc/01j", "u1", "rollback_failed", "req-1")
	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got.StorageKey != "abc/01j" || got.Kind != KindOrphanBlob || got.Version != 1 {
		t.Fatalf("unexpected message: %+v", got)
	}

	if _, err := DecodeMessage([]byte(`{"kind":"other","storageKey":"k"}`)); err == nil {
		t.Fatalf("expected unsupported kind error")
	}
	if _, err := DecodeMessage([]byte(`{"kind":"orphan_blob"}`)); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := DecodeMessage([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestJanitorProcess(t *testing.T) {
	msg := NewOrphanMessage("k1", "u1", "hard_delete", "")

	del := &fakeDeleter{}
	if err := (&Janitor{Store: del}).Process(context.Background(), msg); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(del.deleted) != 1 || del.deleted[0] != "k1" {
		t.Fatalf("expected delete of k1, got %v", del.deleted)
	}

	gone := &fakeDeleter{err: object.ErrNotFound}
	if err := (&Janitor{Store: gone}).Process(context.Background(), msg); err != nil {
		t.Fatalf("already-gone blob should succeed: %v", err)
	}

	failing := &fakeDeleter{err: errors.New("503")}
	if err := (&Janitor{Store: failing}).Process(context.Background(), msg); err == nil {
		t.Fatalf("expected failure to propagate")
	}

	kept := &fakeDeleter{}
	if err := (&Janitor{Store: kept, Refs: fakeRefs{referenced: true}}).Process(context.Background(), msg); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(kept.deleted) != 0 {
		t.Fatalf("referenced blob must not be deleted")
	}
}

type fakeSQS struct{ bodies []string }

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.bodies = append(f.bodies, *in.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSClientSendEncodes(t *testing.T) {
	fake := &fakeSQS{}
	c := &SQSClient{api: fake, queueURL: "https://sqs.local/q"}
	if err := c.Send(context.Background(), NewOrphanMessage("k", "u", "r", "")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fake.bodies) != 1 {
		t.Fatalf("expected one message")
	}
	if _, err := DecodeMessage([]byte(fake.bodies[0])); err != nil {
		t.Fatalf("sent body not decodable: %v", err)
	}
}
