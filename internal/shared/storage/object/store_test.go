package object

import (
	"errors"
	"io"
	"strings"
	"testing"

	"cloudvault-backend/internal/shared/util"
)

func TestNewKeyIsOwnerScopedAndUnique(t *testing.T) {
	a := NewKey("u1")
	b := NewKey("u1")
	if a == b {
		t.Fatalf("expected distinct keys, got %q twice", a)
	}
	if !strings.HasPrefix(a, util.OwnerKeyPrefix("u1")+"/") {
		t.Fatalf("expected owner namespace prefix, got %q", a)
	}
	if err := CheckKey(a, "u1"); err != nil {
		t.Fatalf("expected key valid for owner: %v", err)
	}
	if err := CheckKey(a, "u2"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for other owner, got %v", err)
	}
}

func TestCheckKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "/abs", "a/../b", `a\b`} {
		if err := CheckKey(key, ""); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("%q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestCountingReader(t *testing.T) {
	cr := &CountingReader{R: strings.NewReader("hello world")}
	if _, err := io.Copy(io.Discard, cr); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if cr.N != 11 {
		t.Fatalf("expected 11, got %d", cr.N)
	}
	if err := SizeMismatch(11, cr.N); err != nil {
		t.Fatalf("unexpected mismatch: %v", err)
	}
	if err := SizeMismatch(10, cr.N); err == nil {
		t.Fatalf("expected mismatch")
	}
	if err := SizeMismatch(-1, cr.N); err != nil {
		t.Fatalf("unknown size should not mismatch: %v", err)
	}
}
