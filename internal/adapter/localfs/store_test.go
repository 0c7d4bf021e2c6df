package localfs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Strob0t/Tasktrack/internal/domain"
)

func TestStore_PutOpenDelete(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	ref, err := s.Put(ctx, "org-1/abc123.txt", strings.NewReader("hello"), "text/plain")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref != "local://org-1/abc123.txt" {
		t.Fatalf("ref = %q", ref)
	}

	rc, err := s.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("data = %q", data)
	}

	// Content-addressed keys make re-upload a harmless overwrite.
	if _, err := s.Put(ctx, "org-1/abc123.txt", strings.NewReader("hello"), ""); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Open(ctx, ref); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Open after delete: want ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestStore_RejectsEscapingKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, key := range []string{"", "../outside.txt", "a/../../b"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), ""); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Put(%q): want ErrValidation, got %v", key, err)
		}
	}
	if _, err := s.Open(context.Background(), "gs://bucket/x"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Open foreign ref: want ErrValidation, got %v", err)
	}
}

func TestStore_PutHonoursCancellation(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, "org-1/x.txt", strings.NewReader("data"), ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
