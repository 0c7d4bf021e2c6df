package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/Tasktrack/internal/port/notifier"
)

// Compile-time interface check.
var _ notifier.Notifier = (*Notifier)(nil)

func TestNotifierName(t *testing.T) {
	n := NewNotifier("", "")
	if n.Name() != "discord" {
		t.Fatalf("expected 'discord', got %q", n.Name())
	}
}

func TestSendNotConfigured(t *testing.T) {
	n := NewNotifier("", "")
	err := n.Send(context.Background(), notifier.Notification{Title: "test"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendEmbed(t *testing.T) {
	var got discordWebhook
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "Tasktrack")
	err := n.Send(context.Background(), notifier.Notification{
		Title:   "Task rejected: Fire drill report",
		Message: "Rejected by Mo",
		Level:   notifier.LevelWarning,
		Source:  "tasks.transitioned",
		Fields:  []notifier.Field{{Name: "Status", Value: "in_progress"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Username != "Tasktrack" || len(got.Embeds) != 1 {
		t.Fatalf("payload = %+v", got)
	}
	e := got.Embeds[0]
	if e.Color != 0xF39C12 {
		t.Fatalf("color = %#x, want warning orange", e.Color)
	}
	if len(e.Fields) != 1 || e.Fields[0].Value != "in_progress" {
		t.Fatalf("fields = %+v", e.Fields)
	}
	if e.Footer == nil || e.Footer.Text != "tasks.transitioned" {
		t.Fatalf("footer = %+v", e.Footer)
	}
}

func TestBuildEmbedCapsFields(t *testing.T) {
	fields := make([]notifier.Field, 40)
	for i := range fields {
		fields[i] = notifier.Field{Name: fmt.Sprint(i), Value: "v"}
	}
	e := buildEmbed(notifier.Notification{Title: "x", Fields: fields})
	if len(e.Fields) != maxEmbedFields {
		t.Fatalf("fields = %d, want %d", len(e.Fields), maxEmbedFields)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid Form Body"}`))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	if err := n.Send(context.Background(), notifier.Notification{Title: "Test"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
}
