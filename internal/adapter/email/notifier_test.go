package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/Strob0t/Tasktrack/internal/port/notifier"
)

var _ notifier.Notifier = (*Notifier)(nil)

type capture struct {
	addr string
	to   []string
	msg  string
	err  error
}

func newCapturing(cfg SMTPConfig) (*Notifier, *capture) {
	c := &capture{}
	n := NewNotifier(cfg)
	n.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		c.addr, c.to, c.msg = addr, to, string(msg)
		return c.err
	}
	return n, c
}

func TestSendComposesMessage(t *testing.T) {
	n, c := newCapturing(SMTPConfig{Host: "smtp.example.com", From: "tasktrack@example.com"})
	err := n.Send(context.Background(), notifier.Notification{
		Title:     "Task assigned: Inventory count",
		Message:   "Mo assigned you a task.",
		Recipient: "uma@example.com",
		Fields:    []notifier.Field{{Name: "Priority", Value: "urgent"}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.addr != "smtp.example.com:587" {
		t.Fatalf("addr = %q", c.addr)
	}
	if len(c.to) != 1 || c.to[0] != "uma@example.com" {
		t.Fatalf("to = %v", c.to)
	}
	for _, want := range []string{"Subject: Task assigned: Inventory count\r\n", "Mo assigned you a task.", "Priority: urgent"} {
		if !strings.Contains(c.msg, want) {
			t.Errorf("message missing %q:\n%s", want, c.msg)
		}
	}
}

func TestSendSkipsWithoutRecipient(t *testing.T) {
	n, c := newCapturing(SMTPConfig{Host: "smtp.example.com", From: "tasktrack@example.com"})
	if err := n.Send(context.Background(), notifier.Notification{Title: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.addr != "" {
		t.Fatal("nothing should be sent without a recipient")
	}
}

func TestSendNotConfigured(t *testing.T) {
	n, _ := newCapturing(SMTPConfig{})
	err := n.Send(context.Background(), notifier.Notification{Title: "x", Recipient: "a@b.c"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}

func TestSubjectHeaderInjection(t *testing.T) {
	n, c := newCapturing(SMTPConfig{Host: "h", From: "f@x"})
	_ = n.Send(context.Background(), notifier.Notification{Title: "hi\r\nBcc: evil@x", Recipient: "a@b.c"})
	if strings.Contains(c.msg, "\r\nBcc:") {
		t.Fatalf("header injected:\n%s", c.msg)
	}
	if err := n.Send(context.Background(), notifier.Notification{Title: "x", Recipient: "a@b.c\r\nBcc: e@x"}); err == nil {
		t.Fatal("expected error for recipient with CRLF")
	}
}

func TestSendWrapsError(t *testing.T) {
	n, c := newCapturing(SMTPConfig{Host: "h", From: "f@x"})
	c.err = errors.New("421 try later")
	err := n.Send(context.Background(), notifier.Notification{Title: "x", Recipient: "a@b.c"})
	if err == nil || !strings.Contains(err.Error(), "421") {
		t.Fatalf("err = %v", err)
	}
}

func TestRegisteredFactory(t *testing.T) {
	if _, err := notifier.New(providerName, map[string]string{"smtp_port": "25"}); !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
	if _, err := notifier.New(providerName, map[string]string{"smtp_host": "h", "from": "f@x", "smtp_port": "abc"}); err == nil {
		t.Fatal("expected error for bad port")
	}
	n, err := notifier.New(providerName, map[string]string{"smtp_host": "h", "from": "f@x", "smtp_port": "2525"})
	if err != nil || !n.Capabilities().Direct {
		t.Fatalf("n = %v, err = %v", n, err)
	}
}
