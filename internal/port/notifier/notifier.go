// Package notifier defines the port for outbound task notifications.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is missing its endpoint.
var ErrNotConfigured = errors.New("notifier: not configured")

// Levels.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
)

// Field is a labelled value rendered next to the message, such as a
// task's priority or due date.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Notification is the payload sent through a Notifier.
type Notification struct {
	Title   string  `json:"title"`
	Message string  `json:"message"`
	Level   string  `json:"level"`
	Source  string  `json:"source"` // event subject, e.g. "tasks.assigned"
	Fields  []Field `json:"fields,omitempty"`
	// Recipient is the email address of the user the event concerns.
	// Channel notifiers ignore it.
	Recipient string `json:"recipient,omitempty"`
}

// Capabilities declares which features a notifier supports.
type Capabilities struct {
	RichFormatting bool `json:"rich_formatting"`
	Direct         bool `json:"direct"` // delivers to Recipient rather than a shared channel
}

// Notifier is the port interface for sending notifications.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "slack", "email").
	Name() string

	// Capabilities returns what this notifier supports.
	Capabilities() Capabilities

	// Send delivers a notification.
	Send(ctx context.Context, notification Notification) error
}
