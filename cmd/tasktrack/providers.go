package main

import (
	"fmt"
	"log/slog"

	"github.com/Strob0t/Tasktrack/internal/config"
	"github.com/Strob0t/Tasktrack/internal/port/notifier"

	// Notifier blank imports: each import registers a channel type.
	_ "github.com/Strob0t/Tasktrack/internal/adapter/discord"
	_ "github.com/Strob0t/Tasktrack/internal/adapter/email"
	_ "github.com/Strob0t/Tasktrack/internal/adapter/slack"
)

// buildNotifiers instantiates the configured notification channels.
func buildNotifiers(cfg config.Notify) ([]notifier.Notifier, error) {
	out := make([]notifier.Notifier, 0, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		n, err := notifier.New(ch.Type, ch.Settings)
		if err != nil {
			return nil, fmt.Errorf("notify.channels[%d]: %w", i, err)
		}
		out = append(out, n)
	}
	slog.Info("notifiers configured", "count", len(out), "available", notifier.Available())
	return out, nil
}
