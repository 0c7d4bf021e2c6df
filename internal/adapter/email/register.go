package email

import (
	"fmt"
	"strconv"

	"github.com/Strob0t/Tasktrack/internal/port/notifier"
)

func init() {
	notifier.Register(providerName, func(settings map[string]string) (notifier.Notifier, error) {
		if settings["smtp_host"] == "" || settings["from"] == "" {
			return nil, notifier.ErrNotConfigured
		}
		port := 0
		if p := settings["smtp_port"]; p != "" {
			v, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("smtp_port: %w", err)
			}
			port = v
		}
		return NewNotifier(SMTPConfig{
			Host:     settings["smtp_host"],
			Port:     port,
			From:     settings["from"],
			Username: settings["username"],
			Password: settings["password"],
		}), nil
	})
}
