package email

import (
	"strconv"

	"github.com/curatd/curatd/internal/port/notifier"
)

func init() {
	notifier.Register(dispatcherName, func(settings map[string]string) (notifier.Dispatcher, error) {
		port, _ := strconv.Atoi(settings["port"])
		if port == 0 {
			port = 587
		}
		return NewDispatcher(SMTPConfig{
			Host:     settings["host"],
			Port:     port,
			From:     settings["from"],
			Password: settings["password"],
			Domain:   settings["domain"],
		}), nil
	})
}
