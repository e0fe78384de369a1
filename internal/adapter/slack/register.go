package slack

import "github.com/curatd/curatd/internal/port/notifier"

func init() {
	notifier.Register(dispatcherName, func(settings map[string]string) (notifier.Dispatcher, error) {
		return NewDispatcher(settings["webhook_url"]), nil
	})
}
