// Package webhook implements generic JSON webhook delivery for both
// stakeholder notifications and operational alerts.
package webhook

import (
	"context"
	"net/http"

	"github.com/curatd/curatd/internal/port/notifier"
)

const dispatcherName = "webhook"

// Dispatcher posts notifications as JSON to a configured endpoint.
type Dispatcher struct {
	url        string
	httpClient *http.Client
}

// NewDispatcher creates a webhook dispatcher posting to the given URL.
func NewDispatcher(url string) *Dispatcher {
	return &Dispatcher{
		url:        url,
		httpClient: &http.Client{Timeout: SendTimeout},
	}
}

func (d *Dispatcher) Name() string { return dispatcherName }

// Send posts the notification verbatim. The receiving end decides how to
// route it to the recipient.
func (d *Dispatcher) Send(ctx context.Context, n notifier.Notification) error {
	if d.url == "" {
		return notifier.ErrNotConfigured
	}
	return PostJSON(ctx, d.httpClient, d.url, "webhook", n)
}
