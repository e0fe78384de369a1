package webhook

import (
	"context"
	"net/http"

	"github.com/curatd/curatd/internal/port/alert"
)

// Alerter posts operational alerts as JSON to an operator endpoint
// (pager bridge, incident channel relay).
type Alerter struct {
	url        string
	httpClient *http.Client
}

// NewAlerter creates a webhook alerter posting to the given URL. An empty
// URL yields an alerter that drops everything, so alerting stays optional.
func NewAlerter(url string) *Alerter {
	return &Alerter{
		url:        url,
		httpClient: &http.Client{Timeout: SendTimeout},
	}
}

// Raise posts the alert. With no URL configured it is a no-op.
func (a *Alerter) Raise(ctx context.Context, al alert.Alert) error {
	if a.url == "" {
		return nil
	}
	return PostJSON(ctx, a.httpClient, a.url, "alert", al)
}
