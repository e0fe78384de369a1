package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SendTimeout caps one delivery attempt. An endpoint that hangs must not
// hold a notify task until its full activity timeout.
const SendTimeout = 10 * time.Second

// maxErrBody bounds how much of an error response ends up in the returned
// error and therefore in logs.
const maxErrBody = 2048

// PostJSON marshals payload and posts it to url, labelling errors with the
// receiving service's name. Any status below 400 counts as delivered.
func PostJSON(ctx context.Context, client *http.Client, url, service string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s marshal: %w", service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s request: %w", service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s send: %w", service, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return fmt.Errorf("%s endpoint %d: %s", service, resp.StatusCode, respBody)
	}
	return nil
}
