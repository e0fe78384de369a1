// Package slack implements a notifier.Dispatcher for Slack webhooks.
package slack

import (
	"context"
	"net/http"

	"github.com/curatd/curatd/internal/adapter/webhook"
	"github.com/curatd/curatd/internal/port/notifier"
)

const dispatcherName = "slack"

// Dispatcher sends notifications to Slack via incoming webhook.
type Dispatcher struct {
	webhookURL string
	httpClient *http.Client
}

// NewDispatcher creates a Slack dispatcher with the given webhook URL.
func NewDispatcher(webhookURL string) *Dispatcher {
	return &Dispatcher{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: webhook.SendTimeout},
	}
}

func (d *Dispatcher) Name() string { return dispatcherName }

// slackMessage is a Block Kit payload.
type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (d *Dispatcher) Send(ctx context.Context, n notifier.Notification) error {
	if d.webhookURL == "" {
		return notifier.ErrNotConfigured
	}
	return webhook.PostJSON(ctx, d.httpClient, d.webhookURL, "slack", buildMessage(n))
}

// buildMessage renders the notification as Block Kit: a header, the body
// section, then context lines for the recipient and the source event.
func buildMessage(n notifier.Notification) slackMessage {
	msg := slackMessage{
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: levelTag(n.Level) + " " + n.Subject}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: n.Body}},
		},
	}
	if n.RecipientID != "" {
		msg.Blocks = append(msg.Blocks, contextLine("For: "+n.RecipientID))
	}
	if n.Source != "" {
		msg.Blocks = append(msg.Blocks, contextLine("Source: "+n.Source))
	}
	return msg
}

func contextLine(text string) slackBlock {
	return slackBlock{Type: "context", Text: &slackText{Type: "mrkdwn", Text: "_" + text + "_"}}
}

func levelTag(level string) string {
	switch level {
	case "success":
		return "[OK]"
	case "error":
		return "[ERROR]"
	case "warning":
		return "[WARN]"
	default:
		return "[INFO]"
	}
}
