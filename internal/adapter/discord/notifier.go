// Package discord implements a notifier.Dispatcher for Discord webhooks.
package discord

import (
	"context"
	"net/http"
	"strings"

	"github.com/curatd/curatd/internal/adapter/webhook"
	"github.com/curatd/curatd/internal/port/notifier"
)

const dispatcherName = "discord"

// Dispatcher sends notifications to Discord via incoming webhook.
type Dispatcher struct {
	webhookURL string
	httpClient *http.Client
}

// NewDispatcher creates a Discord dispatcher with the given webhook URL.
func NewDispatcher(webhookURL string) *Dispatcher {
	return &Dispatcher{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: webhook.SendTimeout},
	}
}

func (d *Dispatcher) Name() string { return dispatcherName }

type discordWebhook struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func (d *Dispatcher) Send(ctx context.Context, n notifier.Notification) error {
	if d.webhookURL == "" {
		return notifier.ErrNotConfigured
	}
	return webhook.PostJSON(ctx, d.httpClient, d.webhookURL, "discord", buildWebhook(n))
}

// buildWebhook renders the notification as a single embed. Webhooks have
// no recipient concept, so the recipient and source ride the footer.
func buildWebhook(n notifier.Notification) discordWebhook {
	embed := discordEmbed{
		Title:       n.Subject,
		Description: n.Body,
		Color:       levelColor(n.Level),
	}
	if text := footerText(n); text != "" {
		embed.Footer = &discordFooter{Text: text}
	}
	return discordWebhook{Embeds: []discordEmbed{embed}}
}

func footerText(n notifier.Notification) string {
	parts := make([]string, 0, 2)
	if n.RecipientID != "" {
		parts = append(parts, "For: "+n.RecipientID)
	}
	if n.Source != "" {
		parts = append(parts, "Source: "+n.Source)
	}
	return strings.Join(parts, " | ")
}

// levelColor maps notification levels onto Discord embed colors.
func levelColor(level string) int {
	switch level {
	case "success":
		return 0x2ECC71 // green
	case "error":
		return 0xE74C3C // red
	case "warning":
		return 0xF39C12 // orange
	default:
		return 0x3498DB // blue
	}
}
