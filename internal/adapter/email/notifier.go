// Package email implements a notifier.Dispatcher that delivers over SMTP.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/curatd/curatd/internal/port/notifier"
)

const dispatcherName = "email"

// SMTPConfig holds the configuration for SMTP connections.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Password string
	// Domain completes bare recipient IDs into mailboxes
	// (reviewer-ann -> reviewer-ann@Domain).
	Domain string
}

// Dispatcher sends notifications as email via SMTP.
type Dispatcher struct {
	cfg SMTPConfig
}

// NewDispatcher creates an email dispatcher.
func NewDispatcher(cfg SMTPConfig) *Dispatcher {
	return &Dispatcher{cfg: cfg}
}

func (d *Dispatcher) Name() string { return dispatcherName }

// Send delivers the notification to the recipient's mailbox.
func (d *Dispatcher) Send(_ context.Context, n notifier.Notification) error {
	if d.cfg.Host == "" || d.cfg.From == "" {
		return notifier.ErrNotConfigured
	}

	to := d.recipientAddress(n.RecipientID)
	addr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		d.cfg.From, to, n.Subject, htmlBody(n))

	var auth smtp.Auth
	if d.cfg.Password != "" {
		auth = smtp.PlainAuth("", d.cfg.From, d.cfg.Password, d.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, d.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}

// recipientAddress resolves a recipient ID to a mailbox. IDs that already
// look like an address pass through unchanged.
func (d *Dispatcher) recipientAddress(recipientID string) string {
	if strings.Contains(recipientID, "@") {
		return recipientID
	}
	return recipientID + "@" + d.cfg.Domain
}

func htmlBody(n notifier.Notification) string {
	body := fmt.Sprintf("<p>%s</p>", n.Body)
	if n.Source != "" {
		body += fmt.Sprintf("<p><small>Source: %s</small></p>", n.Source)
	}
	return body
}
