// Package email delivers account verification and password reset messages.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Provider names accepted by NewSender
const (
	ProviderConsole  = "console"
	ProviderSendGrid = "sendgrid"
	ProviderMailgun  = "mailgun"
)

// Sender sends a single HTML email
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Config selects and configures a Sender
type Config struct {
	Provider string
	From     string
	// Production disables the console override; outside production every
	// message is logged instead of sent.
	Production bool

	SendGridKey string

	MailgunDomain  string
	MailgunKey     string
	MailgunAPIBase string
}

// Validate checks that the chosen provider has the credentials it needs
func (c Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "", ProviderConsole:
		return nil
	case ProviderSendGrid:
		if c.SendGridKey == "" || c.From == "" {
			return errors.New("invalid SendGrid configuration: key and from address are required")
		}
	case ProviderMailgun:
		if c.MailgunKey == "" || c.MailgunDomain == "" || c.From == "" {
			return errors.New("invalid Mailgun configuration: key, domain and from address are required")
		}
	default:
		return fmt.Errorf("unknown email provider %q", c.Provider)
	}
	return nil
}

// NewSender returns the Sender for cfg. Outside production, and whenever no
// provider is configured, messages go to the log.
func NewSender(cfg Config, log logrus.FieldLogger) (Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !cfg.Production {
		return NewConsoleSender(log, "dev"), nil
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderSendGrid:
		return NewSendGridSender(cfg.SendGridKey, cfg.From), nil
	case ProviderMailgun:
		return NewMailgunSender(cfg.MailgunDomain, cfg.MailgunKey, cfg.From, cfg.MailgunAPIBase), nil
	default:
		return NewConsoleSender(log, "fallback"), nil
	}
}
