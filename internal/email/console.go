package email

import (
	"context"

	"github.com/sirupsen/logrus"
)

// ConsoleSender writes messages to the log instead of delivering them
type ConsoleSender struct {
	log  logrus.FieldLogger
	mode string
}

// NewConsoleSender creates a console sender; mode is recorded on every entry
func NewConsoleSender(log logrus.FieldLogger, mode string) *ConsoleSender {
	return &ConsoleSender{log: log, mode: mode}
}

func (s *ConsoleSender) Send(_ context.Context, to, subject, htmlBody string) error {
	s.log.WithFields(logrus.Fields{
		"email_mode": s.mode,
		"to":         to,
		"subject":    subject,
		"body":       htmlBody,
	}).Info("email")
	return nil
}
