package email

import (
	"context"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/samber/oops"
)

// MailgunSender delivers mail through the Mailgun API
type MailgunSender struct {
	mg   *mailgun.MailgunImpl
	from string
}

// NewMailgunSender creates a sender for domain. An empty apiBase selects the
// default US endpoint.
func NewMailgunSender(domain, key, from, apiBase string) *MailgunSender {
	mg := mailgun.NewMailgun(domain, key)
	if apiBase != "" {
		mg.SetAPIBase(apiBase)
	}
	return &MailgunSender{mg: mg, from: from}
}

func (s *MailgunSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	message := s.mg.NewMessage(s.from, subject, "", to)
	message.SetHtml(htmlBody)

	if _, _, err := s.mg.Send(ctx, message); err != nil {
		return oops.Code("EMAIL_SEND_FAILED").With("provider", ProviderMailgun).Wrap(err)
	}
	return nil
}
