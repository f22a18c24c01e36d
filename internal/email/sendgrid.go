package email

import (
	"context"
	"fmt"

	"github.com/samber/oops"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

// SendGridSender delivers mail through the SendGrid v3 API
type SendGridSender struct {
	key  string
	from string
	host string
}

// NewSendGridSender creates a sender for the public SendGrid API
func NewSendGridSender(key, from string) *SendGridSender {
	return &SendGridSender{key: key, from: from, host: sendGridHost}
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	message := mail.NewSingleEmail(mail.NewEmail("", s.from), subject, mail.NewEmail("", to), "", htmlBody)

	request := sendgrid.GetRequest(s.key, "/v3/mail/send", s.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return oops.Code("EMAIL_SEND_FAILED").With("provider", ProviderSendGrid).Wrap(err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return oops.Code("EMAIL_SEND_FAILED").
			With("provider", ProviderSendGrid).
			With("status", response.StatusCode).
			Wrap(fmt.Errorf("failed to send email, status code: %d", response.StatusCode))
	}
	return nil
}
