package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/mail.v2"
)

// SMTPMailer sends email directly over SMTP instead of the webhook endpoint.
// Used in self-hosted deployments that have no serverless mail function.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPMailer creates a new SMTP mailer
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Send delivers the email over SMTP. SMTP has no provider message id, so a
// locally generated id is returned for the audit trail.
func (m *SMTPMailer) Send(ctx context.Context, email Email) (string, error) {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", email.Text)
	msg.AddAlternative("text/html", email.HTML)

	dialer := mail.NewDialer(m.host, m.port, m.username, m.password)

	if err := dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("smtp send failed: %w", err)
	}

	return "smtp-" + uuid.New().String(), nil
}
