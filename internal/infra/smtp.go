package infra

import (
	"fmt"
	"net/smtp"

	"tillpos/internal/config"

	"github.com/jordan-wright/email"
)

// Mailer wraps SMTP configuration for sending receipt emails with PDF
// attachments. All sends go through the circuit breaker so a flapping SMTP
// relay fast-fails instead of tying up workers.
type Mailer struct {
	host     string
	port     int
	user     string
	password string
	addr     string
	breaker  *CircuitBreaker
}

func NewMailer(cfg *config.Config, breaker *CircuitBreaker) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		addr:     fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		breaker:  breaker,
	}
}

// Send mails the body (and the PDF at attachmentPath, when non-empty) to the
// recipient.
func (m *Mailer) Send(to, subject, body, attachmentPath string) error {
	return m.breaker.Execute(func() error {
		e := email.NewEmail()
		e.From = m.user
		e.To = []string{to}
		e.Subject = subject
		e.Text = []byte(body)

		if attachmentPath != "" {
			if _, err := e.AttachFile(attachmentPath); err != nil {
				return fmt.Errorf("mailer: attach PDF: %w", err)
			}
		}

		auth := smtp.PlainAuth("", m.user, m.password, m.host)
		return e.Send(m.addr, auth)
	})
}

// BreakerState exposes the circuit breaker state for the health endpoint.
func (m *Mailer) BreakerState() string {
	return m.breaker.State().String()
}
