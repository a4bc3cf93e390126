package mail

import (
	"log"
	"strings"

	gomail "gopkg.in/gomail.v2"
)

// Mailer delivers HTML mail out of band. Send never blocks the caller's
// request path on the HTTP side and never panics; false means a non-fatal
// delivery failure that has already been logged.
type Mailer interface {
	Send(to, subject, htmlBody string) bool
}

// SMTPMailer sends mail through an authenticated SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer creates a mailer for the given SMTP relay.
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	if from == "" {
		from = username
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// Send delivers one HTML message. Failures are logged and reported as false,
// never raised: mail is fire-and-forget relative to the triggering request.
func (m *SMTPMailer) Send(to, subject, htmlBody string) bool {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		log.Printf("mail: send to %s failed: %v", MaskEmail(to), err)
		return false
	}
	return true
}

// LogMailer writes mail to the process log instead of sending it. Used when
// SMTP is not configured (local development) and in tests.
type LogMailer struct{}

// Send logs the message headers and reports success.
func (LogMailer) Send(to, subject, htmlBody string) bool {
	log.Printf("mail (log only): to=%s subject=%q body=%d bytes", to, subject, len(htmlBody))
	return true
}

// MaskEmail masks the local part of an address for logging (e.g. jo****@x.com).
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "****"
	}
	local := email[:at]
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + email[at:]
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + email[at:]
}
