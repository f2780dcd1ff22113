package notifications

import (
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"

	"github.com/flanksource/gomplate/v3"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

type Email struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SMTPMailer delivers plain text emails through an SMTP relay.
type SMTPMailer struct {
	config api.EmailConfig
}

func NewSMTPMailer(config api.EmailConfig) *SMTPMailer {
	return &SMTPMailer{config: config}
}

func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	ctx.Tracef("sending %q to %s via %s", email.Subject, email.To, addr)
	if err := smtp.SendMail(addr, auth, m.config.From, []string{email.To}, message(m.config.From, email)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", email.To, err)
	}
	return nil
}

func message(from string, email Email) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", email.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", email.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(email.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// RecordingMailer keeps sent emails in memory, used when SMTP is not configured.
type RecordingMailer struct {
	mu   sync.Mutex
	Sent []Email
	Err  error
}

func (m *RecordingMailer) Send(ctx context.Context, email Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, email)
	return nil
}

func (m *RecordingMailer) Emails() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.Sent...)
}

const emailBody = `Hello {{.name}},

{{.message}}
{{if .link}}
View: {{.link}}
{{end}}
This is an automated message from the HSE system.`

// RenderEmail builds the email for a persisted notification.
func RenderEmail(ctx context.Context, person models.Person, notification models.Notification, baseURL string) (Email, error) {
	name := person.Name
	if name == "" {
		name = person.Email
	}

	link := notification.Link
	if link != "" {
		link = api.Config{BaseURL: baseURL}.Link(link)
	}

	body, err := ctx.RunTemplate(gomplate.Template{Template: emailBody}, map[string]any{
		"name":    name,
		"message": notification.Message,
		"link":    link,
	})
	if err != nil {
		return Email{}, err
	}

	return Email{
		To:      person.Email,
		Subject: notification.Title,
		Body:    body,
	}, nil
}
