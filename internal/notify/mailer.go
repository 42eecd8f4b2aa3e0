package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"studko/config"
)

type Email struct {
	To      string
	Subject string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// NewMailer picks the provider from config. Without an API key it returns a
// mailer that drops everything.
func NewMailer(cfg config.EmailConfig) Mailer {
	switch strings.ToLower(cfg.Provider) {
	case "sendgrid":
		if cfg.SendGridAPIKey != "" {
			return NewSendGridMailer(cfg.SendGridAPIKey, cfg.From)
		}
	default:
		if cfg.ResendAPIKey != "" {
			return NewResendMailer(cfg.ResendAPIKey, cfg.From)
		}
	}
	return NopMailer{}
}

type ResendMailer struct {
	client *resend.Client
	from   string
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{client: resend.NewClient(apiKey), from: from}
}

func (m *ResendMailer) Send(ctx context.Context, email Email) error {
	_, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    renderHTML(email.Text),
		Text:    email.Text,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridMailer(apiKey, from string) *SendGridMailer {
	name, addr := splitAddress(from)
	return &SendGridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(name, addr),
	}
}

func (m *SendGridMailer) Send(ctx context.Context, email Email) error {
	message := mail.NewSingleEmail(m.from, email.Subject, mail.NewEmail("", email.To), email.Text, renderHTML(email.Text))
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type NopMailer struct{}

func (NopMailer) Send(context.Context, Email) error { return nil }

func renderHTML(text string) string {
	var b strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

// splitAddress parses `Name <addr>` into its parts.
func splitAddress(from string) (string, string) {
	open := strings.LastIndex(from, "<")
	end := strings.LastIndex(from, ">")
	if open < 0 || end < open {
		return "", strings.TrimSpace(from)
	}
	return strings.TrimSpace(from[:open]), strings.TrimSpace(from[open+1 : end])
}
