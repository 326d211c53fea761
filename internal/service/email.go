package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

type EmailService struct {
	client       *resend.Client
	fromEmail    string
	contactEmail string
	logOnly      bool
	appURL       string
	appName      string
}

// NewEmailService sends through Resend. With logOnly set, emails are only logged.
func NewEmailService(apiKey, fromEmail, contactEmail, appURL, appName string, logOnly bool) *EmailService {
	var client *resend.Client
	if apiKey != "" && !logOnly {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:       client,
		fromEmail:    fromEmail,
		contactEmail: contactEmail,
		logOnly:      logOnly,
		appURL:       appURL,
		appName:      appName,
	}
}

type email struct {
	kind    string
	to      string
	subject string
	body    string
	replyTo string
}

func (s *EmailService) send(ctx context.Context, e email) error {
	if s.logOnly {
		slog.Info("email sent (dev mode)", "type", e.kind, "to", e.to, "subject", e.subject)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{e.to},
		Subject: e.subject,
		Text:    e.body,
		ReplyTo: e.replyTo,
	}

	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send %s email: %w", e.kind, err)
	}

	slog.Info("email sent", "type", e.kind, "to", e.to)
	return nil
}

func (s *EmailService) SendWelcomeEmail(ctx context.Context, to, name string) error {
	subject, body := welcomeEmailTemplate(name, s.appURL, s.appName)
	return s.send(ctx, email{kind: "welcome", to: to, subject: subject, body: body})
}

func (s *EmailService) SendPasswordChangedEmail(ctx context.Context, to, name string) error {
	subject, body := passwordChangedEmailTemplate(name, s.appName)
	return s.send(ctx, email{kind: "password_changed", to: to, subject: subject, body: body})
}

func (s *EmailService) SendAccountDeletedEmail(ctx context.Context, to, name string) error {
	subject, body := accountDeletedEmailTemplate(name, s.appName)
	return s.send(ctx, email{kind: "account_deleted", to: to, subject: subject, body: body})
}

// SendContactForm forwards a contact message to the configured inbox with Reply-To set to the sender
func (s *EmailService) SendContactForm(ctx context.Context, name, from, message string) error {
	subject, body := contactFormEmailTemplate(name, from, message)
	return s.send(ctx, email{kind: "contact", to: s.contactEmail, subject: subject, body: body, replyTo: from})
}
