package main

import (
	"context"
	"database/sql"

	"oscan-intake/internal/config"
	"oscan-intake/internal/db"
	"oscan-intake/internal/llm"
	"oscan-intake/internal/logging"
	"oscan-intake/internal/mail"
)

func openDB(ctx context.Context, c config.Config) (*sql.DB, error) {
	if c.DatabaseURL == "" {
		return nil, nil
	}
	return db.Open(ctx, c.DatabaseURL)
}

// newTransport prefers SendGrid, then SMTP, and falls back to logging only.
func newTransport(c config.Config) mail.Transport {
	log := logging.NewLogger("mail")
	switch {
	case c.SendGridAPIKey != "":
		log.Info("mail transport: sendgrid")
		return mail.NewSendGridTransport(c.SendGridAPIKey, c.MailFromName, c.MailUsername)
	case c.MailUsername != "" && c.MailPassword != "":
		log.WithField("addr", c.SMTPAddr).Info("mail transport: smtp")
		return mail.NewSMTPTransport(c.SMTPAddr, c.MailUsername, c.MailPassword, c.MailFromName)
	default:
		log.Warn("mail credentials not configured, messages will only be logged")
		return mail.NewLogTransport()
	}
}

func newGateway(ctx context.Context, c config.Config) (*llm.Gateway, error) {
	variants, err := llm.BuildVariants(ctx, c.ModelVariants, llm.Credentials{
		Gemini:    c.GeminiAPIKey,
		OpenAI:    c.OpenAIAPIKey,
		Anthropic: c.AnthropicAPIKey,
	})
	if err != nil {
		return nil, err
	}
	return llm.NewGateway(variants, llm.Options{
		Timeout:   c.ModelTimeout,
		RetryWait: c.ModelRetryWait,
	}), nil
}
