package email

import (
	"context"
	"fmt"

	"github.com/brunojppb/mailbolt/internal/config"
)

// Sender is the interface that all email providers must implement.
// One call is one delivery attempt; implementations do not retry.
type Sender interface {
	// Send sends an email to the specified recipient.
	Send(ctx context.Context, msg Message) error
}

// Message represents an email message to be sent.
type Message struct {
	To       string // recipient email address
	Subject  string // email subject
	HTMLBody string // HTML email body
	TextBody string // plain-text fallback body
}

// NewSender builds the provider selected by cfg.Provider
func NewSender(ctx context.Context, cfg config.EmailConfig) (Sender, error) {
	switch cfg.Provider {
	case "http":
		return NewHTTPSender(cfg), nil
	case "smtp":
		return NewSMTPSender(cfg), nil
	case "gmail":
		if cfg.Gmail.CredentialsJSON != "" {
			return NewGmailSender(ctx, GmailConfig{
				CredentialsJSON: cfg.Gmail.CredentialsJSON,
				SenderAddress:   cfg.SenderAddress,
				SenderName:      cfg.SenderName,
			})
		}
		return NewGmailSenderWithToken(ctx,
			cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.RefreshToken,
			cfg.SenderAddress, cfg.SenderName)
	default:
		return nil, fmt.Errorf("unsupported email provider %q", cfg.Provider)
	}
}
