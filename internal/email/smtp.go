package email

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/brunojppb/mailbolt/internal/config"
)

// SMTPSender implements Sender through an SMTP relay
type SMTPSender struct {
	host     string
	port     int
	user     string
	password string
	tlsMode  string
	from     string
}

// NewSMTPSender creates a new SMTPSender
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	from := cfg.SenderAddress
	if cfg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.SenderName, cfg.SenderAddress)
	}
	return &SMTPSender{
		host:     cfg.SMTP.Host,
		port:     cfg.SMTP.Port,
		user:     cfg.SMTP.User,
		password: cfg.SMTP.Password,
		tlsMode:  cfg.SMTP.TLSMode,
		from:     from,
	}
}

// buildMessage renders msg as multipart/alternative when both bodies are set
func (s *SMTPSender) buildMessage(msg Message) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)

	if msg.TextBody != "" {
		m.SetBody("text/plain", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		if msg.TextBody == "" {
			m.SetBody("text/html", msg.HTMLBody)
		} else {
			m.AddAlternative("text/html", msg.HTMLBody)
		}
	}
	return m
}

// Send dials the relay and delivers msg. go-mail has no context support,
// so ctx is only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d := mail.NewDialer(s.host, s.port, s.user, s.password)
	d.TLSConfig = &tls.Config{ServerName: s.host}
	switch s.tlsMode {
	case "ssl":
		d.SSL = true
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		d.StartTLSPolicy = mail.OpportunisticStartTLS
	}

	if err := d.DialAndSend(s.buildMessage(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
