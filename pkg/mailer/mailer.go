package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/domodwyer/mailyak/v3"

	"github.com/charityconnect/charityconnect-backend/pkg/config"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
)

// Attachment is a single file attached to a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is an outbound email.
type Message struct {
	To          string
	Subject     string
	Body        string
	HTMLBody    string
	Attachments []Attachment
}

// Sender is the surface consumed by notification handlers.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer sends mail over SMTP with PLAIN auth.
type Mailer struct {
	cfg     config.MailConfig
	logg    *logger.Logger
	newMail func() (*mailyak.MailYak, error)
}

// New builds an SMTP mailer. Implicit TLS is used when UseTLS is set;
// otherwise mailyak upgrades with STARTTLS when the server offers it.
func New(cfg config.MailConfig, logg *logger.Logger) (*Mailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("mail host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mail from address is required")
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	m := &Mailer{cfg: cfg, logg: logg}
	m.newMail = func() (*mailyak.MailYak, error) {
		if cfg.UseTLS {
			return mailyak.NewWithTLS(cfg.Addr(), auth, &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12})
		}
		return mailyak.New(cfg.Addr(), auth), nil
	}
	return m, nil
}

// Send delivers msg. mailyak has no context support, so cancellation is only
// honoured before the SMTP dialogue starts.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	mail, err := m.compose(msg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := mail.Send(); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	if m.logg != nil {
		m.logg.Info(m.logg.WithFields(ctx, map[string]any{
			"to":          msg.To,
			"subject":     msg.Subject,
			"attachments": len(msg.Attachments),
		}), "email sent")
	}
	return nil
}

func (m *Mailer) compose(msg Message) (*mailyak.MailYak, error) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return nil, errors.New("recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return nil, errors.New("subject is required")
	}

	mail, err := m.newMail()
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	mail.To(to)
	mail.From(m.cfg.From)
	if m.cfg.FromName != "" {
		mail.FromName(m.cfg.FromName)
	}
	mail.Subject(msg.Subject)
	mail.Plain().Set(msg.Body)
	if msg.HTMLBody != "" {
		mail.HTML().Set(msg.HTMLBody)
	}
	for _, att := range msg.Attachments {
		if len(att.Data) == 0 {
			continue
		}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		mail.AttachWithMimeType(att.Name, bytes.NewReader(att.Data), contentType)
	}
	return mail, nil
}
