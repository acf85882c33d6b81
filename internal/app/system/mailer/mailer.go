// internal/app/system/mailer/mailer.go
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/waffle/pantry/email"
	"go.uber.org/zap"
)

// Email is a single outbound message with text and HTML alternatives.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Config holds SMTP settings.
type Config struct {
	Host     string // empty host logs messages instead of sending them
	Port     int
	User     string
	Pass     string
	From     string
	FromName string
	Timeout  time.Duration
}

// deliverer is the transport; *email.Sender in production.
type deliverer interface {
	Send(ctx context.Context, msg email.Message) error
}

// Mailer sends email over SMTP through waffle's email sender.
type Mailer struct {
	cfg    Config
	log    *zap.Logger
	sender deliverer
}

// New creates a Mailer.
func New(cfg Config, log *zap.Logger) *Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Mailer{cfg: cfg, log: log}
	if cfg.Host != "" {
		m.sender = email.NewSender(email.Config{
			Host:        cfg.Host,
			Port:        cfg.Port,
			Username:    cfg.User,
			Password:    cfg.Pass,
			FromAddress: cfg.From,
			FromName:    cfg.FromName,
			Timeout:     cfg.Timeout,
		})
	}
	return m
}

// Send delivers the message. With no SMTP host configured it only logs.
func (m *Mailer) Send(ctx context.Context, e Email) error {
	if e.To == "" {
		return fmt.Errorf("mailer: empty recipient")
	}
	if m.sender == nil {
		m.log.Info("mail not sent (no smtp host)",
			zap.String("to", e.To),
			zap.String("subject", e.Subject))
		return nil
	}

	err := m.sender.Send(ctx, email.Message{
		To:       []string{e.To},
		Subject:  e.Subject,
		TextBody: e.TextBody,
		HTMLBody: e.HTMLBody,
	})
	if err != nil {
		return fmt.Errorf("mailer: send to %s: %w", e.To, err)
	}
	return nil
}
