package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/roady-devis/roady-devis-email/internal/config"
)

// Sender sends composed messages through the configured SMTP relay.
// Sending is stateless request/response; every call dials the relay.
type Sender struct {
	cfg    config.SMTP
	logger *slog.Logger
}

// New creates a Sender for the configured relay.
func New(cfg config.SMTP, logger *slog.Logger) *Sender {
	return &Sender{cfg: cfg, logger: logger}
}

func (s *Sender) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}
	if s.cfg.UseTLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return client, nil
}

// Send delivers a message and returns its generated message ID. Either
// text or html may be empty, not both.
func (s *Sender) Send(ctx context.Context, to []string, subject, text, html string) (string, error) {
	if len(to) == 0 {
		return "", fmt.Errorf("no recipients")
	}
	if text == "" && html == "" {
		return "", fmt.Errorf("empty message body")
	}

	msg := mail.NewMsg()
	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}
	if err := msg.From(from); err != nil {
		return "", fmt.Errorf("smtp from %s: %w", from, err)
	}
	if err := msg.To(to...); err != nil {
		return "", fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetMessageID()

	if text != "" {
		msg.SetBodyString(mail.TypeTextPlain, text)
		if html != "" {
			msg.AddAlternativeString(mail.TypeTextHTML, html)
		}
	} else {
		msg.SetBodyString(mail.TypeTextHTML, html)
	}

	client, err := s.newClient()
	if err != nil {
		return "", err
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}

	id := msg.GetMessageID()
	s.logger.Info("email sent", "message_id", id, "to", to, "subject", subject)
	return id, nil
}

// Verify probes the relay by dialing and closing the connection. Used at
// startup to surface relay misconfiguration early.
func (s *Sender) Verify(ctx context.Context) error {
	client, err := s.newClient()
	if err != nil {
		return err
	}

	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("smtp verify: %w", err)
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return nil
}
