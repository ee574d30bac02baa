package email

import (
	"context"

	"github.com/bankportal/idcore/internal/logger"
)

// Sender delivers email. Providers are swappable without touching callers.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message represents an email message to be sent.
type Message struct {
	To       string // recipient email address
	Subject  string // email subject
	HTMLBody string // HTML email body
	TextBody string // plain-text fallback body
}

// LogSender writes messages to the log instead of delivering them. It is the
// provider for local development and tests.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a new LogSender
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.WithComponent("email_log_sender")}
}

// Send logs the envelope; bodies carry codes and are never logged
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("html_bytes", len(msg.HTMLBody)).
		Int("text_bytes", len(msg.TextBody)).
		Msg("email suppressed by log sender")
	return nil
}
