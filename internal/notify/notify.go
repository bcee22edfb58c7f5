// Package notify delivers account notifications (signup confirmations and
// password-reset links).
//
// Flows hand messages to a Sink and never learn whether delivery worked.
// In production the Sink is an Outbox: messages are persisted as nodes
// under /outbox and a Dispatcher drains them to SMTP in the background.
// Without a mail host the LogSink is used and links only reach the log.
package notify

import (
	"context"
	"log/slog"
)

// Sink accepts a message for asynchronous delivery.
type Sink interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSink writes messages to the log instead of delivering them. The
// recipient address is not logged.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, _, subject, body string) error {
	s.logger.Info("mail delivery disabled, message not sent",
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}
