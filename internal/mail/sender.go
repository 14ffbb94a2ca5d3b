package mail

import (
	"context"

	"github.com/google/uuid"

	"contactbook/internal/observability"
)

// Sender delivers verification links. Transport is deliberately pluggable;
// the process only depends on this seam.
type Sender interface {
	SendVerification(ctx context.Context, email, link string) error
}

// LogSender writes the verification link to the log instead of delivering
// mail. Used in development and whenever no real transport is configured.
type LogSender struct {
	logger *observability.Logger
}

func NewLogSender(logger *observability.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendVerification(_ context.Context, email, link string) error {
	s.logger.Info("verification_mail", map[string]any{
		"message_id": uuid.NewString(),
		"to":         email,
		"link":       link,
	})
	return nil
}
