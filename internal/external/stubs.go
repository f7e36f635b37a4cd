package external

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogEmailProvider is an EmailProvider that logs instead of delivering. Used
// in local development and when email delivery is disabled.
type LogEmailProvider struct {
	logger *slog.Logger
}

// NewLogEmailProvider creates a LogEmailProvider.
func NewLogEmailProvider(logger *slog.Logger) *LogEmailProvider {
	return &LogEmailProvider{logger: logger}
}

// Send logs the message and returns a synthetic message ID.
func (p *LogEmailProvider) Send(ctx context.Context, msg EmailMessage) (string, error) {
	msgID := "stub_" + uuid.New().String()
	p.logger.InfoContext(ctx, "email delivery stubbed",
		"message_id", msgID,
		"to", msg.To,
		"subject", msg.Subject,
		"reference_id", msg.ReferenceID,
	)
	return msgID, nil
}

var _ EmailProvider = (*LogEmailProvider)(nil)
