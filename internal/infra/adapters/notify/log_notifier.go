// File: internal/infra/adapters/notify/log_notifier.go
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"speech-ai-subscription/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier writes lifecycle and dunning signals to the structured log.
// The messaging service tails these events; an outbound push integration
// can replace this adapter without touching the use cases.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "Notifier").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) Notify(ctx context.Context, teacherID string, kind adapter.NotificationKind, detail string) error {
	n.log.Info().
		Str("teacher_id", teacherID).
		Str("kind", string(kind)).
		Str("detail", detail).
		Msg("subscription notification")
	return nil
}
