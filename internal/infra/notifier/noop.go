package notifier

import (
	"context"
	"log/slog"

	"briefcast/internal/domain/entity"
	"briefcast/internal/resilience/retry"
)

// Noop satisfies both the broadcaster and the retry notifier contracts
// without sending anything. Used when no webhook URL is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (Noop) Broadcast(ctx context.Context, episode entity.Episode) error {
	slog.Debug("broadcast skipped, notifications disabled",
		slog.String("episode", episode.Title))
	return nil
}

func (Noop) NotifyFailure(ctx context.Context, record *retry.ErrorRecord, finalCause error) {}

func (Noop) NotifyRecovery(ctx context.Context, record *retry.ErrorRecord) {}

func (Noop) NotifyDegraded(ctx context.Context, record *retry.ErrorRecord) {}
