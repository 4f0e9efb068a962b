// Package logsink writes relayed events to the structured log.
package logsink

import (
	"context"
	"log/slog"

	"landregistry/internal/registry/models"
)

// Sink logs one line per event at info level.
type Sink struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Sink {
	return &Sink{logger: logger}
}

func (s *Sink) Name() string { return "log" }

func (s *Sink) Publish(ctx context.Context, events []models.Event) error {
	for _, e := range events {
		attrs := []any{
			"event_id", e.ID.String(),
			"sequence", e.Sequence,
			"type", string(e.Type),
			"actor", e.Actor.String(),
		}
		if e.TokenID != nil {
			attrs = append(attrs, "token_id", e.TokenID.String())
		}
		s.logger.InfoContext(ctx, "ledger event published", attrs...)
	}
	return nil
}
