package eventbus

import (
	"context"
	"log/slog"

	"github.com/matthewbaird/rentpulse/internal/event"
)

// LogConsumer logs all domain events for observability.
type LogConsumer struct {
	logger *slog.Logger
}

func NewLogConsumer(logger *slog.Logger) *LogConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogConsumer{logger: logger.With("component", "events")}
}

func (c *LogConsumer) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	entities := make([]string, len(evt.AffectedEntities))
	for i, ref := range evt.AffectedEntities {
		id := ref.EntityID
		if len(id) > 8 {
			id = id[:8]
		}
		entities[i] = ref.EntityType + ":" + id
	}
	level := slog.LevelInfo
	if evt.Weight == "critical" {
		level = slog.LevelWarn
	}
	c.logger.Log(ctx, level, evt.Summary,
		"event_type", evt.EventType,
		"category", evt.Category,
		"weight", evt.Weight,
		"entities", entities)
	return nil
}
