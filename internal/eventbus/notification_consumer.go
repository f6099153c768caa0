package eventbus

import (
	"context"

	"github.com/matthewbaird/rentpulse/internal/event"
	"github.com/matthewbaird/rentpulse/internal/notify"
)

// NotificationConsumer turns successful executions into automated-update
// notifications. Delivery errors are returned to the bus, which logs them.
type NotificationConsumer struct {
	notifier notify.Notifier
}

func NewNotificationConsumer(n notify.Notifier) *NotificationConsumer {
	return &NotificationConsumer{notifier: n}
}

func (c *NotificationConsumer) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	if evt.EventType != event.TypeActionExecuted {
		return nil
	}
	var p event.ActionExecutedPayload
	if err := evt.Decode(&p); err != nil {
		return err
	}
	if !p.Success {
		return nil
	}
	return c.notifier.Notify(ctx, notify.AutomatedUpdate(notify.Update{
		UnitID:   p.UnitID,
		OldValue: p.OldValue,
		NewValue: p.NewValue,
		Reason:   p.Reason,
	}, evt.OccurredAt))
}
