// Package notify delivers operator notifications about automated price
// changes. Delivery is best effort; callers log failures and move on.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TypeAutomatedUpdate marks a notification about an executed price change.
const TypeAutomatedUpdate = "automated_update"

// Update is the structured body of an automated update.
type Update struct {
	UnitID   string  `json:"unit_id"`
	OldValue float64 `json:"old_value"`
	NewValue float64 `json:"new_value"`
	Reason   string  `json:"reason"`
}

// Message is one notification as delivered to a channel.
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Priority  string    `json:"priority"`
	Title     string    `json:"title"`
	Body      string    `json:"message"`
	UnitID    string    `json:"unit_id,omitempty"`
	Data      Update    `json:"data"`
	Channels  []string  `json:"channels"`
	Timestamp time.Time `json:"timestamp"`
}

// AutomatedUpdate builds the notification sent after a price is applied.
func AutomatedUpdate(u Update, at time.Time) Message {
	return Message{
		ID:        uuid.New().String(),
		Type:      TypeAutomatedUpdate,
		Priority:  "low",
		Title:     "Price Updated: Unit " + u.UnitID,
		Body:      fmt.Sprintf("Automatically updated from $%g to $%g. %s", u.OldValue, u.NewValue, u.Reason),
		UnitID:    u.UnitID,
		Data:      u,
		Channels:  []string{"in_app", "email"},
		Timestamp: at,
	}
}

// Notifier delivers a message to some channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info(msg.Title,
		"type", msg.Type,
		"unit_id", msg.UnitID,
		"old_value", msg.Data.OldValue,
		"new_value", msg.Data.NewValue)
	return nil
}
