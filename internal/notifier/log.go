package notifier

import (
	"context"
	"log/slog"
)

// LogNotifier writes events to the structured log. Default when no
// broker is configured; also the dev-mode dispatcher.
type LogNotifier struct {
	Log *slog.Logger
}

func (n *LogNotifier) Publish(_ context.Context, ev Event) error {
	n.Log.Info("notification",
		"event", ev.Type,
		"booking_id", ev.BookingID,
		"user_id", ev.UserID,
		"payload", ev.Payload,
	)
	return nil
}
