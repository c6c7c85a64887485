package notifier

import (
	"context"
	"time"
)

// Event types published by the booking and refund pipelines. Delivery
// (email, SMS, push) lives behind the dispatcher; this package only
// hands events over.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCompleted = "booking.completed"
	EventBookingExpired   = "booking.expired"
	EventReminderSchedule = "booking.reminder.schedule"
	EventDepositRequested = "booking.deposit.requested"
	EventHighFeeAlert     = "booking.fee.high_value"
	EventRefundProcessed  = "refund.processed"
	EventRefundManual     = "refund.manual_settlement"
)

type Event struct {
	Type        string         `json:"type"`
	BookingID   string         `json:"booking_id,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Payload     map[string]any `json:"payload,omitempty"`
	RemindAt    []time.Time    `json:"remind_at,omitempty"`
}

// Notifier is called after commit, never inside a transaction. A
// failed publish is logged by the implementation and must not surface
// as an operation failure.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}
