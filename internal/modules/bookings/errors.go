package bookings

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrWindowInPast        = errors.New("booking window is in the past")
	ErrInvalidWindow       = errors.New("booking window is invalid")
	ErrNotFound            = errors.New("booking not found")
)

// NotAuthorizedError reports an actor/role mismatch for an operation.
type NotAuthorizedError struct {
	Operation string
	Role      ActorRole
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("not authorized: op=%s role=%s", e.Operation, e.Role)
}

// StateError reports an operation attempted from an illegal state. The
// current state travels with the error so callers can render it.
type StateError struct {
	BookingID string
	Current   Status
	Operation string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state: booking=%s state=%s op=%s", e.BookingID, e.Current, e.Operation)
}

// TimeWindowError reports a time rule violation together with the
// computed deadline that was missed.
type TimeWindowError struct {
	Operation string
	Deadline  time.Time
}

func (e *TimeWindowError) Error() string {
	return fmt.Sprintf("too late: op=%s deadline=%s", e.Operation, e.Deadline.Format(time.RFC3339))
}

// ScheduleConflictError reports an overlapping reservation. Only the
// window is exposed, never the other party.
type ScheduleConflictError struct {
	ProviderID string
	StartsAt   time.Time
	EndsAt     time.Time
}

func (e *ScheduleConflictError) Error() string {
	return fmt.Sprintf("schedule conflict: provider=%s window=%s..%s",
		e.ProviderID, e.StartsAt.Format(time.RFC3339), e.EndsAt.Format(time.RFC3339))
}

// RescheduleLimitError is a hard failure, not a retryable one.
type RescheduleLimitError struct {
	BookingID string
	Limit     int
}

func (e *RescheduleLimitError) Error() string {
	return fmt.Sprintf("reschedule limit reached: booking=%s limit=%d", e.BookingID, e.Limit)
}
