package handlers

import (
	"errors"
	"fmt"
	"time"

	"velora.app/internal/modules/bookings"
	"velora.app/internal/modules/catalog"
	"velora.app/internal/modules/ledger"
	"velora.app/internal/modules/payments"
	"velora.app/internal/shared/apperr"
)

// toAppError maps domain failures onto the HTTP error taxonomy. The
// structured fields carry what the caller needs to act: the deadline
// missed, the current state, the remaining amount.
func toAppError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}

	switch {
	case errors.Is(err, bookings.ErrNotFound):
		return apperr.NotFoundErr("Booking not found.")
	case errors.Is(err, payments.ErrPaymentNotFound):
		return apperr.NotFoundErr("Payment not found.")
	case errors.Is(err, bookings.ErrProviderUnavailable):
		return apperr.InvalidErr("Provider is not taking bookings.", nil)
	case errors.Is(err, catalog.ErrServiceUnavailable):
		return apperr.InvalidErr("Selected service is unavailable.", nil)
	case errors.Is(err, catalog.ErrCurrencyMismatch):
		return apperr.InvalidErr("Selected services use different currencies.", nil)
	case errors.Is(err, bookings.ErrWindowInPast):
		return apperr.InvalidErr("Booking window is in the past.", nil)
	case errors.Is(err, bookings.ErrInvalidWindow):
		return apperr.InvalidErr("Booking window is invalid.", nil)
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, payments.ErrInvalidAmount):
		return apperr.InvalidErr("Amount must be positive.", nil)
	case errors.Is(err, ledger.ErrNotTransitional):
		return apperr.InvalidStateErr("Transaction is already finalized.", nil)
	}

	var notAuth *bookings.NotAuthorizedError
	if errors.As(err, &notAuth) {
		return apperr.ForbiddenErr("You are not allowed to perform this action.")
	}

	var state *bookings.StateError
	if errors.As(err, &state) {
		return apperr.InvalidStateErr("Operation not allowed in the current state.", map[string]string{
			"current_state": string(state.Current),
		})
	}

	var window *bookings.TimeWindowError
	if errors.As(err, &window) {
		return apperr.TimeWindowErr("Too late for this operation.", map[string]string{
			"deadline": window.Deadline.Format(time.RFC3339),
		})
	}

	var conflict *bookings.ScheduleConflictError
	if errors.As(err, &conflict) {
		return apperr.ConflictErr("The requested time window is unavailable.")
	}

	var reschedLimit *bookings.RescheduleLimitError
	if errors.As(err, &reschedLimit) {
		return apperr.LimitExceededErr("Reschedule limit reached.", map[string]string{
			"limit": fmt.Sprintf("%d", reschedLimit.Limit),
		})
	}

	var notRefundable *payments.NotRefundableError
	if errors.As(err, &notRefundable) {
		return apperr.InvalidStateErr("Payment is not refundable.", map[string]string{
			"current_state": string(notRefundable.Current),
		})
	}

	var remaining *payments.RemainingExceededError
	if errors.As(err, &remaining) {
		return apperr.InvalidErr("Refund exceeds the remaining amount.", map[string]string{
			"remaining_cents": fmt.Sprintf("%d", remaining.RemainingCents),
			"requested_cents": fmt.Sprintf("%d", remaining.RequestedCents),
		})
	}

	var deadline *payments.DeadlineError
	if errors.As(err, &deadline) {
		return apperr.TimeWindowErr("Refund deadline has passed.", map[string]string{
			"deadline": deadline.Deadline.Format(time.RFC3339),
		})
	}

	var categoryRule *payments.CategoryRuleError
	if errors.As(err, &categoryRule) {
		return apperr.InvalidStateErr("Refund is blocked for this payment category.", map[string]string{
			"category": string(categoryRule.Category),
			"rule":     categoryRule.Rule,
		})
	}

	var refundLimit *payments.RefundLimitError
	if errors.As(err, &refundLimit) {
		return apperr.LimitExceededErr("Refund limit exceeded.", map[string]string{
			"scope": string(refundLimit.Scope),
			"limit": fmt.Sprintf("%d", refundLimit.Limit),
		})
	}

	var ledgerLimit *ledger.LimitError
	if errors.As(err, &ledgerLimit) {
		return apperr.LimitExceededErr("Transaction limit exceeded.", map[string]string{
			"scope":       string(ledgerLimit.Scope),
			"type":        string(ledgerLimit.Type),
			"limit_cents": fmt.Sprintf("%d", ledgerLimit.LimitCents),
		})
	}

	return apperr.Wrap(err)
}
