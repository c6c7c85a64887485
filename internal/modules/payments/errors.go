package payments

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidAmount   = errors.New("refund amount must be positive")
	ErrPaymentNotFound = errors.New("payment not found")
)

// NotRefundableError reports a payment whose state does not allow
// refunds, carrying the state so callers can render it.
type NotRefundableError struct {
	PaymentID string
	Current   Status
}

func (e *NotRefundableError) Error() string {
	return fmt.Sprintf("payment not refundable: payment=%s state=%s", e.PaymentID, e.Current)
}

// RemainingExceededError reports a request above the refundable
// headroom.
type RemainingExceededError struct {
	PaymentID      string
	RequestedCents int64
	RemainingCents int64
}

func (e *RemainingExceededError) Error() string {
	return fmt.Sprintf("refund exceeds remaining: payment=%s requested=%d remaining=%d",
		e.PaymentID, e.RequestedCents, e.RemainingCents)
}

// DeadlineError reports a refund attempted past the category deadline.
type DeadlineError struct {
	PaymentID string
	Deadline  time.Time
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("refund deadline passed: payment=%s deadline=%s",
		e.PaymentID, e.Deadline.Format(time.RFC3339))
}

// CategoryRuleError reports a category-specific business rule blocking
// the refund.
type CategoryRuleError struct {
	PaymentID string
	Category  Category
	Rule      string
}

func (e *CategoryRuleError) Error() string {
	return fmt.Sprintf("refund blocked by category rule: payment=%s category=%s rule=%s",
		e.PaymentID, e.Category, e.Rule)
}

type RefundLimitScope string

const (
	RefundLimitDailyCount    RefundLimitScope = "daily_count"
	RefundLimitMonthlyAmount RefundLimitScope = "monthly_amount"
)

// RefundLimitError reports a per-user refund rate limit hit. Distinct
// from validation: the request itself was fine, the quota was not.
type RefundLimitError struct {
	UserID  string
	Scope   RefundLimitScope
	Limit   int64
	Current int64
}

func (e *RefundLimitError) Error() string {
	return fmt.Sprintf("refund limit exceeded: user=%s scope=%s limit=%d current=%d",
		e.UserID, e.Scope, e.Limit, e.Current)
}
