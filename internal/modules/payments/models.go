package payments

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Category drives the refund deadline and the category-specific
// refund rules.
type Category string

const (
	CategoryServicePayment Category = "service_payment"
	CategoryDeposit        Category = "deposit"
	CategorySubscription   Category = "subscription"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusCompleted         Status = "completed"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusRefunded          Status = "refunded"
	StatusFailed            Status = "failed"
)

// Refundable states. Everything else is either not settled yet or
// already drained.
func (s Status) Refundable() bool {
	return s == StatusCompleted || s == StatusPartiallyRefunded
}

type Payment struct {
	ID            string `gorm:"type:char(36);primaryKey"`
	PaymentNumber string `gorm:"type:varchar(32);not null;uniqueIndex:ux_payments_number"`

	UserID    string  `gorm:"type:char(36);not null;index:ix_payments_user_id"`
	BookingID *string `gorm:"type:char(36);index:ix_payments_booking_id"`

	Category Category `gorm:"type:varchar(32);not null"`
	Status   Status   `gorm:"type:varchar(32);not null"`

	AmountCents   int64  `gorm:"not null"`
	RefundedCents int64  `gorm:"not null;default:0"`
	Currency      string `gorm:"type:char(3);not null"`

	Gateway    string  `gorm:"type:varchar(64);not null"`
	GatewayRef *string `gorm:"type:varchar(128)"`

	Metadata datatypes.JSONMap

	ProcessedAt *time.Time `gorm:"type:datetime(3)"`
	CreatedAt   time.Time  `gorm:"type:datetime(3);not null"`
	UpdatedAt   time.Time  `gorm:"type:datetime(3);not null"`
}

func (Payment) TableName() string { return "payments" }

// RemainingCents is the refundable headroom left on the payment.
func (p Payment) RemainingCents() int64 { return p.AmountCents - p.RefundedCents }

func newPaymentNumber(now time.Time) string {
	return fmt.Sprintf("PAY-%s-%s", now.Format("20060102"), uuid.NewString()[:8])
}
