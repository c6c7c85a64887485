package bookings

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Booking is the central reservation row. Never hard-deleted; after
// creation only the documented lifecycle fields change.
type Booking struct {
	ID            string `gorm:"type:char(36);primaryKey"`
	BookingNumber string `gorm:"type:varchar(32);not null;uniqueIndex:ux_bookings_number"`

	ProviderID string `gorm:"type:char(36);not null;index:ix_bookings_provider_id"`
	ClientID   string `gorm:"type:char(36);not null;index:ix_bookings_client_id"`

	StartsAt        time.Time `gorm:"type:datetime(3);not null;index:ix_bookings_starts_at"`
	EndsAt          time.Time `gorm:"type:datetime(3);not null"`
	DurationMinutes int       `gorm:"not null"`

	Status Status `gorm:"type:varchar(32);not null;index:ix_bookings_status"`

	TotalPriceCents int64  `gorm:"not null"`
	PaidCents       int64  `gorm:"not null;default:0"`
	RefundedCents   int64  `gorm:"not null;default:0"`
	DepositCents    int64  `gorm:"not null;default:0"`
	Currency        string `gorm:"type:char(3);not null"`

	RescheduleCount int `gorm:"not null;default:0"`

	ConfirmedAt        *time.Time `gorm:"type:datetime(3)"`
	CancelledAt        *time.Time `gorm:"type:datetime(3)"`
	CompletedAt        *time.Time `gorm:"type:datetime(3)"`
	CancelledBy        *string    `gorm:"type:char(36)"`
	CancellationReason *string    `gorm:"type:varchar(500)"`

	Metadata datatypes.JSONMap

	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
	UpdatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (Booking) TableName() string { return "bookings" }

// TypeName reads the service-type tag recorded at creation. Falls back
// to the default type for rows predating the tag.
func (b Booking) TypeName() string {
	if v, ok := b.Metadata["service_type"].(string); ok && v != "" {
		return v
	}
	return ""
}

// BookingItem is one selected service attached to a booking, priced at
// creation time so later catalog edits do not rewrite history.
type BookingItem struct {
	ID        string `gorm:"type:char(36);primaryKey"`
	BookingID string `gorm:"type:char(36);not null;index:ix_booking_items_booking_id"`
	ServiceID string `gorm:"type:char(36);not null"`

	Name            string `gorm:"type:varchar(255);not null"`
	PriceCents      int64  `gorm:"not null"`
	DurationMinutes int    `gorm:"not null"`

	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (BookingItem) TableName() string { return "booking_items" }

func newBookingNumber(now time.Time) string {
	return fmt.Sprintf("BK%s-%s", now.Format("20060102"), uuid.NewString()[:6])
}
