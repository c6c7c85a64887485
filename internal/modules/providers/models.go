package providers

import "time"

// Profile holds the provider-side settings and aggregate counters the
// booking lifecycle reads and updates. Account management itself is
// owned by another system; only this projection lives here.
type Profile struct {
	ID          string `gorm:"type:char(36);primaryKey"`
	UserID      string `gorm:"type:char(36);not null;uniqueIndex:ux_provider_profiles_user_id"`
	DisplayName string `gorm:"type:varchar(255);not null"`
	Active      bool   `gorm:"not null;default:true"`
	AutoConfirm bool   `gorm:"not null;default:false"`
	VIP         bool   `gorm:"column:vip;not null;default:false"`

	ConfirmedBookingsCount int   `gorm:"not null;default:0"`
	CompletedBookingsCount int   `gorm:"not null;default:0"`
	CancelledBookingsCount int   `gorm:"not null;default:0"`
	TotalEarnedCents       int64 `gorm:"not null;default:0"`
	RefundsCount           int   `gorm:"not null;default:0"`
	RefundsAmountCents     int64 `gorm:"not null;default:0"`

	LastBookingConfirmedAt *time.Time `gorm:"type:datetime(3)"`
	LastBookingCompletedAt *time.Time `gorm:"type:datetime(3)"`
	LastRefundAt           *time.Time `gorm:"type:datetime(3)"`

	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
	UpdatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (Profile) TableName() string { return "provider_profiles" }
