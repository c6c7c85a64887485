package catalog

import "time"

// Service is a bookable catalog entry. Pricing management lives in the
// admin surface; this module only resolves selections at booking time.
type Service struct {
	ID              string `gorm:"type:char(36);primaryKey"`
	Name            string `gorm:"type:varchar(255);not null"`
	TypeName        string `gorm:"type:varchar(32);not null;default:'standard'"`
	PriceCents      int64  `gorm:"not null"`
	Currency        string `gorm:"type:char(3);not null"`
	DurationMinutes int    `gorm:"not null"`
	Active          bool   `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
	UpdatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (Service) TableName() string { return "services" }
