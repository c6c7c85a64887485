package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Type string

const (
	TypePayment      Type = "payment"
	TypeRefund       Type = "refund"
	TypeCommission   Type = "commission"
	TypeTransfer     Type = "transfer"
	TypeSubscription Type = "subscription"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Transaction is one money movement relative to its owning user.
// Amounts are positive minor units; the sign is implied by Direction.
// balance_after is set only when the row reaches success and the row is
// immutable from then on, metadata aside.
type Transaction struct {
	ID                string `gorm:"type:char(36);primaryKey"`
	TransactionNumber string `gorm:"type:varchar(32);not null;uniqueIndex:ux_transactions_number"`

	UserID    string  `gorm:"type:char(36);not null;index:ix_transactions_user_id"`
	BookingID *string `gorm:"type:char(36);index:ix_transactions_booking_id"`
	ParentID  *string `gorm:"type:char(36);index:ix_transactions_parent_id"`

	Type      Type      `gorm:"type:varchar(32);not null"`
	Direction Direction `gorm:"type:varchar(8);not null"`
	Status    Status    `gorm:"type:varchar(32);not null"`

	AmountCents        int64  `gorm:"not null"`
	Currency           string `gorm:"type:char(3);not null"`
	BalanceBeforeCents int64  `gorm:"not null"`
	BalanceAfterCents  *int64

	Description          string  `gorm:"type:varchar(500)"`
	Gateway              *string `gorm:"type:varchar(64)"`
	GatewayTransactionID *string `gorm:"type:varchar(128)"`

	Metadata datatypes.JSONMap

	ProcessedAt *time.Time `gorm:"type:datetime(3)"`
	CreatedAt   time.Time  `gorm:"type:datetime(3);not null"`
	UpdatedAt   time.Time  `gorm:"type:datetime(3);not null"`
}

func (Transaction) TableName() string { return "transactions" }

// balanceAnchor serializes appends per (user, currency). Every append
// locks this row before reading the prior-transaction snapshot.
type balanceAnchor struct {
	UserID    string    `gorm:"type:char(36);primaryKey"`
	Currency  string    `gorm:"type:char(3);primaryKey"`
	UpdatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (balanceAnchor) TableName() string { return "ledger_balance_anchors" }

func newTransactionNumber(now time.Time) string {
	return fmt.Sprintf("TXN-%s-%s", now.Format("20060102"), uuid.NewString()[:8])
}
