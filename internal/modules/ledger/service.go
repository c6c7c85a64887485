package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"velora.app/internal/shared/txn"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

type AppendInput struct {
	UserID    string
	BookingID *string
	ParentID  *string

	Type      Type
	Direction Direction
	Status    Status // zero value => pending

	AmountCents int64
	Currency    string
	Description string

	Gateway              *string
	GatewayTransactionID *string
	Metadata             map[string]any

	Now time.Time
}

// Append records a money movement. Limits are checked before anything
// is persisted; the per-(user,currency) anchor row is locked so the
// prior-transaction snapshot is consistent under concurrent appends.
func (s *Service) Append(ctx context.Context, in AppendInput) (Transaction, error) {
	var out Transaction
	err := txn.WithRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		var err error
		out, err = s.AppendInTx(ctx, tx, in)
		return err
	})
	return out, err
}

// AppendInTx is Append running inside a caller-owned transaction, so a
// lifecycle operation can land its ledger entry atomically with the
// rest of its writes.
func (s *Service) AppendInTx(ctx context.Context, tx *gorm.DB, in AppendInput) (Transaction, error) {
	if in.AmountCents <= 0 {
		return Transaction{}, ErrInvalidAmount
	}

	limit := limitFor(in.Type)
	if in.AmountCents > limit.SingleCents {
		return Transaction{}, &LimitError{
			Scope: LimitScopeSingle, Type: in.Type,
			LimitCents: limit.SingleCents, AmountCents: in.AmountCents,
		}
	}

	dayStart := startOfDay(in.Now)
	var dailyCents int64
	err := tx.WithContext(ctx).Model(&Transaction{}).
		Where("user_id = ? AND type = ? AND created_at >= ? AND created_at < ?",
			in.UserID, in.Type, dayStart, dayStart.Add(24*time.Hour)).
		Where("status NOT IN ?", []Status{StatusFailed, StatusCancelled}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&dailyCents).Error
	if err != nil {
		return Transaction{}, err
	}
	if dailyCents+in.AmountCents > limit.DailyCents {
		return Transaction{}, &LimitError{
			Scope: LimitScopeDaily, Type: in.Type,
			LimitCents: limit.DailyCents, AmountCents: in.AmountCents,
		}
	}

	if err := s.lockAnchor(ctx, tx, in.UserID, in.Currency, in.Now); err != nil {
		return Transaction{}, err
	}

	balanceBefore, err := balanceInTx(ctx, tx, in.UserID, in.Currency)
	if err != nil {
		return Transaction{}, err
	}

	status := in.Status
	if status == "" {
		status = StatusPending
	}

	entry := Transaction{
		ID:                   uuid.NewString(),
		TransactionNumber:    newTransactionNumber(in.Now),
		UserID:               in.UserID,
		BookingID:            in.BookingID,
		ParentID:             in.ParentID,
		Type:                 in.Type,
		Direction:            in.Direction,
		Status:               status,
		AmountCents:          in.AmountCents,
		Currency:             in.Currency,
		BalanceBeforeCents:   balanceBefore,
		Description:          in.Description,
		Gateway:              in.Gateway,
		GatewayTransactionID: in.GatewayTransactionID,
		Metadata:             datatypes.JSONMap(in.Metadata),
		CreatedAt:            in.Now,
		UpdatedAt:            in.Now,
	}

	if status == StatusSuccess {
		after := applyDirection(balanceBefore, in.Direction, in.AmountCents)
		entry.BalanceAfterCents = &after
		processedAt := in.Now
		entry.ProcessedAt = &processedAt
	}

	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return Transaction{}, err
	}
	return entry, nil
}

// MarkSuccess finalizes a pending/processing entry. The balance
// snapshot is re-read under the anchor lock at success time, because
// that is the moment the entry starts counting toward the balance.
func (s *Service) MarkSuccess(ctx context.Context, id string, now time.Time) (Transaction, error) {
	var out Transaction
	err := txn.WithRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		var entry Transaction
		if err := txn.LockForUpdate(tx.WithContext(ctx)).First(&entry, "id = ?", id).Error; err != nil {
			return err
		}
		if entry.Status != StatusPending && entry.Status != StatusProcessing {
			return ErrNotTransitional
		}

		if err := s.lockAnchor(ctx, tx, entry.UserID, entry.Currency, now); err != nil {
			return err
		}
		balanceBefore, err := balanceInTx(ctx, tx, entry.UserID, entry.Currency)
		if err != nil {
			return err
		}
		after := applyDirection(balanceBefore, entry.Direction, entry.AmountCents)

		res := tx.WithContext(ctx).Model(&Transaction{}).
			Where("id = ? AND status = ?", entry.ID, entry.Status). // optimistic guard
			Updates(map[string]any{
				"status":               StatusSuccess,
				"balance_before_cents": balanceBefore,
				"balance_after_cents":  after,
				"processed_at":         now,
				"updated_at":           now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrNotTransitional
		}

		entry.Status = StatusSuccess
		entry.BalanceBeforeCents = balanceBefore
		entry.BalanceAfterCents = &after
		entry.ProcessedAt = &now
		entry.UpdatedAt = now
		out = entry
		return nil
	})
	return out, err
}

func (s *Service) MarkFailed(ctx context.Context, id, reason string, now time.Time) error {
	return s.transition(ctx, id, StatusFailed, reason, now)
}

func (s *Service) Cancel(ctx context.Context, id string, now time.Time) error {
	return s.transition(ctx, id, StatusCancelled, "", now)
}

func (s *Service) transition(ctx context.Context, id string, to Status, note string, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry Transaction
		if err := txn.LockForUpdate(tx.WithContext(ctx)).First(&entry, "id = ?", id).Error; err != nil {
			return err
		}
		if entry.Status != StatusPending && entry.Status != StatusProcessing {
			return ErrNotTransitional
		}
		updates := map[string]any{"status": to, "updated_at": now}
		if note != "" {
			md := entry.Metadata
			if md == nil {
				md = datatypes.JSONMap{}
			}
			md["failure_reason"] = note
			updates["metadata"] = md
		}
		return tx.WithContext(ctx).Model(&Transaction{}).
			Where("id = ? AND status = ?", entry.ID, entry.Status).
			Updates(updates).Error
	})
}

// Balance nets all successful movements for the user in one currency.
func (s *Service) Balance(ctx context.Context, userID, currency string) (int64, error) {
	return balanceInTx(ctx, s.db, userID, currency)
}

// List returns a user's transactions newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var rows []Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	return rows, err
}

type TransferInput struct {
	FromUserID  string
	ToUserID    string
	AmountCents int64
	Currency    string
	Description string
	Now         time.Time
}

// Transfer writes the paired out/in rows atomically.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (outgoing, incoming Transaction, err error) {
	err = txn.WithRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		var e error
		outgoing, e = s.AppendInTx(ctx, tx, AppendInput{
			UserID:      in.FromUserID,
			Type:        TypeTransfer,
			Direction:   DirectionOut,
			Status:      StatusSuccess,
			AmountCents: in.AmountCents,
			Currency:    in.Currency,
			Description: in.Description,
			Now:         in.Now,
		})
		if e != nil {
			return e
		}
		incoming, e = s.AppendInTx(ctx, tx, AppendInput{
			UserID:      in.ToUserID,
			ParentID:    &outgoing.ID,
			Type:        TypeTransfer,
			Direction:   DirectionIn,
			Status:      StatusSuccess,
			AmountCents: in.AmountCents,
			Currency:    in.Currency,
			Description: in.Description,
			Now:         in.Now,
		})
		return e
	})
	return outgoing, incoming, err
}

// RefundsOnDay counts the user's non-failed refund entries for the
// calendar day containing now. Consumed by the refund engine's daily
// rate limit.
func (s *Service) RefundsOnDay(ctx context.Context, tx *gorm.DB, userID string, now time.Time) (int64, error) {
	if tx == nil {
		tx = s.db
	}
	dayStart := startOfDay(now)
	var n int64
	err := tx.WithContext(ctx).Model(&Transaction{}).
		Where("user_id = ? AND type = ? AND created_at >= ? AND created_at < ?",
			userID, TypeRefund, dayStart, dayStart.Add(24*time.Hour)).
		Where("status NOT IN ?", []Status{StatusFailed, StatusCancelled}).
		Count(&n).Error
	return n, err
}

// RefundedInMonth sums successful refund amounts in the calendar month
// containing now.
func (s *Service) RefundedInMonth(ctx context.Context, tx *gorm.DB, userID string, now time.Time) (int64, error) {
	if tx == nil {
		tx = s.db
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	var sum int64
	err := tx.WithContext(ctx).Model(&Transaction{}).
		Where("user_id = ? AND type = ? AND status = ?", userID, TypeRefund, StatusSuccess).
		Where("created_at >= ? AND created_at < ?", monthStart, monthStart.AddDate(0, 1, 0)).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&sum).Error
	return sum, err
}

func (s *Service) lockAnchor(ctx context.Context, tx *gorm.DB, userID, currency string, now time.Time) error {
	anchor := balanceAnchor{UserID: userID, Currency: currency, UpdatedAt: now}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&anchor).Error; err != nil {
		return err
	}
	return txn.LockForUpdate(tx.WithContext(ctx)).
		First(&balanceAnchor{}, "user_id = ? AND currency = ?", userID, currency).Error
}

func balanceInTx(ctx context.Context, tx *gorm.DB, userID, currency string) (int64, error) {
	var balance int64
	err := tx.WithContext(ctx).Model(&Transaction{}).
		Where("user_id = ? AND currency = ? AND status = ?", userID, currency, StatusSuccess).
		Select("COALESCE(SUM(CASE WHEN direction = 'in' THEN amount_cents ELSE -amount_cents END), 0)").
		Scan(&balance).Error
	return balance, err
}

func applyDirection(before int64, d Direction, amount int64) int64 {
	if d == DirectionIn {
		return before + amount
	}
	return before - amount
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
