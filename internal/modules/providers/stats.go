package providers

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// StatsUpdater bumps the aggregate counters on a provider profile after
// lifecycle events. Calls run post-commit; a miss is logged by the
// caller and retried by the next event, never rolled back into the
// domain transaction.
type StatsUpdater struct{ db *gorm.DB }

func NewStatsUpdater(db *gorm.DB) *StatsUpdater { return &StatsUpdater{db: db} }

func (s *StatsUpdater) BookingConfirmed(ctx context.Context, providerID string, now time.Time) error {
	return s.db.WithContext(ctx).Model(&Profile{}).
		Where("id = ?", providerID).
		Updates(map[string]any{
			"confirmed_bookings_count":  gorm.Expr("confirmed_bookings_count + 1"),
			"last_booking_confirmed_at": now,
			"updated_at":                now,
		}).Error
}

func (s *StatsUpdater) BookingCompleted(ctx context.Context, providerID string, earnedCents int64, now time.Time) error {
	return s.db.WithContext(ctx).Model(&Profile{}).
		Where("id = ?", providerID).
		Updates(map[string]any{
			"completed_bookings_count":  gorm.Expr("completed_bookings_count + 1"),
			"total_earned_cents":        gorm.Expr("total_earned_cents + ?", earnedCents),
			"last_booking_completed_at": now,
			"updated_at":                now,
		}).Error
}

func (s *StatsUpdater) BookingCancelled(ctx context.Context, providerID string, now time.Time) error {
	return s.db.WithContext(ctx).Model(&Profile{}).
		Where("id = ?", providerID).
		Updates(map[string]any{
			"cancelled_bookings_count": gorm.Expr("cancelled_bookings_count + 1"),
			"updated_at":               now,
		}).Error
}

func (s *StatsUpdater) RefundProcessed(ctx context.Context, providerID string, amountCents int64, now time.Time) error {
	return s.db.WithContext(ctx).Model(&Profile{}).
		Where("id = ?", providerID).
		Updates(map[string]any{
			"refunds_count":        gorm.Expr("refunds_count + 1"),
			"refunds_amount_cents": gorm.Expr("refunds_amount_cents + ?", amountCents),
			"last_refund_at":       now,
			"updated_at":           now,
		}).Error
}
