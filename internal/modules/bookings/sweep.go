package bookings

import (
	"context"
	"time"

	"velora.app/internal/modules/catalog"
	"velora.app/internal/notifier"
)

// ExpirePending moves pending reservations past their auto-cancel
// window to expired. Idempotent: the status guard on the update means a
// second run over the same rows changes nothing. The sweep runs on a
// schedule and at startup.
func (s *Service) ExpirePending(ctx context.Context) (int, error) {
	now := s.now()
	expired := 0

	var candidates []Booking
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Find(&candidates).Error
	if err != nil {
		return 0, err
	}

	for _, b := range candidates {
		tc := catalog.TypeByName(b.TypeName())
		deadline := b.CreatedAt.Add(time.Duration(tc.AutoCancelHours) * time.Hour)
		if now.Before(deadline) {
			continue
		}

		res := s.db.WithContext(ctx).Model(&Booking{}).
			Where("id = ? AND status = ?", b.ID, StatusPending).
			Updates(map[string]any{"status": StatusExpired, "updated_at": now})
		if res.Error != nil {
			return expired, res.Error
		}
		if res.RowsAffected == 1 {
			expired++
			s.publish(ctx, notifier.Event{
				Type: notifier.EventBookingExpired, BookingID: b.ID, UserID: b.ClientID, OccurredAt: now,
			})
		}
	}

	if expired > 0 {
		s.log.Info("expired stale pending bookings", "count", expired)
	}
	return expired, nil
}

// StartDue flips confirmed reservations whose window has begun to
// in-progress. Same idempotency shape as ExpirePending.
func (s *Service) StartDue(ctx context.Context) (int, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&Booking{}).
		Where("status = ? AND starts_at <= ?", StatusConfirmed, now).
		Updates(map[string]any{"status": StatusInProgress, "updated_at": now})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
