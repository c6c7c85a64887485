package bookings

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"velora.app/internal/modules/providers"
	"velora.app/internal/shared/txn"
)

// blockingStatuses are the states that hold the provider's calendar.
// Pending rows do not block; two clients may race for the same window
// and the provider confirms one.
var blockingStatuses = []Status{StatusConfirmed, StatusInProgress}

// ConflictChecker answers whether a provider's window is free. It runs
// against whatever handle it is given, so lifecycle operations pass
// their own transaction and the check lands inside the same atomic
// scope as the write it guards.
type ConflictChecker struct{}

// HasConflict reports an overlap with any blocking reservation of the
// provider, excluding excludeID (the reservation being moved).
// Back-to-back windows do not overlap: [10:00,11:00) and [11:00,12:00)
// coexist.
func (ConflictChecker) HasConflict(ctx context.Context, tx *gorm.DB, providerID string, startsAt, endsAt time.Time, excludeID string) (bool, error) {
	q := tx.WithContext(ctx).Model(&Booking{}).
		Where("provider_id = ?", providerID).
		Where("status IN ?", blockingStatuses).
		Where("starts_at < ? AND ends_at > ?", endsAt, startsAt)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Check wraps HasConflict with the error the lifecycle returns. It
// first locks the provider's profile row for the duration of the
// surrounding transaction: concurrent writes against the same calendar
// serialize on that row, so a plain count cannot let two overlapping
// windows both commit.
func (c ConflictChecker) Check(ctx context.Context, tx *gorm.DB, providerID string, startsAt, endsAt time.Time, excludeID string) error {
	var p providers.Profile
	if err := txn.LockForUpdate(tx.WithContext(ctx)).First(&p, "id = ?", providerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProviderUnavailable
		}
		return err
	}

	conflict, err := c.HasConflict(ctx, tx, providerID, startsAt, endsAt, excludeID)
	if err != nil {
		return err
	}
	if conflict {
		return &ScheduleConflictError{ProviderID: providerID, StartsAt: startsAt, EndsAt: endsAt}
	}
	return nil
}
