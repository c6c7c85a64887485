package ledger

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Statistics struct {
	TotalCount int64

	CountByType   map[Type]int64
	CountByStatus map[Status]int64

	IncomingCents int64 // successful in
	OutgoingCents int64 // successful out

	SuccessRate float64 // successful / total, 0 when empty
}

// Statistics aggregates a user's ledger activity between from and to.
func (s *Service) Statistics(ctx context.Context, userID string, from, to time.Time) (Statistics, error) {
	stats := Statistics{
		CountByType:   make(map[Type]int64),
		CountByStatus: make(map[Status]int64),
	}

	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&Transaction{}).
			Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to)
	}

	var typeRows []struct {
		Type  Type
		Count int64
	}
	if err := base().Select("type, COUNT(*) AS count").Group("type").Scan(&typeRows).Error; err != nil {
		return Statistics{}, err
	}
	for _, r := range typeRows {
		stats.CountByType[r.Type] = r.Count
		stats.TotalCount += r.Count
	}

	var statusRows []struct {
		Status Status
		Count  int64
	}
	if err := base().Select("status, COUNT(*) AS count").Group("status").Scan(&statusRows).Error; err != nil {
		return Statistics{}, err
	}
	for _, r := range statusRows {
		stats.CountByStatus[r.Status] = r.Count
	}

	var flowRows []struct {
		Direction Direction
		Total     int64
	}
	if err := base().Where("status = ?", StatusSuccess).
		Select("direction, COALESCE(SUM(amount_cents), 0) AS total").
		Group("direction").Scan(&flowRows).Error; err != nil {
		return Statistics{}, err
	}
	for _, r := range flowRows {
		switch r.Direction {
		case DirectionIn:
			stats.IncomingCents = r.Total
		case DirectionOut:
			stats.OutgoingCents = r.Total
		}
	}

	if stats.TotalCount > 0 {
		stats.SuccessRate = float64(stats.CountByStatus[StatusSuccess]) / float64(stats.TotalCount)
	}
	return stats, nil
}

// Commission records the platform's cut of a parent payment as a
// successful outgoing entry against the provider.
func (s *Service) Commission(ctx context.Context, tx *gorm.DB, parent Transaction, providerID string, amountCents int64, now time.Time) (Transaction, error) {
	return s.AppendInTx(ctx, tx, AppendInput{
		UserID:      providerID,
		BookingID:   parent.BookingID,
		ParentID:    &parent.ID,
		Type:        TypeCommission,
		Direction:   DirectionOut,
		Status:      StatusSuccess,
		AmountCents: amountCents,
		Currency:    parent.Currency,
		Description: "Platform commission for " + parent.TransactionNumber,
		Now:         now,
	})
}
