package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"velora.app/internal/modules/catalog"
	"velora.app/internal/modules/providers"
	"velora.app/internal/notifier"
	"velora.app/internal/shared/txn"
)

// Actor is resolved once at the boundary (auth middleware) and passed
// into every operation.
type Actor struct {
	UserID string
	Role   ActorRole
}

// RefundOutcome is what the refund pipeline reports back to a
// cancellation. A refund spread over several payments lands one ledger
// entry per slice, so the IDs come back as a list.
type RefundOutcome struct {
	TransactionIDs   []string
	AmountCents      int64
	ManualSettlement bool
	Skipped          bool
}

// Refunder is the narrow slice of the refund engine a cancellation
// needs. The in-tx call lands the ledger entry and payment update
// inside the cancel transaction; the gateway settlement runs after
// commit and can only flag, never roll back.
type Refunder interface {
	RefundForCancellation(ctx context.Context, tx *gorm.DB, b *Booking, amountCents int64, reason string, now time.Time) (RefundOutcome, error)
	SettleWithGateway(ctx context.Context, transactionID string, now time.Time) (manualSettlement bool, err error)
}

const (
	maxReschedulesClient   = 2
	maxReschedulesProvider = 5
	rescheduleHorizonDays  = 92 // roughly three months out

	providerCancelNoticeHours = 1

	highFeeAlertCents = 500_00
)

type Service struct {
	db        *gorm.DB
	conflicts ConflictChecker
	directory providers.Directory
	resolver  *catalog.Resolver
	refunds   Refunder
	stats     *providers.StatsUpdater
	notify    notifier.Notifier
	log       *slog.Logger

	now func() time.Time
}

func NewService(db *gorm.DB, dir providers.Directory, res *catalog.Resolver, refunds Refunder, stats *providers.StatsUpdater, notify notifier.Notifier, log *slog.Logger) *Service {
	return &Service{
		db:        db,
		directory: dir,
		resolver:  res,
		refunds:   refunds,
		stats:     stats,
		notify:    notify,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the time source; tests drive fixed timestamps
// through it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Get(ctx context.Context, id string) (Booking, error) {
	var b Booking
	err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

type CreateInput struct {
	ProviderID string
	ClientID   string
	StartsAt   time.Time
	Selections []catalog.Selection
	ClientNote string
}

// Create validates the window against the provider's calendar and
// inserts a pending reservation with its priced line items. The
// conflict check runs inside the insert transaction to close the
// check-then-act race with concurrent creates.
func (s *Service) Create(ctx context.Context, in CreateInput) (Booking, error) {
	now := s.now()

	active, err := s.directory.IsActive(ctx, in.ProviderID)
	if err != nil {
		return Booking{}, err
	}
	if !active {
		return Booking{}, ErrProviderUnavailable
	}

	resolved, err := s.resolver.Resolve(ctx, in.Selections)
	if err != nil {
		return Booking{}, err
	}
	if resolved.DurationMinutes <= 0 {
		return Booking{}, ErrInvalidWindow
	}

	tc := catalog.TypeByName(resolved.TypeName)
	if resolved.DurationMinutes > tc.MaxDurationHours*60 {
		return Booking{}, ErrInvalidWindow
	}

	endsAt := in.StartsAt.Add(time.Duration(resolved.DurationMinutes) * time.Minute)
	if !in.StartsAt.After(now) {
		return Booking{}, ErrWindowInPast
	}
	minStart := now.Add(time.Duration(tc.MinAdvanceHours) * time.Hour)
	if in.StartsAt.Before(minStart) {
		return Booking{}, &TimeWindowError{Operation: "create", Deadline: minStart}
	}

	profile, err := s.directory.Profile(ctx, in.ProviderID)
	if err != nil {
		return Booking{}, err
	}

	md := datatypes.JSONMap{"service_type": tc.Name}
	if in.ClientNote != "" {
		md["client_note"] = in.ClientNote
	}

	b := Booking{
		ID:              uuid.NewString(),
		BookingNumber:   newBookingNumber(now),
		ProviderID:      in.ProviderID,
		ClientID:        in.ClientID,
		StartsAt:        in.StartsAt,
		EndsAt:          endsAt,
		DurationMinutes: resolved.DurationMinutes,
		Status:          StatusPending,
		TotalPriceCents: resolved.TotalCents,
		Currency:        resolved.Currency,
		Metadata:        md,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if tc.SupportsDeposit {
		b.DepositCents = int64(math.Round(float64(resolved.TotalCents) * tc.DepositPct / 100))
	}

	autoConfirmed := false
	if profile.AutoConfirm {
		b.Status = StatusConfirmed
		confirmedAt := now
		b.ConfirmedAt = &confirmedAt
		b.Metadata["confirmation_method"] = "auto"
		autoConfirmed = true
	}

	err = txn.WithRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		if err := s.conflicts.Check(ctx, tx, in.ProviderID, in.StartsAt, endsAt, ""); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Create(&b).Error; err != nil {
			return err
		}
		for _, item := range resolved.Items {
			row := BookingItem{
				ID:              uuid.NewString(),
				BookingID:       b.ID,
				ServiceID:       item.Service.ID,
				Name:            item.Service.Name,
				PriceCents:      item.TotalCents,
				DurationMinutes: item.DurationMinutes,
				CreatedAt:       now,
			}
			if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Booking{}, err
	}

	s.publish(ctx, notifier.Event{
		Type: notifier.EventBookingCreated, BookingID: b.ID, UserID: b.ProviderID,
		OccurredAt: now, Payload: map[string]any{"booking_number": b.BookingNumber},
	})
	if autoConfirmed {
		s.afterConfirm(ctx, b, tc, now)
	}
	return b, nil
}

type ConfirmInput struct {
	Notes     string
	Equipment []string
}

// Confirm moves a pending reservation to confirmed. A reservation
// sitting past its auto-cancel window is expired here instead, in its
// own committed write, and the caller gets the state failure.
func (s *Service) Confirm(ctx context.Context, id string, actor Actor, in ConfirmInput) (Booking, error) {
	now := s.now()
	var b Booking
	var expired bool

	err := txn.WithRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		expired = false
		if err := txn.LockForUpdate(tx.WithContext(ctx)).First(&b, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if actor.Role != RoleAdmin && !(actor.Role == RoleProvider && actor.UserID == b.ProviderID) {
			return &NotAuthorizedError{Operation: "confirm", Role: actor.Role}
		}
		if !b.Status.CanTransitionTo(StatusConfirmed) {
			return &StateError{BookingID: b.ID, Current: b.Status, Operation: "confirm"}
		}
		if !b.StartsAt.After(now) {
			return &TimeWindowError{Operation: "confirm", Deadline: b.StartsAt}
		}

		tc := catalog.TypeByName(b.TypeName())
		confirmDeadline := b.CreatedAt.Add(time.Duration(tc.AutoCancelHours) * time.Hour)
		if now.After(confirmDeadline) {
			res := tx.WithContext(ctx).Model(&Booking{}).
				Where("id = ? AND status = ?", b.ID, StatusPending).
				Updates(map[string]any{"status": StatusExpired, "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			expired = true
			b.Status = StatusExpired
			return nil // commit the expiry, fail after
		}

		if err := s.conflicts.Check(ctx, tx, b.ProviderID, b.StartsAt, b.EndsAt, b.ID); err != nil {
			return err
		}

		md := b.Metadata
		if md == nil {
			md = datatypes.JSONMap{}
		}
		md["confirmation_method"] = "manual"
		if in.Notes != "" {
			md["provider_notes"] = in.Notes
		}
		if len(in.Equipment) > 0 {
			md["equipment"] = in.Equipment
		}

		res := tx.WithContext(ctx).Model(&Booking{}).
			Where("id = ? AND status = ?", b.ID, StatusPending).
			Updates(map[string]any{
				"status":       StatusConfirmed,
				"confirmed_at": now,
				"metadata":     md,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return &StateError{BookingID: b.ID, Current: b.Status, Operation: "confirm"}
		}

		b.Status = StatusConfirmed
		b.ConfirmedAt = &now
		b.Metadata = md
		b.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Booking{}, err
	}
	if expired {
		s.publish(ctx, notifier.Event{
			Type: notifier.EventBookingExpired, BookingID: b.ID, UserID: b.ClientID, OccurredAt: now,
		})
		return Booking{}, &StateError{BookingID: b.ID, Current: StatusExpired, Operation: "confirm"}
	}

	s.afterConfirm(ctx, b, catalog.TypeByName(b.TypeName()), now)
	return b, nil
}

// afterConfirm runs the post-commit side of a confirmation: the
// confirmation message, reminder scheduling, the deposit request and
// the provider counters.
func (s *Service) afterConfirm(ctx context.Context, b Booking, tc catalog.TypeConfig, now time.Time) {
	s.publish(ctx, notifier.Event{
		Type: notifier.EventBookingConfirmed, BookingID: b.ID, UserID: b.ClientID,
		OccurredAt: now, Payload: map[string]any{"starts_at": b.StartsAt},
	})

	var remindAt []time.Time
	for _, h := range tc.ReminderOffsetHours {
		at := b.StartsAt.Add(-time.Duration(h) * time.Hour)
		if at.After(now) {
			remindAt = append(remindAt, at)
		}
	}
	if len(remindAt) > 0 {
		s.publish(ctx, notifier.Event{
			Type: notifier.EventReminderSchedule, BookingID: b.ID, UserID: b.ClientID,
			OccurredAt: now, RemindAt: remindAt,
		})
	}

	if tc.SupportsDeposit && b.DepositCents > 0 && b.PaidCents == 0 {
		s.publish(ctx, notifier.Event{
			Type: notifier.EventDepositRequested, BookingID: b.ID, UserID: b.ClientID,
			OccurredAt: now, Payload: map[string]any{"amount_cents": b.DepositCents, "currency": b.Currency},
		})
	}

	if err := s.stats.BookingConfirmed(ctx, b.ProviderID, now); err != nil {
		s.log.Error("provider stats update failed", "booking_id", b.ID, "err", err)
	}
}

type CancelResult struct {
	Booking Booking
	Fee     FeeBreakdown
	Refund  RefundOutcome
}

// effect is one cascading update of a cancellation, applied in order
// inside the cancel transaction. Keeping them as an explicit list keeps
// the atomic boundary auditable.
type effect struct {
	name  string
	apply func(tx *gorm.DB) error
}

// Cancel transitions a pending or confirmed reservation to the
// cancelled state matching the actor's role, charges the cancellation
// fee and refunds the remainder of what was paid. The booking update,
// ledger entry and payment update land in one transaction; the gateway
// settlement runs after commit.
func (s *Service) Cancel(ctx context.Context, id string, actor Actor, reason string) (CancelResult, error) {
	now := s.now()
	var out CancelResult

	err := txn.WithRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		out = CancelResult{}
		var b Booking
		if err := txn.LockForUpdate(tx.WithContext(ctx)).First(&b, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		switch actor.Role {
		case RoleClient:
			if actor.UserID != b.ClientID {
				return &NotAuthorizedError{Operation: "cancel", Role: actor.Role}
			}
		case RoleProvider:
			if actor.UserID != b.ProviderID {
				return &NotAuthorizedError{Operation: "cancel", Role: actor.Role}
			}
		case RoleAdmin, RoleSystem:
			// elevated
		default:
			return &NotAuthorizedError{Operation: "cancel", Role: actor.Role}
		}

		target := cancelledStatusFor(actor.Role)
		if !b.Status.CanTransitionTo(target) {
			return &StateError{BookingID: b.ID, Current: b.Status, Operation: "cancel"}
		}

		tc := catalog.TypeByName(b.TypeName())
		switch actor.Role {
		case RoleClient:
			deadline := b.StartsAt.Add(-time.Duration(tc.MinAdvanceHours) * time.Hour)
			if now.After(deadline) {
				return &TimeWindowError{Operation: "cancel", Deadline: deadline}
			}
		case RoleProvider:
			deadline := b.StartsAt.Add(-providerCancelNoticeHours * time.Hour)
			if now.After(deadline) {
				return &TimeWindowError{Operation: "cancel", Deadline: deadline}
			}
		}

		fee := CancellationFee(b.TotalPriceCents, b.PaidCents, tc.CancellationFeePct, b.StartsAt, actor.Role, now)

		md := b.Metadata
		if md == nil {
			md = datatypes.JSONMap{}
		}
		md["fee_cents"] = fee.FeeCents
		md["fee_percent"] = fee.Percent
		md["hours_before_start"] = fee.HoursBeforeStart
		md["cancelled_by_role"] = string(actor.Role)

		effects := []effect{{
			name: "booking_cancel",
			apply: func(tx *gorm.DB) error {
				res := tx.WithContext(ctx).Model(&Booking{}).
					Where("id = ? AND status = ?", b.ID, b.Status).
					Updates(map[string]any{
						"status":              target,
						"cancelled_at":        now,
						"cancelled_by":        actor.UserID,
						"cancellation_reason": reason,
						"metadata":            md,
						"updated_at":          now,
					})
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected != 1 {
					return &StateError{BookingID: b.ID, Current: b.Status, Operation: "cancel"}
				}
				return nil
			},
		}}

		refundCents := b.PaidCents - b.RefundedCents - fee.FeeCents
		if b.PaidCents > 0 && refundCents > 0 && s.refunds != nil {
			effects = append(effects, effect{
				name: "cancellation_refund",
				apply: func(tx *gorm.DB) error {
					outcome, err := s.refunds.RefundForCancellation(ctx, tx, &b, refundCents, reason, now)
					if err != nil {
						return err
					}
					out.Refund = outcome
					return nil
				},
			})
		} else {
			out.Refund = RefundOutcome{Skipped: true}
		}

		for _, ef := range effects {
			if err := ef.apply(tx); err != nil {
				return fmt.Errorf("%s: %w", ef.name, err)
			}
		}

		b.Status = target
		b.CancelledAt = &now
		b.CancelledBy = &actor.UserID
		b.CancellationReason = &reason
		b.Metadata = md
		b.UpdatedAt = now
		out.Booking = b
		out.Fee = fee
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}

	for _, txnID := range out.Refund.TransactionIDs {
		manual, err := s.refunds.SettleWithGateway(ctx, txnID, now)
		if err != nil {
			s.log.Error("refund gateway settlement failed, flagged for manual follow-up",
				"booking_id", out.Booking.ID, "transaction_id", txnID, "err", err)
		}
		if manual {
			out.Refund.ManualSettlement = true
		}
	}

	b := out.Booking
	counterParty := b.ClientID
	if actor.Role == RoleClient {
		counterParty = b.ProviderID
	}
	s.publish(ctx, notifier.Event{
		Type: notifier.EventBookingCancelled, BookingID: b.ID, UserID: counterParty,
		OccurredAt: now, Payload: map[string]any{
			"reason": reason, "fee_cents": out.Fee.FeeCents, "refund_cents": out.Refund.AmountCents,
		},
	})
	if out.Fee.FeeCents > highFeeAlertCents {
		s.publish(ctx, notifier.Event{
			Type: notifier.EventHighFeeAlert, BookingID: b.ID, OccurredAt: now,
			Payload: map[string]any{"fee_cents": out.Fee.FeeCents, "currency": b.Currency},
		})
	}
	if actor.Role != RoleClient {
		if err := s.stats.BookingCancelled(ctx, b.ProviderID, now); err != nil {
			s.log.Error("provider stats update failed", "booking_id", b.ID, "err", err)
		}
	}
	return out, nil
}

// Complete marks a finished reservation. A confirmed reservation past
// its start time completes directly, covering providers who never hit
// the in-progress button.
func (s *Service) Complete(ctx context.Context, id string, actor Actor) (Booking, error) {
	now := s.now()
	var b Booking

	err := txn.WithRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		if err := txn.LockForUpdate(tx.WithContext(ctx)).First(&b, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if actor.Role != RoleAdmin && !(actor.Role == RoleProvider && actor.UserID == b.ProviderID) {
			return &NotAuthorizedError{Operation: "complete", Role: actor.Role}
		}

		switch {
		case b.Status.CanTransitionTo(StatusCompleted):
		case b.Status == StatusConfirmed:
			// confirmed past start completes directly
			if now.Before(b.StartsAt) {
				return &TimeWindowError{Operation: "complete", Deadline: b.StartsAt}
			}
		default:
			return &StateError{BookingID: b.ID, Current: b.Status, Operation: "complete"}
		}

		md := b.Metadata
		if md == nil {
			md = datatypes.JSONMap{}
		}
		md["completed_by"] = actor.UserID

		res := tx.WithContext(ctx).Model(&Booking{}).
			Where("id = ? AND status = ?", b.ID, b.Status).
			Updates(map[string]any{
				"status":       StatusCompleted,
				"completed_at": now,
				"metadata":     md,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return &StateError{BookingID: b.ID, Current: b.Status, Operation: "complete"}
		}

		b.Status = StatusCompleted
		b.CompletedAt = &now
		b.Metadata = md
		b.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Booking{}, err
	}

	if err := s.stats.BookingCompleted(ctx, b.ProviderID, b.PaidCents, now); err != nil {
		s.log.Error("provider stats update failed", "booking_id", b.ID, "err", err)
	}
	s.publish(ctx, notifier.Event{
		Type: notifier.EventBookingCompleted, BookingID: b.ID, UserID: b.ClientID, OccurredAt: now,
	})
	return b, nil
}

// Reschedule moves the reservation window in place. State is kept, the
// counter is bumped and the previous window goes into the audit trail.
func (s *Service) Reschedule(ctx context.Context, id string, actor Actor, newStart time.Time) (Booking, error) {
	now := s.now()
	var b Booking

	err := txn.WithRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		if err := txn.LockForUpdate(tx.WithContext(ctx)).First(&b, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var limit int
		switch actor.Role {
		case RoleClient:
			if actor.UserID != b.ClientID {
				return &NotAuthorizedError{Operation: "reschedule", Role: actor.Role}
			}
			limit = maxReschedulesClient
		case RoleProvider:
			if actor.UserID != b.ProviderID {
				return &NotAuthorizedError{Operation: "reschedule", Role: actor.Role}
			}
			limit = maxReschedulesProvider
		case RoleAdmin:
			limit = maxReschedulesProvider
		default:
			return &NotAuthorizedError{Operation: "reschedule", Role: actor.Role}
		}

		if b.Status.IsTerminal() || b.Status == StatusInProgress {
			return &StateError{BookingID: b.ID, Current: b.Status, Operation: "reschedule"}
		}
		if b.RescheduleCount >= limit {
			return &RescheduleLimitError{BookingID: b.ID, Limit: limit}
		}

		tc := catalog.TypeByName(b.TypeName())
		if !newStart.After(now) {
			return ErrWindowInPast
		}
		minStart := now.Add(time.Duration(tc.MinAdvanceHours) * time.Hour)
		if newStart.Before(minStart) {
			return &TimeWindowError{Operation: "reschedule", Deadline: minStart}
		}
		horizon := now.AddDate(0, 0, rescheduleHorizonDays)
		if newStart.After(horizon) {
			return &TimeWindowError{Operation: "reschedule", Deadline: horizon}
		}

		newEnd := newStart.Add(time.Duration(b.DurationMinutes) * time.Minute)
		if err := s.conflicts.Check(ctx, tx, b.ProviderID, newStart, newEnd, b.ID); err != nil {
			return err
		}

		md := b.Metadata
		if md == nil {
			md = datatypes.JSONMap{}
		}
		history, _ := md["reschedule_history"].([]any)
		history = append(history, map[string]any{
			"from":  b.StartsAt.Format(time.RFC3339),
			"to":    newStart.Format(time.RFC3339),
			"by":    actor.UserID,
			"role":  string(actor.Role),
			"at":    now.Format(time.RFC3339),
		})
		md["reschedule_history"] = history

		res := tx.WithContext(ctx).Model(&Booking{}).
			Where("id = ? AND status = ? AND reschedule_count = ?", b.ID, b.Status, b.RescheduleCount).
			Updates(map[string]any{
				"starts_at":        newStart,
				"ends_at":          newEnd,
				"reschedule_count": b.RescheduleCount + 1,
				"metadata":         md,
				"updated_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return &StateError{BookingID: b.ID, Current: b.Status, Operation: "reschedule"}
		}

		b.StartsAt = newStart
		b.EndsAt = newEnd
		b.RescheduleCount++
		b.Metadata = md
		b.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Booking{}, err
	}
	return b, nil
}

func (s *Service) publish(ctx context.Context, ev notifier.Event) {
	if s.notify == nil {
		return
	}
	if err := s.notify.Publish(ctx, ev); err != nil {
		s.log.Error("notification publish failed", "event", ev.Type, "booking_id", ev.BookingID, "err", err)
	}
}
