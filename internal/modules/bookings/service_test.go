package bookings

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"velora.app/internal/modules/catalog"
	"velora.app/internal/modules/providers"
	"velora.app/internal/notifier"
)

var clock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "open sqlite")

	schema := []string{
		`CREATE TABLE bookings (
			id TEXT PRIMARY KEY,
			booking_number TEXT NOT NULL UNIQUE,
			provider_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			starts_at DATETIME NOT NULL,
			ends_at DATETIME NOT NULL,
			duration_minutes INTEGER NOT NULL,
			status TEXT NOT NULL,
			total_price_cents INTEGER NOT NULL,
			paid_cents INTEGER NOT NULL DEFAULT 0,
			refunded_cents INTEGER NOT NULL DEFAULT 0,
			deposit_cents INTEGER NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			reschedule_count INTEGER NOT NULL DEFAULT 0,
			confirmed_at DATETIME,
			cancelled_at DATETIME,
			completed_at DATETIME,
			cancelled_by TEXT,
			cancellation_reason TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE booking_items (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			name TEXT NOT NULL,
			price_cents INTEGER NOT NULL,
			duration_minutes INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE services (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type_name TEXT NOT NULL DEFAULT 'standard',
			price_cents INTEGER NOT NULL,
			currency TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE provider_profiles (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			auto_confirm INTEGER NOT NULL DEFAULT 0,
			vip INTEGER NOT NULL DEFAULT 0,
			confirmed_bookings_count INTEGER NOT NULL DEFAULT 0,
			completed_bookings_count INTEGER NOT NULL DEFAULT 0,
			cancelled_bookings_count INTEGER NOT NULL DEFAULT 0,
			total_earned_cents INTEGER NOT NULL DEFAULT 0,
			refunds_count INTEGER NOT NULL DEFAULT 0,
			refunds_amount_cents INTEGER NOT NULL DEFAULT 0,
			last_booking_confirmed_at DATETIME,
			last_booking_completed_at DATETIME,
			last_refund_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
	}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error, "create schema")
	}
	return db
}

type fakeRefunder struct {
	calls   int
	lastAmt int64
	manual  bool
}

func (f *fakeRefunder) RefundForCancellation(_ context.Context, tx *gorm.DB, b *Booking, amountCents int64, _ string, now time.Time) (RefundOutcome, error) {
	f.calls++
	f.lastAmt = amountCents
	err := tx.Model(&Booking{}).Where("id = ?", b.ID).
		Updates(map[string]any{"refunded_cents": gorm.Expr("refunded_cents + ?", amountCents), "updated_at": now}).Error
	if err != nil {
		return RefundOutcome{}, err
	}
	return RefundOutcome{TransactionIDs: []string{uuid.NewString()}, AmountCents: amountCents}, nil
}

func (f *fakeRefunder) SettleWithGateway(context.Context, string, time.Time) (bool, error) {
	return f.manual, nil
}

type fixture struct {
	db      *gorm.DB
	svc     *Service
	refunds *fakeRefunder
	events  *notifier.Recorder

	providerID string
	serviceID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)

	providerID := uuid.NewString()
	require.NoError(t, db.Create(&providers.Profile{
		ID: providerID, UserID: uuid.NewString(), DisplayName: "Anna",
		Active: true, CreatedAt: clock, UpdatedAt: clock,
	}).Error)

	serviceID := uuid.NewString()
	require.NoError(t, db.Create(&catalog.Service{
		ID: serviceID, Name: "Deep tissue massage", TypeName: "standard",
		PriceCents: 1000_00, Currency: "EUR", DurationMinutes: 60,
		Active: true, CreatedAt: clock, UpdatedAt: clock,
	}).Error)

	refunds := &fakeRefunder{}
	events := &notifier.Recorder{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(db, providers.NewDirectory(db, nil), catalog.NewResolver(db),
		refunds, providers.NewStatsUpdater(db), events, log).
		WithClock(func() time.Time { return clock })

	return &fixture{db: db, svc: svc, refunds: refunds, events: events, providerID: providerID, serviceID: serviceID}
}

func (f *fixture) create(t *testing.T, startsIn time.Duration) Booking {
	t.Helper()
	b, err := f.svc.Create(context.Background(), CreateInput{
		ProviderID: f.providerID,
		ClientID:   "client-1",
		StartsAt:   clock.Add(startsIn),
		Selections: []catalog.Selection{{ServiceID: f.serviceID}},
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) pay(t *testing.T, id string, cents int64) {
	t.Helper()
	require.NoError(t, f.db.Model(&Booking{}).Where("id = ?", id).
		Update("paid_cents", cents).Error)
}

func (f *fixture) reload(t *testing.T, id string) Booking {
	t.Helper()
	var b Booking
	require.NoError(t, f.db.First(&b, "id = ?", id).Error)
	return b
}

func provider(f *fixture) Actor { return Actor{UserID: f.providerID, Role: RoleProvider} }

var client = Actor{UserID: "client-1", Role: RoleClient}

func TestCreate_PendingWithItems(t *testing.T) {
	f := newFixture(t)

	b := f.create(t, 48*time.Hour)
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, int64(1000_00), b.TotalPriceCents)
	assert.Equal(t, "EUR", b.Currency)
	assert.Equal(t, 60, b.DurationMinutes)
	assert.Equal(t, b.StartsAt.Add(time.Hour), b.EndsAt)
	assert.Contains(t, b.BookingNumber, "BK20250601-")
	assert.Equal(t, "standard", b.TypeName())

	var items int64
	require.NoError(t, f.db.Model(&BookingItem{}).Where("booking_id = ?", b.ID).Count(&items).Error)
	assert.Equal(t, int64(1), items)

	assert.Len(t, f.events.ByType(notifier.EventBookingCreated), 1)
}

func TestCreate_InactiveProvider(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&providers.Profile{}).Where("id = ?", f.providerID).
		Update("active", false).Error)

	_, err := f.svc.Create(context.Background(), CreateInput{
		ProviderID: f.providerID, ClientID: "client-1",
		StartsAt:   clock.Add(48 * time.Hour),
		Selections: []catalog.Selection{{ServiceID: f.serviceID}},
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestCreate_MinimumAdvanceNotice(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateInput{
		ProviderID: f.providerID, ClientID: "client-1",
		StartsAt:   clock.Add(time.Hour), // standard type needs 2h
		Selections: []catalog.Selection{{ServiceID: f.serviceID}},
	})
	var tw *TimeWindowError
	require.ErrorAs(t, err, &tw)
	assert.Equal(t, "create", tw.Operation)
}

func TestCreate_ConflictWithConfirmedBooking(t *testing.T) {
	f := newFixture(t)

	first := f.create(t, 48*time.Hour)
	_, err := f.svc.Confirm(context.Background(), first.ID, provider(f), ConfirmInput{})
	require.NoError(t, err)

	// Overlaps the confirmed window by 30 minutes.
	_, err = f.svc.Create(context.Background(), CreateInput{
		ProviderID: f.providerID, ClientID: "client-2",
		StartsAt:   first.StartsAt.Add(30 * time.Minute),
		Selections: []catalog.Selection{{ServiceID: f.serviceID}},
	})
	var conflict *ScheduleConflictError
	assert.ErrorAs(t, err, &conflict)

	// Back-to-back is fine.
	_, err = f.svc.Create(context.Background(), CreateInput{
		ProviderID: f.providerID, ClientID: "client-2",
		StartsAt:   first.EndsAt,
		Selections: []catalog.Selection{{ServiceID: f.serviceID}},
	})
	assert.NoError(t, err)
}

func TestCreate_AutoConfirm(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&providers.Profile{}).Where("id = ?", f.providerID).
		Update("auto_confirm", true).Error)

	b := f.create(t, 48*time.Hour)
	assert.Equal(t, StatusConfirmed, b.Status)
	require.NotNil(t, b.ConfirmedAt)
	assert.Equal(t, "auto", b.Metadata["confirmation_method"])

	assert.Len(t, f.events.ByType(notifier.EventBookingConfirmed), 1)
	assert.Len(t, f.events.ByType(notifier.EventReminderSchedule), 1)

	var p providers.Profile
	require.NoError(t, f.db.First(&p, "id = ?", f.providerID).Error)
	assert.Equal(t, 1, p.ConfirmedBookingsCount)
}

func TestConfirm_HappyPath(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 48*time.Hour)

	confirmed, err := f.svc.Confirm(context.Background(), b.ID, provider(f), ConfirmInput{
		Notes: "bring own towels", Equipment: []string{"table"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, "manual", confirmed.Metadata["confirmation_method"])
	assert.Equal(t, "bring own towels", confirmed.Metadata["provider_notes"])

	reminders := f.events.ByType(notifier.EventReminderSchedule)
	require.Len(t, reminders, 1)
	assert.Equal(t, []time.Time{b.StartsAt.Add(-24 * time.Hour), b.StartsAt.Add(-2 * time.Hour)}, reminders[0].RemindAt)
}

func TestConfirm_WrongProvider(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 48*time.Hour)

	_, err := f.svc.Confirm(context.Background(), b.ID, Actor{UserID: "someone-else", Role: RoleProvider}, ConfirmInput{})
	var na *NotAuthorizedError
	assert.ErrorAs(t, err, &na)
}

func TestConfirm_ExpiresStalePending(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 96*time.Hour)

	// Age the booking past the 24h auto-cancel window.
	require.NoError(t, f.db.Model(&Booking{}).Where("id = ?", b.ID).
		Update("created_at", clock.Add(-25*time.Hour)).Error)

	_, err := f.svc.Confirm(context.Background(), b.ID, provider(f), ConfirmInput{})
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatusExpired, se.Current)

	assert.Equal(t, StatusExpired, f.reload(t, b.ID).Status)
	assert.Len(t, f.events.ByType(notifier.EventBookingExpired), 1)
}

func TestConfirm_OverlappingPendingOnlyOneWins(t *testing.T) {
	f := newFixture(t)

	first := f.create(t, 48*time.Hour)
	second, err := f.svc.Create(context.Background(), CreateInput{
		ProviderID: f.providerID, ClientID: "client-2",
		StartsAt:   first.StartsAt.Add(30 * time.Minute),
		Selections: []catalog.Selection{{ServiceID: f.serviceID}},
	})
	require.NoError(t, err, "two pending bookings may hold the same window")

	_, err = f.svc.Confirm(context.Background(), first.ID, provider(f), ConfirmInput{})
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), second.ID, provider(f), ConfirmInput{})
	var conflict *ScheduleConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestCancel_OnTimeNoFee(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 48*time.Hour)
	f.pay(t, b.ID, 1000_00)

	res, err := f.svc.Cancel(context.Background(), b.ID, client, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelledByClient, res.Booking.Status)
	assert.Zero(t, res.Fee.FeeCents)
	assert.Equal(t, int64(1000_00), res.Refund.AmountCents)
	assert.Equal(t, 1, f.refunds.calls)

	stored := f.reload(t, b.ID)
	require.NotNil(t, stored.CancelledAt)
	assert.Equal(t, "changed my mind", *stored.CancellationReason)
	assert.True(t, stored.RefundedCents <= stored.PaidCents && stored.PaidCents <= stored.TotalPriceCents)
}

func TestCancel_LateClientPaysDoubledFee(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 72*time.Hour)
	f.pay(t, b.ID, 1000_00)

	// Move the window so the cancel lands 3h before start.
	require.NoError(t, f.db.Model(&Booking{}).Where("id = ?", b.ID).
		Updates(map[string]any{"starts_at": clock.Add(3 * time.Hour), "ends_at": clock.Add(4 * time.Hour)}).Error)

	res, err := f.svc.Cancel(context.Background(), b.ID, client, "emergency")
	require.NoError(t, err)
	assert.Equal(t, int64(400_00), res.Fee.FeeCents)
	assert.Equal(t, float64(40), res.Fee.Percent)
	assert.Equal(t, int64(600_00), res.Refund.AmountCents)
}

func TestCancel_ProviderLatePaysMultipliedFee(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 72*time.Hour)
	f.pay(t, b.ID, 1000_00)

	require.NoError(t, f.db.Model(&Booking{}).Where("id = ?", b.ID).
		Updates(map[string]any{"starts_at": clock.Add(3 * time.Hour), "ends_at": clock.Add(4 * time.Hour)}).Error)

	res, err := f.svc.Cancel(context.Background(), b.ID, provider(f), "double booked elsewhere")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelledByProvider, res.Booking.Status)
	assert.Equal(t, int64(600_00), res.Fee.FeeCents)
	assert.Equal(t, int64(400_00), res.Refund.AmountCents)

	var p providers.Profile
	require.NoError(t, f.db.First(&p, "id = ?", f.providerID).Error)
	assert.Equal(t, 1, p.CancelledBookingsCount)
}

func TestCancel_TooLateForClient(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 72*time.Hour)

	require.NoError(t, f.db.Model(&Booking{}).Where("id = ?", b.ID).
		Updates(map[string]any{"starts_at": clock.Add(time.Hour), "ends_at": clock.Add(2 * time.Hour)}).Error)

	_, err := f.svc.Cancel(context.Background(), b.ID, client, "too late")
	var tw *TimeWindowError
	require.ErrorAs(t, err, &tw)
	assert.Equal(t, clock.Add(-time.Hour), tw.Deadline)
}

func TestCancel_SecondAttemptFailsWithoutDuplicateRefund(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 48*time.Hour)
	f.pay(t, b.ID, 1000_00)

	_, err := f.svc.Cancel(context.Background(), b.ID, client, "first")
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), b.ID, client, "second")
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatusCancelledByClient, se.Current)
	assert.Equal(t, 1, f.refunds.calls, "no duplicate refund on repeated cancel")
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 48*time.Hour)
	f.pay(t, b.ID, 1000_00)
	_, err := f.svc.Confirm(context.Background(), b.ID, provider(f), ConfirmInput{})
	require.NoError(t, err)

	// Still before start.
	_, err = f.svc.Complete(context.Background(), b.ID, provider(f))
	var tw *TimeWindowError
	require.ErrorAs(t, err, &tw)

	// Past start a confirmed booking completes directly.
	require.NoError(t, f.db.Model(&Booking{}).Where("id = ?", b.ID).
		Updates(map[string]any{"starts_at": clock.Add(-2 * time.Hour), "ends_at": clock.Add(-time.Hour)}).Error)

	done, err := f.svc.Complete(context.Background(), b.ID, provider(f))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	// Terminal: a second completion fails.
	_, err = f.svc.Complete(context.Background(), b.ID, provider(f))
	var se *StateError
	assert.ErrorAs(t, err, &se)

	var p providers.Profile
	require.NoError(t, f.db.First(&p, "id = ?", f.providerID).Error)
	assert.Equal(t, 1, p.CompletedBookingsCount)
	assert.Equal(t, int64(1000_00), p.TotalEarnedCents)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 48*time.Hour)

	moved, err := f.svc.Reschedule(context.Background(), b.ID, client, clock.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, clock.Add(72*time.Hour), moved.StartsAt)
	assert.Equal(t, clock.Add(73*time.Hour), moved.EndsAt)
	assert.Equal(t, 1, moved.RescheduleCount)
	assert.Equal(t, StatusPending, moved.Status, "reschedule keeps the state")

	history, ok := moved.Metadata["reschedule_history"].([]any)
	require.True(t, ok)
	assert.Len(t, history, 1)

	_, err = f.svc.Reschedule(context.Background(), b.ID, client, clock.Add(96*time.Hour))
	require.NoError(t, err)

	// Client limit is two.
	_, err = f.svc.Reschedule(context.Background(), b.ID, client, clock.Add(100*time.Hour))
	var rl *RescheduleLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 2, rl.Limit)
}

func TestReschedule_ConflictAndHorizon(t *testing.T) {
	f := newFixture(t)

	first := f.create(t, 48*time.Hour)
	_, err := f.svc.Confirm(context.Background(), first.ID, provider(f), ConfirmInput{})
	require.NoError(t, err)

	second := f.create(t, 120*time.Hour)

	_, err = f.svc.Reschedule(context.Background(), second.ID, client, first.StartsAt.Add(15*time.Minute))
	var conflict *ScheduleConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = f.svc.Reschedule(context.Background(), second.ID, client, clock.AddDate(0, 0, 120))
	var tw *TimeWindowError
	assert.ErrorAs(t, err, &tw)
}
