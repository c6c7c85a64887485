package payments

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

	"velora.app/internal/modules/bookings"
	"velora.app/internal/modules/ledger"
	"velora.app/internal/modules/providers"
	"velora.app/internal/notifier"
)

var clock = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "open sqlite")

	schema := []string{
		`CREATE TABLE payments (
			id TEXT PRIMARY KEY,
			payment_number TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			booking_id TEXT,
			category TEXT NOT NULL,
			status TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			refunded_cents INTEGER NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			gateway TEXT NOT NULL,
			gateway_ref TEXT,
			metadata TEXT,
			processed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE transactions (
			id TEXT PRIMARY KEY,
			transaction_number TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			booking_id TEXT,
			parent_id TEXT,
			type TEXT NOT NULL,
			direction TEXT NOT NULL,
			status TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			currency TEXT NOT NULL,
			balance_before_cents INTEGER NOT NULL,
			balance_after_cents INTEGER,
			description TEXT,
			gateway TEXT,
			gateway_transaction_id TEXT,
			metadata TEXT,
			processed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE ledger_balance_anchors (
			user_id TEXT NOT NULL,
			currency TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, currency)
		);`,
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

type fixture struct {
	db      *gorm.DB
	ledger  *ledger.Service
	gateway *MockGateway
	events  *notifier.Recorder
	engine  *RefundEngine

	userID     string
	providerID string
	bookingID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	lg := ledger.NewService(db)
	gw := NewMockGateway()
	events := &notifier.Recorder{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		db: db, ledger: lg, gateway: gw, events: events,
		userID:     "client-1",
		providerID: uuid.NewString(),
		bookingID:  uuid.NewString(),
	}
	f.engine = NewRefundEngine(db, lg, gw, providers.NewStatsUpdater(db), events, log).
		WithClock(func() time.Time { return clock })

	require.NoError(t, db.Create(&providers.Profile{
		ID: f.providerID, UserID: uuid.NewString(), DisplayName: "Anna",
		Active: true, CreatedAt: clock, UpdatedAt: clock,
	}).Error)

	require.NoError(t, db.Create(&bookings.Booking{
		ID: f.bookingID, BookingNumber: "BK20250610-test01",
		ProviderID: f.providerID, ClientID: f.userID,
		StartsAt: clock.Add(48 * time.Hour), EndsAt: clock.Add(49 * time.Hour),
		DurationMinutes: 60, Status: bookings.StatusConfirmed,
		TotalPriceCents: 1000_00, PaidCents: 1000_00, Currency: "EUR",
		CreatedAt: clock, UpdatedAt: clock,
	}).Error)

	return f
}

// payment seeds a settled charge against the fixture booking.
func (f *fixture) payment(t *testing.T, category Category, amountCents int64, processedAgo time.Duration) Payment {
	t.Helper()
	processedAt := clock.Add(-processedAgo)
	p := Payment{
		ID:            uuid.NewString(),
		PaymentNumber: newPaymentNumber(processedAt),
		UserID:        f.userID,
		BookingID:     &f.bookingID,
		Category:      category,
		Status:        StatusCompleted,
		AmountCents:   amountCents,
		Currency:      "EUR",
		Gateway:       "mock",
		ProcessedAt:   &processedAt,
		CreatedAt:     processedAt,
		UpdatedAt:     processedAt,
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) setBookingStatus(t *testing.T, status bookings.Status) {
	t.Helper()
	require.NoError(t, f.db.Model(&bookings.Booking{}).
		Where("id = ?", f.bookingID).Update("status", status).Error)
}

func TestRefundPartial(t *testing.T) {
	f := newFixture(t)
	p := f.payment(t, CategoryServicePayment, 1000_00, 24*time.Hour)

	res, err := f.engine.RefundPartial(context.Background(), p.ID, 300_00, "provider was late", "admin-1")
	require.NoError(t, err)

	assert.Equal(t, StatusPartiallyRefunded, res.Payment.Status)
	assert.Equal(t, int64(300_00), res.Payment.RefundedCents)
	assert.Equal(t, ReasonTimingIssue, res.ReasonCategory)
	assert.Equal(t, PriorityNormal, res.Priority)
	assert.False(t, res.ManualSettlement)

	var entry ledger.Transaction
	require.NoError(t, f.db.First(&entry, "id = ?", res.Transaction.ID).Error)
	assert.Equal(t, ledger.StatusSuccess, entry.Status)
	assert.Equal(t, ledger.DirectionOut, entry.Direction)
	require.NotNil(t, entry.GatewayTransactionID)
	assert.Contains(t, *entry.GatewayTransactionID, "mock_")

	var b bookings.Booking
	require.NoError(t, f.db.First(&b, "id = ?", f.bookingID).Error)
	assert.Equal(t, int64(300_00), b.RefundedCents)
	assert.True(t, b.RefundedCents <= b.PaidCents && b.PaidCents <= b.TotalPriceCents)

	assert.Len(t, f.events.ByType(notifier.EventRefundProcessed), 1)
	require.Len(t, f.gateway.Calls(), 1)
	assert.Equal(t, int64(300_00), f.gateway.Calls()[0].AmountCents)
}

func TestRefundFull_DrainsPayment(t *testing.T) {
	f := newFixture(t)
	p := f.payment(t, CategoryServicePayment, 1000_00, 24*time.Hour)

	res, err := f.engine.RefundFull(context.Background(), p.ID, "booking cancelled by provider", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, res.Payment.Status)
	assert.Zero(t, res.Payment.RemainingCents())
	assert.Equal(t, ReasonCancellation, res.ReasonCategory)
	assert.Equal(t, int64(1000_00), res.Transaction.AmountCents)

	// Already drained: nothing left to refund.
	_, err = f.engine.RefundFull(context.Background(), p.ID, "again", "admin-1")
	var nr *NotRefundableError
	require.ErrorAs(t, err, &nr)
	assert.Equal(t, StatusRefunded, nr.Current)
}

func TestRefund_AmountChecks(t *testing.T) {
	f := newFixture(t)
	p := f.payment(t, CategoryServicePayment, 1000_00, 24*time.Hour)

	_, err := f.engine.RefundPartial(context.Background(), p.ID, -5, "negative", "admin-1")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.engine.RefundPartial(context.Background(), p.ID, 1500_00, "too much", "admin-1")
	var re *RemainingExceededError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, int64(1000_00), re.RemainingCents)
}

func TestRefund_DeadlineByCategory(t *testing.T) {
	f := newFixture(t)

	servicePay := f.payment(t, CategoryServicePayment, 100_00, 15*24*time.Hour)
	_, err := f.engine.RefundFull(context.Background(), servicePay.ID, "too old", "admin-1")
	var de *DeadlineError
	require.ErrorAs(t, err, &de, "service payments stop being refundable after 14 days")

	deposit := f.payment(t, CategoryDeposit, 100_00, 8*24*time.Hour)
	_, err = f.engine.RefundFull(context.Background(), deposit.ID, "too old", "admin-1")
	assert.ErrorAs(t, err, &de, "deposits stop after 7 days")

	subscription := f.payment(t, CategorySubscription, 100_00, 20*24*time.Hour)
	_, err = f.engine.RefundFull(context.Background(), subscription.ID, "still fine", "admin-1")
	assert.NoError(t, err, "subscriptions have 30 days")
}

func TestRefund_DeliveredServiceRule(t *testing.T) {
	f := newFixture(t)
	f.setBookingStatus(t, bookings.StatusCompleted)
	p := f.payment(t, CategoryServicePayment, 1000_00, 24*time.Hour)

	_, err := f.engine.RefundFull(context.Background(), p.ID, "want money back", "admin-1")
	var cr *CategoryRuleError
	require.ErrorAs(t, err, &cr)

	// Forced refunds skip the category rule but keep every numeric check.
	res, err := f.engine.RefundForce(context.Background(), p.ID, 1000_00, "goodwill", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, res.Payment.Status)

	_, err = f.engine.RefundForce(context.Background(), p.ID, 100_00, "once more", "admin-1")
	var nr *NotRefundableError
	assert.ErrorAs(t, err, &nr, "forced refunds still respect the remaining amount")
}

func TestRefund_DailyCountLimit(t *testing.T) {
	f := newFixture(t)
	p := f.payment(t, CategoryServicePayment, 1000_00, 24*time.Hour)

	for i := 0; i < dailyRefundCountLimit; i++ {
		require.NoError(t, f.db.Create(&ledger.Transaction{
			ID:                uuid.NewString(),
			TransactionNumber: uuid.NewString(),
			UserID:            f.userID,
			Type:              ledger.TypeRefund,
			Direction:         ledger.DirectionOut,
			Status:            ledger.StatusSuccess,
			AmountCents:       10_00,
			Currency:          "EUR",
			CreatedAt:         clock.Add(-time.Duration(i) * time.Minute),
			UpdatedAt:         clock,
		}).Error)
	}

	_, err := f.engine.RefundPartial(context.Background(), p.ID, 10_00, "sixth today", "admin-1")
	var le *RefundLimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, RefundLimitDailyCount, le.Scope)
	assert.Equal(t, int64(dailyRefundCountLimit), le.Current)
}

func TestRefund_MonthlyAmountCeiling(t *testing.T) {
	f := newFixture(t)
	p := f.payment(t, CategoryServicePayment, 1000_00, 24*time.Hour)

	// One big successful refund earlier in the month.
	require.NoError(t, f.db.Create(&ledger.Transaction{
		ID:                uuid.NewString(),
		TransactionNumber: uuid.NewString(),
		UserID:            f.userID,
		Type:              ledger.TypeRefund,
		Direction:         ledger.DirectionOut,
		Status:            ledger.StatusSuccess,
		AmountCents:       monthlyRefundCeilingCents - 100_00,
		Currency:          "EUR",
		CreatedAt:         clock.AddDate(0, 0, -5),
		UpdatedAt:         clock.AddDate(0, 0, -5),
	}).Error)

	_, err := f.engine.RefundPartial(context.Background(), p.ID, 200_00, "over ceiling", "admin-1")
	var le *RefundLimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, RefundLimitMonthlyAmount, le.Scope)

	_, err = f.engine.RefundPartial(context.Background(), p.ID, 50_00, "under ceiling", "admin-1")
	assert.NoError(t, err)
}

func TestRefund_GatewayFailureFlagsManualSettlement(t *testing.T) {
	f := newFixture(t)
	p := f.payment(t, CategoryServicePayment, 1000_00, 24*time.Hour)
	f.gateway.FailNext(true)

	res, err := f.engine.RefundFull(context.Background(), p.ID, "gateway down", "admin-1")
	require.NoError(t, err, "a gateway outage never fails the domain operation")
	assert.True(t, res.ManualSettlement)

	// Domain state is committed and flagged.
	var stored Payment
	require.NoError(t, f.db.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, StatusRefunded, stored.Status)

	var entry ledger.Transaction
	require.NoError(t, f.db.First(&entry, "id = ?", res.Transaction.ID).Error)
	assert.Equal(t, ledger.StatusSuccess, entry.Status)
	assert.Equal(t, true, entry.Metadata["manual_settlement"])

	assert.Len(t, f.events.ByType(notifier.EventRefundManual), 1)
}

func TestRefund_VIPGetsHighPriority(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&providers.Profile{
		ID: uuid.NewString(), UserID: f.userID, DisplayName: "VIP client",
		Active: true, VIP: true, CreatedAt: clock, UpdatedAt: clock,
	}).Error)
	p := f.payment(t, CategoryServicePayment, 1000_00, 24*time.Hour)

	res, err := f.engine.RefundPartial(context.Background(), p.ID, 50_00, "small but vip", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, res.Priority)
}

func TestRefundForCancellation_SpreadsAcrossPayments(t *testing.T) {
	f := newFixture(t)
	deposit := f.payment(t, CategoryDeposit, 300_00, 48*time.Hour)
	servicePay := f.payment(t, CategoryServicePayment, 700_00, 24*time.Hour)

	var b bookings.Booking
	require.NoError(t, f.db.First(&b, "id = ?", f.bookingID).Error)

	var out bookings.RefundOutcome
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = f.engine.RefundForCancellation(context.Background(), tx, &b, 1000_00, "booking cancelled", clock)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000_00), out.AmountCents)
	require.Len(t, out.TransactionIDs, 2)

	// Newest payment drains first, then the deposit.
	var first, second ledger.Transaction
	require.NoError(t, f.db.First(&first, "id = ?", out.TransactionIDs[0]).Error)
	require.NoError(t, f.db.First(&second, "id = ?", out.TransactionIDs[1]).Error)
	assert.Equal(t, int64(700_00), first.AmountCents)
	assert.Equal(t, int64(300_00), second.AmountCents)

	for _, id := range []string{deposit.ID, servicePay.ID} {
		var p Payment
		require.NoError(t, f.db.First(&p, "id = ?", id).Error)
		assert.Equal(t, StatusRefunded, p.Status)
		assert.Zero(t, p.RemainingCents())
	}

	require.NoError(t, f.db.First(&b, "id = ?", f.bookingID).Error)
	assert.Equal(t, int64(1000_00), b.RefundedCents)
}

func TestRefundForCancellation_ExceedsSettledTotal(t *testing.T) {
	f := newFixture(t)
	f.payment(t, CategoryDeposit, 300_00, 48*time.Hour)
	f.payment(t, CategoryServicePayment, 700_00, 24*time.Hour)

	var b bookings.Booking
	require.NoError(t, f.db.First(&b, "id = ?", f.bookingID).Error)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.engine.RefundForCancellation(context.Background(), tx, &b, 1100_00, "booking cancelled", clock)
		return err
	})
	var re *RemainingExceededError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, int64(1000_00), re.RemainingCents)
}
