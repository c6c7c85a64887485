package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"velora.app/internal/modules/bookings"
	"velora.app/internal/modules/ledger"
	"velora.app/internal/modules/providers"
	"velora.app/internal/notifier"
	"velora.app/internal/shared/txn"
)

// RefundKind distinguishes the four entry points sharing the pipeline.
type RefundKind string

const (
	KindPartial RefundKind = "partial"
	KindFull    RefundKind = "full"
	KindAuto    RefundKind = "auto"
	KindForced  RefundKind = "forced"
)

var refundDeadlineDays = map[Category]int{
	CategoryServicePayment: 14,
	CategoryDeposit:        7,
	CategorySubscription:   30,
}

const (
	dailyRefundCountLimit     = 5
	monthlyRefundCeilingCents = 500_000_00
)

type RefundEngine struct {
	db      *gorm.DB
	ledger  *ledger.Service
	gateway Gateway
	stats   *providers.StatsUpdater
	notify  notifier.Notifier
	log     *slog.Logger

	now func() time.Time
}

func NewRefundEngine(db *gorm.DB, lg *ledger.Service, gw Gateway, stats *providers.StatsUpdater, notify notifier.Notifier, log *slog.Logger) *RefundEngine {
	return &RefundEngine{db: db, ledger: lg, gateway: gw, stats: stats, notify: notify, log: log, now: time.Now}
}

func (e *RefundEngine) WithClock(now func() time.Time) *RefundEngine {
	e.now = now
	return e
}

type Result struct {
	Transaction      ledger.Transaction
	Payment          Payment
	ReasonCategory   ReasonCategory
	Priority         Priority
	ManualSettlement bool
}

// RefundPartial refunds an explicit amount below the remaining
// headroom.
func (e *RefundEngine) RefundPartial(ctx context.Context, paymentID string, amountCents int64, reason string, actorID string) (Result, error) {
	return e.refund(ctx, refundInput{PaymentID: paymentID, AmountCents: amountCents, Reason: reason, Kind: KindPartial, ActorID: actorID})
}

// RefundFull refunds whatever remains on the payment.
func (e *RefundEngine) RefundFull(ctx context.Context, paymentID string, reason string, actorID string) (Result, error) {
	return e.refund(ctx, refundInput{PaymentID: paymentID, Reason: reason, Kind: KindFull, ActorID: actorID})
}

// RefundAuto is the system-triggered full refund.
func (e *RefundEngine) RefundAuto(ctx context.Context, paymentID string) (Result, error) {
	return e.refund(ctx, refundInput{PaymentID: paymentID, Reason: "automatic refund", Kind: KindAuto, ActorID: "system"})
}

// RefundForce is admin-authored. It skips the category business rule
// but never the numeric and limit checks.
func (e *RefundEngine) RefundForce(ctx context.Context, paymentID string, amountCents int64, reason string, adminID string) (Result, error) {
	return e.refund(ctx, refundInput{PaymentID: paymentID, AmountCents: amountCents, Reason: reason, Kind: KindForced, ActorID: adminID})
}

type refundInput struct {
	PaymentID   string
	AmountCents int64 // 0 => full remaining
	Reason      string
	Kind        RefundKind
	ActorID     string
}

func (e *RefundEngine) refund(ctx context.Context, in refundInput) (Result, error) {
	now := e.now()
	var out Result

	// Phase 1: all domain writes in one transaction.
	err := txn.WithRetry(ctx, e.db, 3, func(tx *gorm.DB) error {
		out = Result{}

		var p Payment
		if err := txn.LockForUpdate(tx.WithContext(ctx)).First(&p, "id = ?", in.PaymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}

		amount := in.AmountCents
		if amount == 0 {
			amount = p.RemainingCents()
		}

		if err := e.validate(ctx, tx, p, amount, in.Kind, now); err != nil {
			return err
		}

		res, err := e.applyRefund(ctx, tx, &p, amount, in, now)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	// Phase 2+3: gateway settlement, after the domain commit.
	manual, err := e.SettleWithGateway(ctx, out.Transaction.ID, now)
	if err != nil {
		e.log.Error("refund gateway settlement failed", "transaction_id", out.Transaction.ID, "err", err)
	}
	out.ManualSettlement = manual

	e.afterRefund(ctx, out, now)
	return out, nil
}

// validate runs the full check sequence. Everything here happens
// before any state change.
func (e *RefundEngine) validate(ctx context.Context, tx *gorm.DB, p Payment, amountCents int64, kind RefundKind, now time.Time) error {
	// State first: a drained payment asked for its full remaining
	// resolves to amount 0, and the caller should see the state, not a
	// bad-amount complaint.
	if !p.Status.Refundable() {
		return &NotRefundableError{PaymentID: p.ID, Current: p.Status}
	}

	if amountCents <= 0 {
		return ErrInvalidAmount
	}
	if amountCents > p.RemainingCents() {
		return &RemainingExceededError{PaymentID: p.ID, RequestedCents: amountCents, RemainingCents: p.RemainingCents()}
	}

	processedAt := p.CreatedAt
	if p.ProcessedAt != nil {
		processedAt = *p.ProcessedAt
	}
	days, ok := refundDeadlineDays[p.Category]
	if !ok {
		days = refundDeadlineDays[CategoryServicePayment]
	}
	deadline := processedAt.AddDate(0, 0, days)
	if now.After(deadline) {
		return &DeadlineError{PaymentID: p.ID, Deadline: deadline}
	}

	if kind != KindForced {
		if err := e.categoryRule(ctx, tx, p); err != nil {
			return err
		}
	}

	count, err := e.ledger.RefundsOnDay(ctx, tx, p.UserID, now)
	if err != nil {
		return err
	}
	if count >= dailyRefundCountLimit {
		return &RefundLimitError{UserID: p.UserID, Scope: RefundLimitDailyCount, Limit: dailyRefundCountLimit, Current: count}
	}

	monthCents, err := e.ledger.RefundedInMonth(ctx, tx, p.UserID, now)
	if err != nil {
		return err
	}
	if monthCents+amountCents > monthlyRefundCeilingCents {
		return &RefundLimitError{UserID: p.UserID, Scope: RefundLimitMonthlyAmount, Limit: monthlyRefundCeilingCents, Current: monthCents}
	}
	return nil
}

// categoryRule: a service payment whose booking was delivered (or is
// being delivered) is not refundable through the normal entry points.
func (e *RefundEngine) categoryRule(ctx context.Context, tx *gorm.DB, p Payment) error {
	if p.Category != CategoryServicePayment || p.BookingID == nil {
		return nil
	}
	var b bookings.Booking
	err := tx.WithContext(ctx).Select("id", "status").First(&b, "id = ?", *p.BookingID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if b.Status == bookings.StatusCompleted || b.Status == bookings.StatusInProgress {
		return &CategoryRuleError{PaymentID: p.ID, Category: p.Category, Rule: "delivered_service_not_refundable"}
	}
	return nil
}

// applyRefund lands every domain write of a refund: the ledger entry,
// the payment update and the linked-booking propagation.
func (e *RefundEngine) applyRefund(ctx context.Context, tx *gorm.DB, p *Payment, amountCents int64, in refundInput, now time.Time) (Result, error) {
	category := ClassifyReason(in.Reason)

	var vip bool
	if err := tx.WithContext(ctx).Model(&providers.Profile{}).
		Select("COALESCE(MAX(vip), 0)").
		Where("user_id = ?", p.UserID).
		Scan(&vip).Error; err != nil {
		return Result{}, err
	}
	priority := ClassifyPriority(amountCents, vip)

	entry, err := e.ledger.AppendInTx(ctx, tx, ledger.AppendInput{
		UserID:      p.UserID,
		BookingID:   p.BookingID,
		Type:        ledger.TypeRefund,
		Direction:   ledger.DirectionOut,
		Status:      ledger.StatusProcessing,
		AmountCents: amountCents,
		Currency:    p.Currency,
		Description: "Refund for " + p.PaymentNumber,
		Gateway:     &p.Gateway,
		Metadata: map[string]any{
			"payment_id":          p.ID,
			"kind":                string(in.Kind),
			"reason":              in.Reason,
			"reason_category":     string(category),
			"priority":            string(priority),
			"processing_estimate": ProcessingEstimate(priority),
			"actor_id":            in.ActorID,
		},
		Now: now,
	})
	if err != nil {
		return Result{}, err
	}

	newRefunded := p.RefundedCents + amountCents
	newStatus := StatusPartiallyRefunded
	if newRefunded >= p.AmountCents {
		newRefunded = p.AmountCents
		newStatus = StatusRefunded
	}
	res := tx.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", p.ID, p.Status). // optimistic guard
		Updates(map[string]any{
			"refunded_cents": newRefunded,
			"status":         newStatus,
			"updated_at":     now,
		})
	if res.Error != nil {
		return Result{}, res.Error
	}
	if res.RowsAffected != 1 {
		return Result{}, &NotRefundableError{PaymentID: p.ID, Current: p.Status}
	}
	p.RefundedCents = newRefunded
	p.Status = newStatus
	p.UpdatedAt = now

	if p.BookingID != nil {
		var b bookings.Booking
		err := tx.WithContext(ctx).First(&b, "id = ?", *p.BookingID).Error
		if err == nil {
			md := b.Metadata
			if md == nil {
				md = datatypes.JSONMap{}
			}
			md["last_refund_transaction"] = entry.TransactionNumber
			md["refund_reason_category"] = string(category)
			if err := tx.WithContext(ctx).Model(&bookings.Booking{}).
				Where("id = ?", b.ID).
				Updates(map[string]any{
					"refunded_cents": gorm.Expr("refunded_cents + ?", amountCents),
					"metadata":       md,
					"updated_at":     now,
				}).Error; err != nil {
				return Result{}, err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, err
		}
	}

	return Result{Transaction: entry, Payment: *p, ReasonCategory: category, Priority: priority}, nil
}

// SettleWithGateway runs the external refund call for a processing
// ledger entry and finalizes it. Never fails the domain operation: a
// gateway failure marks the entry for manual settlement and the money
// movement stays recorded.
func (e *RefundEngine) SettleWithGateway(ctx context.Context, transactionID string, now time.Time) (bool, error) {
	var entry ledger.Transaction
	if err := e.db.WithContext(ctx).First(&entry, "id = ?", transactionID).Error; err != nil {
		return false, err
	}
	if entry.Status != ledger.StatusProcessing && entry.Status != ledger.StatusPending {
		return false, nil // already finalized
	}

	paymentID, _ := entry.Metadata["payment_id"].(string)
	reason, _ := entry.Metadata["reason"].(string)

	gatewayRef := ""
	if paymentID != "" {
		var p Payment
		if err := e.db.WithContext(ctx).First(&p, "id = ?", paymentID).Error; err == nil && p.GatewayRef != nil {
			gatewayRef = *p.GatewayRef
		}
	}

	resp, gerr := e.gateway.Refund(ctx, GatewayRefundRequest{
		PaymentID:      paymentID,
		PaymentRef:     gatewayRef,
		AmountCents:    entry.AmountCents,
		Currency:       entry.Currency,
		IdempotencyKey: entry.TransactionNumber,
		Reason:         reason,
	})

	manual := gerr != nil || !resp.Succeeded

	if _, err := e.ledger.MarkSuccess(ctx, entry.ID, now); err != nil {
		return manual, err
	}

	updates := map[string]any{"updated_at": now}
	if resp.GatewayTransactionID != "" {
		updates["gateway_transaction_id"] = resp.GatewayTransactionID
	}
	if manual {
		md := entry.Metadata
		if md == nil {
			md = datatypes.JSONMap{}
		}
		md["manual_settlement"] = true
		if gerr != nil {
			md["gateway_error"] = gerr.Error()
		}
		updates["metadata"] = md
	}
	if len(updates) > 1 {
		if err := e.db.WithContext(ctx).Model(&ledger.Transaction{}).
			Where("id = ?", entry.ID).Updates(updates).Error; err != nil {
			return manual, err
		}
	}

	if manual {
		e.publish(ctx, notifier.Event{
			Type: notifier.EventRefundManual, UserID: entry.UserID, OccurredAt: now,
			Payload: map[string]any{"transaction_number": entry.TransactionNumber, "amount_cents": entry.AmountCents},
		})
	}
	return manual, gerr
}

// RefundForCancellation is the booking lifecycle's entry point. It runs
// inside the cancel transaction so the ledger entries and payment
// updates commit together with the status change. A booking paid
// through several payments (deposit plus service payment) refunds
// newest first, each slice validated against its own payment's
// remaining.
func (e *RefundEngine) RefundForCancellation(ctx context.Context, tx *gorm.DB, b *bookings.Booking, amountCents int64, reason string, now time.Time) (bookings.RefundOutcome, error) {
	var settled []Payment
	err := tx.WithContext(ctx).
		Order("updated_at DESC").
		Find(&settled, "booking_id = ? AND status IN ?", b.ID, []Status{StatusCompleted, StatusPartiallyRefunded}).Error
	if err != nil {
		return bookings.RefundOutcome{}, err
	}

	if len(settled) == 0 {
		// No settled payment row: record the movement against the
		// client directly so the money trail stays complete.
		entry, aerr := e.ledger.AppendInTx(ctx, tx, ledger.AppendInput{
			UserID:      b.ClientID,
			BookingID:   &b.ID,
			Type:        ledger.TypeRefund,
			Direction:   ledger.DirectionOut,
			Status:      ledger.StatusProcessing,
			AmountCents: amountCents,
			Currency:    b.Currency,
			Description: "Cancellation refund for " + b.BookingNumber,
			Metadata: map[string]any{
				"kind":            string(KindAuto),
				"reason":          reason,
				"reason_category": string(ReasonCancellation),
			},
			Now: now,
		})
		if aerr != nil {
			return bookings.RefundOutcome{}, aerr
		}
		if uerr := tx.WithContext(ctx).Model(&bookings.Booking{}).
			Where("id = ?", b.ID).
			Update("refunded_cents", gorm.Expr("refunded_cents + ?", amountCents)).Error; uerr != nil {
			return bookings.RefundOutcome{}, uerr
		}
		return bookings.RefundOutcome{TransactionIDs: []string{entry.ID}, AmountCents: amountCents}, nil
	}

	var out bookings.RefundOutcome
	left := amountCents
	for i := range settled {
		if left <= 0 {
			break
		}
		p := settled[i]
		slice := left
		if r := p.RemainingCents(); slice > r {
			slice = r
		}
		if slice <= 0 {
			continue
		}
		if err := e.validate(ctx, tx, p, slice, KindAuto, now); err != nil {
			return bookings.RefundOutcome{}, err
		}
		res, err := e.applyRefund(ctx, tx, &p, slice, refundInput{
			PaymentID: p.ID, AmountCents: slice, Reason: reason, Kind: KindAuto, ActorID: "system",
		}, now)
		if err != nil {
			return bookings.RefundOutcome{}, err
		}
		out.TransactionIDs = append(out.TransactionIDs, res.Transaction.ID)
		out.AmountCents += slice
		left -= slice
	}
	if left > 0 {
		return bookings.RefundOutcome{}, &RemainingExceededError{
			PaymentID:      settled[0].ID,
			RequestedCents: amountCents,
			RemainingCents: amountCents - left,
		}
	}
	return out, nil
}

// afterRefund runs the post-commit notifications and counters.
func (e *RefundEngine) afterRefund(ctx context.Context, res Result, now time.Time) {
	e.publish(ctx, notifier.Event{
		Type: notifier.EventRefundProcessed, UserID: res.Payment.UserID, OccurredAt: now,
		Payload: map[string]any{
			"transaction_number": res.Transaction.TransactionNumber,
			"amount_cents":       res.Transaction.AmountCents,
			"priority":           string(res.Priority),
		},
	})

	if res.Payment.BookingID != nil {
		var b bookings.Booking
		if err := e.db.WithContext(ctx).Select("id", "provider_id").First(&b, "id = ?", *res.Payment.BookingID).Error; err == nil {
			if err := e.stats.RefundProcessed(ctx, b.ProviderID, res.Transaction.AmountCents, now); err != nil {
				e.log.Error("provider stats update failed", "booking_id", b.ID, "err", err)
			}
		}
	}
}

func (e *RefundEngine) publish(ctx context.Context, ev notifier.Event) {
	if e.notify == nil {
		return
	}
	if err := e.notify.Publish(ctx, ev); err != nil {
		e.log.Error("notification publish failed", "event", ev.Type, "err", err)
	}
}
