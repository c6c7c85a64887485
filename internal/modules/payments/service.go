package payments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"velora.app/internal/modules/bookings"
	"velora.app/internal/modules/ledger"
	"velora.app/internal/shared/txn"
)

// Service records incoming charges. Gateway checkout itself happens
// upstream; by the time this runs the money has moved and the row plus
// its ledger entry must land atomically with the booking's paid amount.
type Service struct {
	db     *gorm.DB
	ledger *ledger.Service
	log    *slog.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, lg *ledger.Service, log *slog.Logger) *Service {
	return &Service{db: db, ledger: lg, log: log, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// commissionPct is the platform's cut of a service charge.
const commissionPct = 10

type RecordPaymentInput struct {
	UserID      string
	BookingID   *string
	Category    Category
	AmountCents int64
	Currency    string
	Gateway     string
	GatewayRef  *string
}

// RecordPayment persists a settled charge: the payment row, its ledger
// entry and the booking's paid amount, in one transaction.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (Payment, error) {
	if in.AmountCents <= 0 {
		return Payment{}, ErrInvalidAmount
	}
	now := s.now()

	p := Payment{
		ID:            uuid.NewString(),
		PaymentNumber: newPaymentNumber(now),
		UserID:        in.UserID,
		BookingID:     in.BookingID,
		Category:      in.Category,
		Status:        StatusCompleted,
		AmountCents:   in.AmountCents,
		Currency:      in.Currency,
		Gateway:       in.Gateway,
		GatewayRef:    in.GatewayRef,
		ProcessedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := txn.WithRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&p).Error; err != nil {
			return err
		}

		entry, err := s.ledger.AppendInTx(ctx, tx, ledger.AppendInput{
			UserID:               in.UserID,
			BookingID:            in.BookingID,
			Type:                 ledger.TypePayment,
			Direction:            ledger.DirectionIn,
			Status:               ledger.StatusSuccess,
			AmountCents:          in.AmountCents,
			Currency:             in.Currency,
			Description:          "Payment " + p.PaymentNumber,
			Gateway:              &p.Gateway,
			GatewayTransactionID: in.GatewayRef,
			Metadata:             map[string]any{"payment_id": p.ID, "category": string(in.Category)},
			Now:                  now,
		})
		if err != nil {
			return err
		}

		if in.BookingID != nil {
			var b bookings.Booking
			if err := tx.WithContext(ctx).Select("id", "provider_id").
				First(&b, "id = ?", *in.BookingID).Error; err != nil {
				return err
			}
			if err := tx.WithContext(ctx).Model(&bookings.Booking{}).
				Where("id = ?", b.ID).
				Updates(map[string]any{
					"paid_cents": gorm.Expr("paid_cents + ?", in.AmountCents),
					"updated_at": now,
				}).Error; err != nil {
				return err
			}

			if in.Category == CategoryServicePayment {
				cut := in.AmountCents * commissionPct / 100
				if cut > 0 {
					if _, err := s.ledger.Commission(ctx, tx, entry, b.ProviderID, cut, now); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

// HandleRefundWebhook finalizes async gateway refunds. Succeeded
// refunds that are still processing get marked; failed ones are flagged
// for manual settlement.
func (e *RefundEngine) HandleRefundWebhook(ctx context.Context, headers http.Header, body []byte) error {
	ev, err := e.gateway.VerifyAndParseWebhook(headers, body)
	if err != nil {
		return err
	}
	if ev.RefundRef == "" {
		return nil // not a refund event
	}
	now := e.now()

	var entry ledger.Transaction
	err = e.db.WithContext(ctx).
		First(&entry, "gateway_transaction_id = ? AND type = ?", ev.RefundRef, ledger.TypeRefund).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			e.log.Warn("webhook for unknown refund", "refund_ref", ev.RefundRef)
			return nil
		}
		return err
	}

	switch ev.Type {
	case "refund.succeeded":
		if _, err := e.ledger.MarkSuccess(ctx, entry.ID, now); err != nil && !errors.Is(err, ledger.ErrNotTransitional) {
			return err
		}
	case "refund.failed":
		md := entry.Metadata
		if md == nil {
			md = datatypes.JSONMap{}
		}
		md["manual_settlement"] = true
		md["gateway_error"] = "gateway reported refund failure"
		if err := e.db.WithContext(ctx).Model(&ledger.Transaction{}).
			Where("id = ?", entry.ID).
			Updates(map[string]any{"metadata": md, "updated_at": now}).Error; err != nil {
			return err
		}
	}
	return nil
}
