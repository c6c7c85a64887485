package catalog

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrServiceUnavailable = errors.New("service unavailable")
var ErrCurrencyMismatch = errors.New("selected services use different currencies")

type Resolver struct{ db *gorm.DB }

func NewResolver(db *gorm.DB) *Resolver { return &Resolver{db: db} }

type Selection struct {
	ServiceID       string
	Quantity        int
	DurationMinutes int // 0 => catalog duration
}

type ResolvedItem struct {
	Service         Service
	Quantity        int
	UnitPriceCents  int64
	TotalCents      int64
	DurationMinutes int
}

type Resolved struct {
	Items           []ResolvedItem
	TotalCents      int64
	Currency        string
	DurationMinutes int
	TypeName        string
}

// Resolve turns service selections into priced line items. The first
// selection's service type drives the booking-type rules.
func (r *Resolver) Resolve(ctx context.Context, selections []Selection) (Resolved, error) {
	if len(selections) == 0 {
		return Resolved{}, ErrServiceUnavailable
	}

	out := Resolved{}
	for _, sel := range selections {
		qty := sel.Quantity
		if qty < 1 {
			qty = 1
		}

		var svc Service
		err := r.db.WithContext(ctx).First(&svc, "id = ? AND active = ?", sel.ServiceID, true).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Resolved{}, ErrServiceUnavailable
			}
			return Resolved{}, err
		}

		if out.Currency == "" {
			out.Currency = svc.Currency
			out.TypeName = svc.TypeName
		} else if out.Currency != svc.Currency {
			return Resolved{}, ErrCurrencyMismatch
		}

		dur := sel.DurationMinutes
		if dur <= 0 {
			dur = svc.DurationMinutes
		}

		item := ResolvedItem{
			Service:         svc,
			Quantity:        qty,
			UnitPriceCents:  svc.PriceCents,
			TotalCents:      svc.PriceCents * int64(qty),
			DurationMinutes: dur * qty,
		}
		out.Items = append(out.Items, item)
		out.TotalCents += item.TotalCents
		out.DurationMinutes += item.DurationMinutes
	}

	return out, nil
}
