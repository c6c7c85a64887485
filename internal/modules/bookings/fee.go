package bookings

import (
	"math"
	"time"
)

const (
	freeCancellationHours = 24.0
	lateCancellationHours = 4.0
	providerFeeMultiplier = 1.5
	defaultBaseFeePct     = 20.0
)

// FeeBreakdown is the full fee computation result; it is recorded into
// the cancellation metadata so the charge can be audited later.
type FeeBreakdown struct {
	FeeCents         int64
	Percent          float64
	HoursBeforeStart float64
}

// CancellationFee computes the penalty withheld when a reservation is
// cancelled. Deterministic and side-effect free: identical inputs give
// identical output, with now injected rather than read from a clock.
//
// Rules, applied in order:
//   - 24h or more before start: free.
//   - otherwise the base percent applies (per service type, default 20).
//   - under 4h the percent doubles, capped at 100.
//   - a provider-side cancellation multiplies the percent by 1.5,
//     capped at 100.
//
// The resulting fee never exceeds the amount actually paid.
func CancellationFee(totalPriceCents, paidCents int64, baseFeePct float64, startsAt time.Time, role ActorRole, now time.Time) FeeBreakdown {
	hours := startsAt.Sub(now).Hours()
	if hours >= freeCancellationHours {
		return FeeBreakdown{HoursBeforeStart: hours}
	}

	pct := baseFeePct
	if pct <= 0 {
		pct = defaultBaseFeePct
	}
	if hours < lateCancellationHours {
		pct = math.Min(pct*2, 100)
	}
	if role == RoleProvider {
		pct = math.Min(pct*providerFeeMultiplier, 100)
	}

	fee := int64(math.Round(float64(totalPriceCents) * pct / 100))
	if fee > paidCents {
		fee = paidCents
	}
	return FeeBreakdown{FeeCents: fee, Percent: pct, HoursBeforeStart: hours}
}
