package bookings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCancellationFee(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		total       int64
		paid        int64
		basePct     float64
		startsIn    time.Duration
		role        ActorRole
		wantFee     int64
		wantPercent float64
	}{
		{
			name:  "free when a day or more ahead",
			total: 1000_00, paid: 1000_00, basePct: 20,
			startsIn: 48 * time.Hour, role: RoleClient,
			wantFee: 0, wantPercent: 0,
		},
		{
			name:  "exactly 24h is still free",
			total: 1000_00, paid: 1000_00, basePct: 20,
			startsIn: 24 * time.Hour, role: RoleClient,
			wantFee: 0, wantPercent: 0,
		},
		{
			name:  "base percent inside 24h",
			total: 1000_00, paid: 1000_00, basePct: 20,
			startsIn: 10 * time.Hour, role: RoleClient,
			wantFee: 200_00, wantPercent: 20,
		},
		{
			name:  "doubled under 4h",
			total: 1000_00, paid: 1000_00, basePct: 20,
			startsIn: 3 * time.Hour, role: RoleClient,
			wantFee: 400_00, wantPercent: 40,
		},
		{
			name:  "provider multiplier on top of doubling",
			total: 1000_00, paid: 1000_00, basePct: 20,
			startsIn: 3 * time.Hour, role: RoleProvider,
			wantFee: 600_00, wantPercent: 60,
		},
		{
			name:  "doubling caps at 100",
			total: 1000_00, paid: 1000_00, basePct: 60,
			startsIn: 2 * time.Hour, role: RoleClient,
			wantFee: 1000_00, wantPercent: 100,
		},
		{
			name:  "provider multiplier caps at 100",
			total: 1000_00, paid: 1000_00, basePct: 80,
			startsIn: 10 * time.Hour, role: RoleProvider,
			wantFee: 1000_00, wantPercent: 100,
		},
		{
			name:  "fee never exceeds what was paid",
			total: 1000_00, paid: 100_00, basePct: 20,
			startsIn: 3 * time.Hour, role: RoleClient,
			wantFee: 100_00, wantPercent: 40,
		},
		{
			name:  "zero base percent falls back to default",
			total: 1000_00, paid: 1000_00, basePct: 0,
			startsIn: 10 * time.Hour, role: RoleClient,
			wantFee: 200_00, wantPercent: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CancellationFee(tt.total, tt.paid, tt.basePct, now.Add(tt.startsIn), tt.role, now)
			assert.Equal(t, tt.wantFee, got.FeeCents)
			assert.Equal(t, tt.wantPercent, got.Percent)
		})
	}
}

func TestCancellationFee_Deterministic(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(3 * time.Hour)

	a := CancellationFee(1000_00, 1000_00, 20, start, RoleProvider, now)
	b := CancellationFee(1000_00, 1000_00, 20, start, RoleProvider, now)
	assert.Equal(t, a, b)
}

func TestCancellationFee_MonotonicInHoursUntilStart(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	prev := int64(1 << 62)
	for m := 0; m <= 48*60; m += 15 {
		start := now.Add(time.Duration(m) * time.Minute)
		fee := CancellationFee(1000_00, 1000_00, 20, start, RoleClient, now).FeeCents
		assert.LessOrEqual(t, fee, prev, "fee must not grow as the start moves further away (minutes=%d)", m)
		prev = fee
	}
}
