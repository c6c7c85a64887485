package catalog

// TypeConfig carries the per-service-type business rules consulted by
// the booking lifecycle. Unknown type names fall back to DefaultType.
type TypeConfig struct {
	Name                string
	MinAdvanceHours     int     // earliest a client may book or cancel before start
	MaxDurationHours    int
	CancellationFeePct  float64 // base penalty percent for late cancellation
	AutoCancelHours     int     // pending bookings older than this expire
	ReminderOffsetHours []int   // reminders before start, largest first
	SupportsDeposit     bool
	DepositPct          float64 // share of total requested as deposit
}

var typeConfigs = map[string]TypeConfig{
	"standard": {
		Name:                "standard",
		MinAdvanceHours:     2,
		MaxDurationHours:    8,
		CancellationFeePct:  20,
		AutoCancelHours:     24,
		ReminderOffsetHours: []int{24, 2},
	},
	"outcall": {
		Name:                "outcall",
		MinAdvanceHours:     4,
		MaxDurationHours:    8,
		CancellationFeePct:  25,
		AutoCancelHours:     24,
		ReminderOffsetHours: []int{24, 2},
		SupportsDeposit:     true,
		DepositPct:          30,
	},
	"online": {
		Name:                "online",
		MinAdvanceHours:     1,
		MaxDurationHours:    4,
		CancellationFeePct:  10,
		AutoCancelHours:     12,
		ReminderOffsetHours: []int{2},
	},
	"package": {
		Name:                "package",
		MinAdvanceHours:     24,
		MaxDurationHours:    12,
		CancellationFeePct:  30,
		AutoCancelHours:     48,
		ReminderOffsetHours: []int{24, 2},
		SupportsDeposit:     true,
		DepositPct:          30,
	},
}

// DefaultType is the fallback config for unknown type names.
var DefaultType = typeConfigs["standard"]

func TypeByName(name string) TypeConfig {
	if tc, ok := typeConfigs[name]; ok {
		return tc
	}
	return DefaultType
}
