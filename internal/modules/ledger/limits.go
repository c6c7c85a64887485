package ledger

// Ceilings per transaction type, in minor units. Values mirror the
// platform's operational limits.
type typeLimit struct {
	DailyCents  int64 // summed over the calendar day per user
	SingleCents int64 // per transaction
}

var typeLimits = map[Type]typeLimit{
	TypePayment:      {DailyCents: 500_000_00, SingleCents: 100_000_00},
	TypeRefund:       {DailyCents: 100_000_00, SingleCents: 100_000_00},
	TypeTransfer:     {DailyCents: 200_000_00, SingleCents: 50_000_00},
	TypeCommission:   {DailyCents: 50_000_00, SingleCents: 10_000_00},
	TypeSubscription: {DailyCents: 100_000_00, SingleCents: 50_000_00},
}

var defaultLimit = typeLimit{DailyCents: 10_000_00, SingleCents: 5_000_00}

func limitFor(t Type) typeLimit {
	if l, ok := typeLimits[t]; ok {
		return l
	}
	return defaultLimit
}
