package payments

import "strings"

// ReasonCategory is the deterministic classification of a free-form
// refund reason. The taxonomy is fixed; keyword matching runs in
// declaration order and the first hit wins.
type ReasonCategory string

const (
	ReasonCancellation   ReasonCategory = "cancellation"
	ReasonQualityIssue   ReasonCategory = "quality_issue"
	ReasonTimingIssue    ReasonCategory = "timing_issue"
	ReasonTechnicalIssue ReasonCategory = "technical_issue"
	ReasonOther          ReasonCategory = "other"
)

var reasonKeywords = []struct {
	category ReasonCategory
	words    []string
}{
	{ReasonCancellation, []string{"cancel", "cancelled", "cancellation"}},
	{ReasonQualityIssue, []string{"quality", "dissatisfied", "unhappy", "poor", "bad service"}},
	{ReasonTimingIssue, []string{"late", "delay", "no-show", "no show", "missed", "reschedul"}},
	{ReasonTechnicalIssue, []string{"technical", "error", "bug", "glitch", "double charge", "duplicate"}},
}

func ClassifyReason(reason string) ReasonCategory {
	lower := strings.ToLower(reason)
	for _, rk := range reasonKeywords {
		for _, w := range rk.words {
			if strings.Contains(lower, w) {
				return rk.category
			}
		}
	}
	return ReasonOther
}

// Priority is the manual-review queue tier for a refund.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

const (
	highAmountCents   = 50_000_00
	mediumAmountCents = 10_000_00
)

func ClassifyPriority(amountCents int64, vip bool) Priority {
	switch {
	case vip || amountCents > highAmountCents:
		return PriorityHigh
	case amountCents > mediumAmountCents:
		return PriorityMedium
	default:
		return PriorityNormal
	}
}

// ProcessingEstimate is the human-facing turnaround window for a
// review tier, attached to the refund result for support tooling.
func ProcessingEstimate(p Priority) string {
	switch p {
	case PriorityHigh:
		return "1-2 hours"
	case PriorityMedium:
		return "2-6 hours"
	default:
		return "6-24 hours"
	}
}
