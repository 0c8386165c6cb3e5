package types

import "fmt"

// Period is a calendar-aligned aggregation window in local time.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod validates a period name from an API query.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return Period(s), nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Breakdown holds per-component cost totals over some period: the actual
// dynamic-tariff cost, the hypothetical baseline cost, and the savings
// (baseline minus dynamic, per component present in both).
type Breakdown struct {
	Dyn  Components `json:"dyn"`
	Base Components `json:"base"`
	Sav  Components `json:"sav"`
}
