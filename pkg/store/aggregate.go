package store

import (
	"time"

	"github.com/tariffsaver/tariffsaver/pkg/types"
)

// periodWindow returns the [start, end) window of the calendar period
// containing now, in the store's local calendar. Weeks start on Monday.
func (s *Store) periodWindow(period types.Period, now time.Time) (time.Time, time.Time) {
	local := now.In(s.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)

	switch period {
	case types.PeriodDay:
		return midnight, midnight.AddDate(0, 0, 1)
	case types.PeriodWeek:
		offset := (int(midnight.Weekday()) + 6) % 7 // Monday = 0
		start := midnight.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case types.PeriodMonth:
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc)
		return start, start.AddDate(0, 1, 0)
	case types.PeriodYear:
		start := time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, s.loc)
		return start, start.AddDate(1, 0, 0)
	}
	return time.Time{}, time.Time{}
}

// PeriodBreakdown sums the ok-status booked slots whose start falls in the
// calendar period containing now, per component and per dyn/baseline/savings
// bucket. The second return is false when not a single slot contributed,
// letting callers distinguish "no data" from "zero cost".
func (s *Store) PeriodBreakdown(period types.Period, now time.Time) (types.Breakdown, bool) {
	start, end := s.periodWindow(period, now)
	bd := types.Breakdown{
		Dyn:  types.Components{},
		Base: types.Components{},
		Sav:  types.Components{},
	}
	if start.IsZero() {
		return bd, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var any bool
	for slotStart, b := range s.booked {
		if b.Status != types.SlotStatusOK {
			continue
		}
		local := slotStart.In(s.loc)
		if local.Before(start) || !local.Before(end) {
			continue
		}
		any = true
		for c, v := range b.DynCost {
			bd.Dyn[c] += v
		}
		for c, v := range b.BaseCost {
			bd.Base[c] += v
		}
		for c, v := range b.Savings {
			bd.Sav[c] += v
		}
	}
	return bd, any
}
