package tariff

import (
	"math"
	"strings"
	"time"

	"github.com/tariffsaver/tariffsaver/pkg/types"
)

// CurrentSlot returns the slot covering now: the latest slot whose start is
// not after now, falling back to the first slot when the curve is entirely in
// the future. Slots must be sorted by start.
func CurrentSlot(slots []types.PriceSlot, now time.Time) (types.PriceSlot, bool) {
	if len(slots) == 0 {
		return types.PriceSlot{}, false
	}
	var current *types.PriceSlot
	for i := range slots {
		if slots[i].Start.After(now) {
			break
		}
		current = &slots[i]
	}
	if current == nil {
		return slots[0], true
	}
	return *current, true
}

// NextSlot returns the first slot strictly after now.
func NextSlot(slots []types.PriceSlot, now time.Time) (types.PriceSlot, bool) {
	for _, s := range slots {
		if s.Start.After(now) {
			return s, true
		}
	}
	return types.PriceSlot{}, false
}

// FutureAverage averages the positive electricity prices of slots starting at
// or after now. Returns 0 when no such slot exists.
func FutureAverage(slots []types.PriceSlot, now time.Time) float64 {
	var sum float64
	var n int
	for _, s := range slots {
		if v := s.Electricity(); v > 0 && !s.Start.Before(now) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Window is the cheapest contiguous run of slots for some fixed duration.
type Window struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	AvgCHFPerKWH float64   `json:"avgCHFPerKWH"`

	// Set by Grade decoration; Grade is 0 when no reference was available.
	DevVsRefPercent float64 `json:"devVsRefPercent,omitempty"`
	Grade           int     `json:"grade,omitempty"`
	Stars           string  `json:"stars,omitempty"`
}

// CheapestWindow finds the contiguous run of windowSlots priced slots with the
// lowest electricity price sum. Slots must be sorted by start; unpriced slots
// are excluded before the scan.
func CheapestWindow(slots []types.PriceSlot, windowSlots int) (Window, bool) {
	priced := make([]types.PriceSlot, 0, len(slots))
	for _, s := range slots {
		if s.Electricity() > 0 {
			priced = append(priced, s)
		}
	}
	if windowSlots <= 0 || len(priced) < windowSlots {
		return Window{}, false
	}

	bestSum := math.Inf(1)
	var best Window
	for i := 0; i+windowSlots <= len(priced); i++ {
		var sum float64
		for _, s := range priced[i : i+windowSlots] {
			sum += s.Electricity()
		}
		if sum < bestSum {
			bestSum = sum
			best = Window{
				Start:        priced[i].Start,
				End:          priced[i+windowSlots-1].Start.Add(types.SlotDuration),
				AvgCHFPerKWH: sum / float64(windowSlots),
			}
		}
	}
	return best, true
}

// GradeFromDeviation maps a deviation vs a reference average (percent) onto a
// grade 1..5 (1 = very cheap) using the configured thresholds.
func GradeFromDeviation(dev float64, s types.Settings) int {
	switch {
	case dev <= s.GradeT1:
		return 1
	case dev <= s.GradeT2:
		return 2
	case dev <= s.GradeT3:
		return 3
	case dev <= s.GradeT4:
		return 4
	}
	return 5
}

// StarsFromGrade renders a grade as stars, 5 stars for grade 1.
func StarsFromGrade(grade int) string {
	if grade < 1 || grade > 5 {
		return "—"
	}
	return strings.Repeat("⭐", 6-grade)
}

// Decorate grades a window against a reference average price.
func (w Window) Decorate(refAvg float64, s types.Settings) Window {
	if refAvg <= 0 || w.AvgCHFPerKWH <= 0 {
		return w
	}
	w.DevVsRefPercent = (w.AvgCHFPerKWH/refAvg - 1.0) * 100.0
	w.Grade = GradeFromDeviation(w.DevVsRefPercent, s)
	w.Stars = StarsFromGrade(w.Grade)
	return w
}

// Deviations computes per-slot deviation percentages for the priced slots of
// a curve: vs the curve's own future average and vs the baseline price of the
// same slot. Keys are RFC3339 UTC slot starts.
func Deviations(active, baseline []types.PriceSlot, now time.Time) (vsAvg, vsBase map[string]float64) {
	vsAvg = make(map[string]float64)
	vsBase = make(map[string]float64)

	refAvg := FutureAverage(active, now)
	baseMap := make(map[time.Time]float64, len(baseline))
	for _, s := range baseline {
		baseMap[s.Start] = s.Electricity()
	}

	for _, s := range active {
		v := s.Electricity()
		if v <= 0 {
			continue
		}
		key := s.Start.UTC().Format(time.RFC3339)
		if refAvg > 0 {
			vsAvg[key] = (v/refAvg - 1.0) * 100.0
		}
		if b := baseMap[s.Start]; b > 0 {
			vsBase[key] = (v/b - 1.0) * 100.0
		}
	}
	return vsAvg, vsBase
}

// SavingsNext24h estimates the savings of the dynamic curve vs the baseline
// over the matched slots, assuming a constant 1 kW load (0.25 kWh per slot).
// Returns false when no slot could be matched against the baseline.
func SavingsNext24h(active, baseline []types.PriceSlot) (float64, bool) {
	if len(active) == 0 || len(baseline) == 0 {
		return 0, false
	}
	baseMap := make(map[time.Time]float64, len(baseline))
	for _, s := range baseline {
		baseMap[s.Start] = s.Electricity()
	}

	const kwhPerSlot = 0.25
	var savings float64
	var matched int
	for _, s := range active {
		b := baseMap[s.Start]
		if b <= 0 {
			continue
		}
		savings += (b - s.Electricity()) * kwhPerSlot
		matched++
	}
	if matched == 0 {
		return 0, false
	}
	return savings, true
}
