package store

import (
	"time"

	"github.com/tariffsaver/tariffsaver/pkg/types"
)

// safetyMargin is how far past a slot end the clock must be before the slot
// counts as fully elapsed, and how far past a boundary a sample may land and
// still serve as that boundary's reading. Meter samples trail the boundary by
// a few seconds in practice; without the allowance every slot's consumption
// would shift into the next slot's price.
const safetyMargin = time.Minute

// FinalizeDueSlots books every fully elapsed 15-minute slot since the last
// booked one and returns the newly created records in order. The sweep is
// driven by a monotonic cursor over the booked collection, so invoking it on
// every sample arrival, repeatedly, or after a restart can never double-book
// a slot; most calls are no-ops.
func (s *Store) FinalizeDueSlots(now time.Time) []types.BookedSlot {
	safeCutoff := types.FloorSlot(now.UTC().Add(-safetyMargin))

	s.mu.Lock()
	defer s.mu.Unlock()

	// Booking needs two boundary readings; with fewer than two samples there
	// is no interval to measure.
	if len(s.samples) < 2 {
		return nil
	}

	if s.cursor.IsZero() {
		s.recomputeCursorLocked()
	}
	if s.cursor.IsZero() {
		return nil
	}

	var newly []types.BookedSlot
	for !s.cursor.Add(types.SlotDuration).After(safeCutoff) {
		start := s.cursor
		s.cursor = s.cursor.Add(types.SlotDuration)
		if _, exists := s.booked[start]; exists {
			continue
		}

		b := s.bookOneLocked(start)
		s.booked[start] = b
		s.dirty = true
		newly = append(newly, b)
	}
	return newly
}

// recomputeCursorLocked derives the cursor from persisted state: the slot
// after the latest booked one, or the slot of the earliest retained sample
// when nothing has ever been booked (bootstrap).
func (s *Store) recomputeCursorLocked() {
	var latest time.Time
	for start := range s.booked {
		if start.After(latest) {
			latest = start
		}
	}
	if !latest.IsZero() {
		s.cursor = latest.Add(types.SlotDuration)
		return
	}
	if len(s.samples) > 0 {
		s.cursor = types.FloorSlot(s.samples[0].TS)
	}
}

func (s *Store) bookOneLocked(start time.Time) types.BookedSlot {
	end := start.Add(types.SlotDuration)

	// Boundary readings admit samples up to the safety margin past the
	// boundary, so a sample a few seconds late still closes its own slot. The
	// sweep only reaches slots whose end+margin has elapsed, so the end
	// reading is final by the time it is taken.
	kwhStart, okStart := s.valueAtOrBeforeLocked(start.Add(safetyMargin))
	kwhEnd, okEnd := s.valueAtOrBeforeLocked(end.Add(safetyMargin))
	if !okStart || !okEnd {
		return types.BookedSlot{Start: start, Status: types.SlotStatusMissingSamples}
	}

	delta := kwhEnd - kwhStart
	if delta < 0 {
		// Meter reset or glitch. Permanently marked, never retried.
		return types.BookedSlot{Start: start, Status: types.SlotStatusInvalid}
	}

	entry, priced := s.priceSlots[start]
	if !priced || entry.Dyn.ActiveTotal() <= 0 {
		// Keep the measured consumption for audit even though it costs nothing.
		return types.BookedSlot{Start: start, KWH: delta, Status: types.SlotStatusUnpriced}
	}

	dynCost := make(types.Components, len(entry.Dyn))
	for c, price := range entry.Dyn {
		dynCost[c] = delta * price
	}

	var baseCost, savings types.Components
	if len(entry.Base) > 0 {
		baseCost = make(types.Components, len(entry.Base))
		for c, price := range entry.Base {
			baseCost[c] = delta * price
		}
		savings = make(types.Components)
		for c, bc := range baseCost {
			if dc, ok := dynCost[c]; ok {
				savings[c] = bc - dc
			}
		}
	}

	return types.BookedSlot{
		Start:    start,
		KWH:      delta,
		Status:   types.SlotStatusOK,
		DynCost:  dynCost,
		BaseCost: baseCost,
		Savings:  savings,
	}
}
