// Package store implements the tariff persistence and cost-accrual engine:
// the per-instance working set of price slots, meter samples and finalized
// consumption slots, plus the booking sweep and the period aggregates over it.
package store

import (
	"sync"
	"time"

	"github.com/tariffsaver/tariffsaver/pkg/types"
)

// Store holds the mutable state of one tariff instance. In-memory state is
// the source of truth; the persisted document is a best-effort snapshot.
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	settings types.Settings
	loc      *time.Location

	priceSlots map[time.Time]types.PriceEntry
	samples    []types.Sample // chronological
	booked     map[time.Time]types.BookedSlot

	// cursor is the next slot start the booker will consider. It is derived
	// from the booked collection (on load and on first use), never persisted
	// separately, so a restart cannot desynchronize it.
	cursor time.Time

	lastAPISuccess time.Time
	dirty          bool
}

// New creates an empty store. loc is the local civil calendar used for
// period aggregation; nil defaults to time.Local.
func New(settings types.Settings, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		settings:   settings.WithDefaults(),
		loc:        loc,
		priceSlots: make(map[time.Time]types.PriceEntry),
		booked:     make(map[time.Time]types.BookedSlot),
	}
}

// Settings returns the instance settings (defaults applied).
func (s *Store) Settings() types.Settings {
	return s.settings
}

// UpsertPriceSlot stores the dynamic (and optionally baseline) components for
// a slot. Non-aligned starts are floored to the 15-minute boundary rather
// than rejected. Last write wins.
func (s *Store) UpsertPriceSlot(start time.Time, dyn, base types.Components) {
	start = types.FloorSlot(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceSlots[start] = types.PriceEntry{Dyn: dyn.Clone(), Base: base.Clone()}
	s.dirty = true
}

// LookupPriceSlot returns the stored entry for an exact slot start. The store
// never interpolates: a missing slot means the interval is unpriced.
func (s *Store) LookupPriceSlot(start time.Time) (types.PriceEntry, bool) {
	start = types.FloorSlot(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.priceSlots[start]
	return e, ok
}

// AddSample appends a meter observation. Samples arriving closer than the
// configured minimum spacing to the previous stored sample are suppressed to
// bound storage growth; out-of-order timestamps are suppressed too since the
// ledger is fed from live events. Returns true if the sample was stored.
func (s *Store) AddSample(ts time.Time, kwh float64) bool {
	ts = ts.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.samples); n > 0 {
		last := s.samples[n-1].TS
		if !ts.After(last) {
			return false
		}
		if ts.Sub(last) < time.Duration(s.settings.MinSampleGapS)*time.Second {
			return false
		}
	}
	s.samples = append(s.samples, types.Sample{TS: ts, KWH: kwh})
	s.dirty = true
	return true
}

// valueAtOrBeforeLocked returns the latest cumulative reading with timestamp
// <= t. Times before the earliest retained sample resolve to nothing.
func (s *Store) valueAtOrBeforeLocked(t time.Time) (float64, bool) {
	for i := len(s.samples) - 1; i >= 0; i-- {
		if !s.samples[i].TS.After(t) {
			return s.samples[i].KWH, true
		}
	}
	return 0, false
}

// Trim drops price slots, samples and booked slots that fell out of their
// retention windows.
func (s *Store) Trim(now time.Time) {
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	priceCutoff := now.AddDate(0, 0, -s.settings.PriceKeepDays)
	for start := range s.priceSlots {
		if start.Before(priceCutoff) {
			delete(s.priceSlots, start)
			s.dirty = true
		}
	}

	sampleCutoff := now.AddDate(0, 0, -s.settings.SampleKeepDays)
	firstKept := 0
	for firstKept < len(s.samples) && s.samples[firstKept].TS.Before(sampleCutoff) {
		firstKept++
	}
	if firstKept > 0 {
		s.samples = append([]types.Sample(nil), s.samples[firstKept:]...)
		s.dirty = true
	}

	bookedCutoff := now.AddDate(0, 0, -s.settings.BookedKeepDays)
	for start := range s.booked {
		if start.Before(bookedCutoff) {
			delete(s.booked, start)
			s.dirty = true
		}
	}
}

// SetLastAPISuccess records the timestamp of the last successful upstream fetch.
func (s *Store) SetLastAPISuccess(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAPISuccess = t.UTC()
	s.dirty = true
}

// LastAPISuccess returns the last successful fetch time, zero if never.
func (s *Store) LastAPISuccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAPISuccess
}

// Counts reports collection sizes for diagnostics.
func (s *Store) Counts() (priceSlots, samples, booked int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.priceSlots), len(s.samples), len(s.booked)
}

// Dirty reports whether in-memory state has diverged from the last snapshot.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// MarkDirty flags the store for saving again, used after a failed save so the
// snapshot is retried on the next cycle.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
}
