package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tariffsaver/tariffsaver/pkg/types"
)

// ErrUnsupportedVersion is returned when a persisted document was written by
// a newer schema than this build understands. It must surface to the
// operator; silently discarding state would lose booked history.
var ErrUnsupportedVersion = errors.New("unsupported document version")

// Snapshot serializes the store into the current document shape.
func (s *Store) Snapshot() types.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SnapshotIfDirty returns a snapshot and clears the dirty flag, or false when
// nothing changed since the last snapshot. If the subsequent save fails the
// caller re-flags the store with MarkDirty.
func (s *Store) SnapshotIfDirty() (types.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return types.Document{}, false
	}
	doc := s.snapshotLocked()
	s.dirty = false
	return doc, true
}

func (s *Store) snapshotLocked() types.Document {
	doc := types.Document{
		Version:    types.DocumentVersion,
		PriceSlots: make(map[string]types.PriceEntry, len(s.priceSlots)),
		Samples:    make([]types.SampleDoc, 0, len(s.samples)),
		Booked:     make([]types.BookedSlotDoc, 0, len(s.booked)),
	}
	for start, e := range s.priceSlots {
		doc.PriceSlots[start.Format(time.RFC3339)] = types.PriceEntry{
			Dyn:  e.Dyn.Clone(),
			Base: e.Base.Clone(),
		}
	}
	for _, smp := range s.samples {
		doc.Samples = append(doc.Samples, types.SampleDoc{TS: smp.TS.Unix(), KWH: smp.KWH})
	}
	starts := make([]time.Time, 0, len(s.booked))
	for start := range s.booked {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for _, start := range starts {
		b := s.booked[start]
		doc.Booked = append(doc.Booked, types.BookedSlotDoc{
			Start:  start.Format(time.RFC3339),
			KWH:    b.KWH,
			Status: string(b.Status),
			Dyn:    b.DynCost.Clone(),
			Base:   b.BaseCost.Clone(),
			Sav:    b.Savings.Clone(),
		})
	}
	if !s.lastAPISuccess.IsZero() {
		ts := s.lastAPISuccess
		doc.LastAPISuccess = &ts
	}
	return doc
}

// Load replaces the store's collections with the document's contents and
// re-derives the booking cursor. Entries that fail to parse are skipped
// rather than failing the whole load. The store is clean afterwards.
func (s *Store) Load(doc types.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.priceSlots = make(map[time.Time]types.PriceEntry, len(doc.PriceSlots))
	for key, e := range doc.PriceSlots {
		start, err := time.Parse(time.RFC3339, key)
		if err != nil {
			continue
		}
		s.priceSlots[types.FloorSlot(start)] = types.PriceEntry{
			Dyn:  e.Dyn.Clone(),
			Base: e.Base.Clone(),
		}
	}

	s.samples = make([]types.Sample, 0, len(doc.Samples))
	for _, smp := range doc.Samples {
		s.samples = append(s.samples, types.Sample{TS: time.Unix(smp.TS, 0).UTC(), KWH: smp.KWH})
	}
	sort.Slice(s.samples, func(i, j int) bool { return s.samples[i].TS.Before(s.samples[j].TS) })

	s.booked = make(map[time.Time]types.BookedSlot, len(doc.Booked))
	for _, b := range doc.Booked {
		start, err := time.Parse(time.RFC3339, b.Start)
		if err != nil {
			continue
		}
		start = types.FloorSlot(start)
		s.booked[start] = types.BookedSlot{
			Start:    start,
			KWH:      b.KWH,
			Status:   types.SlotStatus(b.Status),
			DynCost:  b.Dyn.Clone(),
			BaseCost: b.Base.Clone(),
			Savings:  b.Sav.Clone(),
		}
	}

	if doc.LastAPISuccess != nil {
		s.lastAPISuccess = doc.LastAPISuccess.UTC()
	} else {
		s.lastAPISuccess = time.Time{}
	}

	s.cursor = time.Time{}
	s.recomputeCursorLocked()
	s.dirty = false
}

// EncodeDocument marshals a document for the persistence gateway.
func EncodeDocument(doc types.Document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return raw, nil
}

// DecodeDocument unmarshals a persisted document, upgrading the two preceding
// schema shapes in memory. Versions newer than this build are a fatal error.
func DecodeDocument(raw []byte) (types.Document, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return types.Document{}, fmt.Errorf("failed to decode document: %w", err)
	}

	switch probe.Version {
	case 0, 1:
		return decodeV1(raw)
	case 2:
		return decodeV2(raw)
	case types.DocumentVersion:
		var doc types.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return types.Document{}, fmt.Errorf("failed to decode v3 document: %w", err)
		}
		return doc, nil
	}
	return types.Document{}, fmt.Errorf("%w: %d (this build supports up to %d)",
		ErrUnsupportedVersion, probe.Version, types.DocumentVersion)
}
