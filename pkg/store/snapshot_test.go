package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tariffsaver/tariffsaver/pkg/types"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := testStore()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	priceSlot(s, start, 0.10, 0.30)
	require.True(t, s.AddSample(start, 100))
	require.True(t, s.AddSample(start.Add(types.SlotDuration), 101))
	require.Len(t, s.FinalizeDueSlots(start.Add(types.SlotDuration+2*time.Minute)), 1)
	s.SetLastAPISuccess(start)

	raw, err := EncodeDocument(s.Snapshot())
	require.NoError(t, err)

	doc, err := DecodeDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, types.DocumentVersion, doc.Version)

	s2 := testStore()
	s2.Load(doc)

	priceSlots, samples, booked := s2.Counts()
	assert.Equal(t, 1, priceSlots)
	assert.Equal(t, 2, samples)
	assert.Equal(t, 1, booked)
	assert.Equal(t, start, s2.LastAPISuccess())
	assert.False(t, s2.Dirty())

	e, ok := s2.LookupPriceSlot(start)
	require.True(t, ok)
	assert.InDelta(t, 0.10, e.Dyn[types.ComponentElectricity], 1e-9)
	assert.InDelta(t, 0.30, e.Base[types.ComponentElectricity], 1e-9)

	bd, ok := s2.PeriodBreakdown(types.PeriodDay, start.Add(time.Hour))
	require.True(t, ok)
	assert.InDelta(t, 0.10, bd.Dyn[types.ComponentElectricity], 1e-9)
}

func TestDecodeDocumentV1(t *testing.T) {
	// flat electricity-only prices, samples as [iso, kwh] pairs, booked keyed
	// by local slot end with flat CHF costs
	raw := []byte(`{
		"version": 1,
		"price_slots": {
			"2026-03-01T11:00:00+01:00": {"dyn": 0.10, "base": 0.30},
			"2026-03-01T11:15:00+01:00": {"dyn": 0}
		},
		"samples": [
			["2026-03-01T10:00:00Z", 100],
			["2026-03-01T10:15:00Z", 101],
			["garbage", 1]
		],
		"booked_slots": {
			"2026-03-01T11:15:00+01:00": {"kwh": 1, "dyn_chf": 0.10, "base_chf": 0.30, "status": "ok"}
		}
	}`)

	doc, err := DecodeDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, types.DocumentVersion, doc.Version)

	// the zero-priced slot is dropped, the key is normalized to UTC
	require.Len(t, doc.PriceSlots, 1)
	e, ok := doc.PriceSlots["2026-03-01T10:00:00Z"]
	require.True(t, ok)
	assert.InDelta(t, 0.10, e.Dyn[types.ComponentElectricity], 1e-9)
	assert.InDelta(t, 0.30, e.Base[types.ComponentElectricity], 1e-9)

	require.Len(t, doc.Samples, 2)

	// end-keyed 10:15 local+1 becomes start-keyed 10:00 UTC
	require.Len(t, doc.Booked, 1)
	b := doc.Booked[0]
	assert.Equal(t, "2026-03-01T10:00:00Z", b.Start)
	assert.Equal(t, "ok", b.Status)
	assert.InDelta(t, 0.10, b.Dyn[types.ComponentElectricity], 1e-9)
	assert.InDelta(t, 0.20, b.Sav[types.ComponentElectricity], 1e-9)

	t.Run("loads and books forward without duplicating", func(t *testing.T) {
		s := testStore()
		s.Load(doc)
		_, _, booked := s.Counts()
		assert.Equal(t, 1, booked)

		// sweep picks up directly after the migrated slot
		require.True(t, s.AddSample(time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), 102))
		newly := s.FinalizeDueSlots(time.Date(2026, 3, 1, 10, 32, 0, 0, time.UTC))
		require.Len(t, newly, 1)
		assert.Equal(t, time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC), newly[0].Start)
	})
}

func TestDecodeDocumentV2(t *testing.T) {
	raw := []byte(`{
		"version": 2,
		"price_slots": {
			"2026-03-01T10:00:00Z": {"dyn": {"electricity": 0.10, "grid": 0.05}, "base": {"electricity": 0.30}},
			"2026-03-01T10:15:00Z": {"dyn": {}}
		},
		"samples": [["2026-03-01T10:00:00Z", 100]],
		"booked_slots": {
			"2026-03-01T10:15:00Z": {"kwh": 1, "dyn_chf": 0.10, "base_chf": 0, "status": "ok"}
		},
		"last_api_success_utc": "2026-03-01T09:00:00Z"
	}`)

	doc, err := DecodeDocument(raw)
	require.NoError(t, err)

	require.Len(t, doc.PriceSlots, 1)
	e := doc.PriceSlots["2026-03-01T10:00:00Z"]
	assert.InDelta(t, 0.05, e.Dyn[types.ComponentGrid], 1e-9)

	require.Len(t, doc.Booked, 1)
	b := doc.Booked[0]
	assert.Equal(t, "2026-03-01T10:00:00Z", b.Start)
	assert.Nil(t, b.Base)
	assert.Nil(t, b.Sav)

	require.NotNil(t, doc.LastAPISuccess)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), doc.LastAPISuccess.UTC())
}

func TestDecodeDocumentFutureVersion(t *testing.T) {
	_, err := DecodeDocument([]byte(`{"version": 99}`))
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeDocumentGarbage(t *testing.T) {
	_, err := DecodeDocument([]byte(`not json`))
	require.Error(t, err)
}

func TestLoadSkipsUnparseableEntries(t *testing.T) {
	doc := types.Document{
		Version: types.DocumentVersion,
		PriceSlots: map[string]types.PriceEntry{
			"garbage":              {Dyn: types.Components{types.ComponentElectricity: 0.1}},
			"2026-03-01T10:00:00Z": {Dyn: types.Components{types.ComponentElectricity: 0.2}},
		},
		Booked: []types.BookedSlotDoc{
			{Start: "garbage", Status: "ok"},
			{Start: "2026-03-01T10:00:00Z", Status: "ok", KWH: 1},
		},
	}

	s := testStore()
	s.Load(doc)

	priceSlots, _, booked := s.Counts()
	assert.Equal(t, 1, priceSlots)
	assert.Equal(t, 1, booked)
}
