package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tariffsaver/tariffsaver/pkg/types"
)

var slotStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// priceSlot stores a two-component dynamic price plus a baseline for one slot.
func priceSlot(s *Store, start time.Time, dynElec, baseElec float64) {
	s.UpsertPriceSlot(start,
		types.Components{types.ComponentElectricity: dynElec, types.ComponentGrid: 0.05},
		types.Components{types.ComponentElectricity: baseElec, types.ComponentGrid: 0.05},
	)
}

func TestFinalizeDueSlots(t *testing.T) {
	s := testStore()
	priceSlot(s, slotStart, 0.10, 0.30)

	// 1 kWh consumed over the slot
	require.True(t, s.AddSample(slotStart, 100))
	require.True(t, s.AddSample(slotStart.Add(types.SlotDuration), 101))

	// slot not elapsed past the safety margin yet
	assert.Empty(t, s.FinalizeDueSlots(slotStart.Add(types.SlotDuration)))

	newly := s.FinalizeDueSlots(slotStart.Add(types.SlotDuration + 2*time.Minute))
	require.Len(t, newly, 1)
	b := newly[0]

	assert.Equal(t, slotStart, b.Start)
	assert.Equal(t, types.SlotStatusOK, b.Status)
	assert.InDelta(t, 1.0, b.KWH, 1e-9)
	assert.InDelta(t, 0.10, b.DynCost[types.ComponentElectricity], 1e-9)
	assert.InDelta(t, 0.05, b.DynCost[types.ComponentGrid], 1e-9)
	assert.InDelta(t, 0.30, b.BaseCost[types.ComponentElectricity], 1e-9)
	assert.InDelta(t, 0.20, b.Savings[types.ComponentElectricity], 1e-9)
	assert.InDelta(t, 0.0, b.Savings[types.ComponentGrid], 1e-9)

	t.Run("repeat call is a no-op", func(t *testing.T) {
		assert.Empty(t, s.FinalizeDueSlots(slotStart.Add(types.SlotDuration+5*time.Minute)))
	})
}

func TestFinalizeDueSlotsLateBoundarySamples(t *testing.T) {
	// meter samples trail the slot boundaries by a few seconds, as they do in
	// a live deployment; each reading must still close its own slot
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s := testStore()
	s.UpsertPriceSlot(day, types.Components{types.ComponentElectricity: 0.10}, nil)
	s.UpsertPriceSlot(day.Add(types.SlotDuration), types.Components{types.ComponentElectricity: 0.20}, nil)

	require.True(t, s.AddSample(day, 10.0))
	require.True(t, s.AddSample(day.Add(15*time.Minute+5*time.Second), 10.5))
	require.True(t, s.AddSample(day.Add(30*time.Minute+2*time.Second), 11.5))

	newly := s.FinalizeDueSlots(day.Add(31 * time.Minute))
	require.Len(t, newly, 2)

	assert.Equal(t, day, newly[0].Start)
	assert.Equal(t, types.SlotStatusOK, newly[0].Status)
	assert.InDelta(t, 0.5, newly[0].KWH, 1e-9)
	assert.InDelta(t, 0.05, newly[0].DynCost[types.ComponentElectricity], 1e-9)

	assert.Equal(t, day.Add(types.SlotDuration), newly[1].Start)
	assert.Equal(t, types.SlotStatusOK, newly[1].Status)
	assert.InDelta(t, 1.0, newly[1].KWH, 1e-9)
	assert.InDelta(t, 0.20, newly[1].DynCost[types.ComponentElectricity], 1e-9)

	t.Run("unpriced slot keeps the late-sample delta", func(t *testing.T) {
		s := testStore()
		s.UpsertPriceSlot(day, types.Components{types.ComponentElectricity: 0.10}, nil)

		require.True(t, s.AddSample(day, 10.0))
		require.True(t, s.AddSample(day.Add(15*time.Minute+5*time.Second), 10.5))
		require.True(t, s.AddSample(day.Add(30*time.Minute+2*time.Second), 11.5))

		newly := s.FinalizeDueSlots(day.Add(31 * time.Minute))
		require.Len(t, newly, 2)
		assert.Equal(t, types.SlotStatusUnpriced, newly[1].Status)
		assert.InDelta(t, 1.0, newly[1].KWH, 1e-9)
		assert.Nil(t, newly[1].DynCost)
	})
}

func TestFinalizeDueSlotsStatuses(t *testing.T) {
	t.Run("unpriced keeps measured consumption", func(t *testing.T) {
		s := testStore()
		require.True(t, s.AddSample(slotStart, 100))
		require.True(t, s.AddSample(slotStart.Add(types.SlotDuration), 100.5))

		newly := s.FinalizeDueSlots(slotStart.Add(types.SlotDuration + 2*time.Minute))
		require.Len(t, newly, 1)
		assert.Equal(t, types.SlotStatusUnpriced, newly[0].Status)
		assert.InDelta(t, 0.5, newly[0].KWH, 1e-9)
		assert.Nil(t, newly[0].DynCost)
	})

	t.Run("meter reset books invalid", func(t *testing.T) {
		s := testStore()
		priceSlot(s, slotStart, 0.10, 0.30)
		require.True(t, s.AddSample(slotStart, 100))
		require.True(t, s.AddSample(slotStart.Add(types.SlotDuration), 5))

		newly := s.FinalizeDueSlots(slotStart.Add(types.SlotDuration + 2*time.Minute))
		require.Len(t, newly, 1)
		assert.Equal(t, types.SlotStatusInvalid, newly[0].Status)
		assert.Zero(t, newly[0].KWH)
	})

	t.Run("gap before earliest sample books missing_samples", func(t *testing.T) {
		s := testStore()
		// earliest sample mid-slot: the slot boundary before it has no reading
		require.True(t, s.AddSample(slotStart.Add(5*time.Minute), 100))
		require.True(t, s.AddSample(slotStart.Add(types.SlotDuration), 101))

		newly := s.FinalizeDueSlots(slotStart.Add(types.SlotDuration + 2*time.Minute))
		require.Len(t, newly, 1)
		assert.Equal(t, types.SlotStatusMissingSamples, newly[0].Status)
	})

	t.Run("fewer than two samples books nothing", func(t *testing.T) {
		s := testStore()
		require.True(t, s.AddSample(slotStart, 100))
		assert.Empty(t, s.FinalizeDueSlots(slotStart.Add(time.Hour)))
	})
}

func TestFinalizeDueSlotsSweepsGaps(t *testing.T) {
	s := testStore()
	priceSlot(s, slotStart, 0.10, 0.30)
	priceSlot(s, slotStart.Add(2*types.SlotDuration), 0.20, 0.30)

	// samples spanning three slots with no reading change in the middle one
	require.True(t, s.AddSample(slotStart, 100))
	require.True(t, s.AddSample(slotStart.Add(types.SlotDuration), 101))
	require.True(t, s.AddSample(slotStart.Add(3*types.SlotDuration), 102))

	newly := s.FinalizeDueSlots(slotStart.Add(3*types.SlotDuration + 2*time.Minute))
	require.Len(t, newly, 3)

	assert.Equal(t, types.SlotStatusOK, newly[0].Status)
	// middle slot has no price stored
	assert.Equal(t, types.SlotStatusUnpriced, newly[1].Status)
	assert.Equal(t, types.SlotStatusOK, newly[2].Status)

	// consumption of the sample gap lands where the boundary readings put it
	assert.InDelta(t, 1.0, newly[0].KWH, 1e-9)
	assert.InDelta(t, 0.0, newly[1].KWH, 1e-9)
	assert.InDelta(t, 1.0, newly[2].KWH, 1e-9)
}

func TestFinalizeDueSlotsAfterReload(t *testing.T) {
	s := testStore()
	priceSlot(s, slotStart, 0.10, 0.30)
	priceSlot(s, slotStart.Add(types.SlotDuration), 0.10, 0.30)

	require.True(t, s.AddSample(slotStart, 100))
	require.True(t, s.AddSample(slotStart.Add(types.SlotDuration), 101))

	newly := s.FinalizeDueSlots(slotStart.Add(types.SlotDuration + 2*time.Minute))
	require.Len(t, newly, 1)

	// restart: snapshot, load into a fresh store, more samples arrive
	doc := s.Snapshot()
	s2 := testStore()
	s2.Load(doc)

	require.True(t, s2.AddSample(slotStart.Add(2*types.SlotDuration), 102))
	newly = s2.FinalizeDueSlots(slotStart.Add(2*types.SlotDuration + 2*time.Minute))
	require.Len(t, newly, 1)
	assert.Equal(t, slotStart.Add(types.SlotDuration), newly[0].Start)

	// the pre-restart slot was not booked again
	_, _, booked := s2.Counts()
	assert.Equal(t, 2, booked)
}
