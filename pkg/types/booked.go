package types

import "time"

// SlotStatus describes why a booked slot could or could not be fully costed.
type SlotStatus string

const (
	// SlotStatusOK means both boundary samples and pricing existed and the
	// consumption delta was non-negative.
	SlotStatusOK SlotStatus = "ok"
	// SlotStatusUnpriced means consumption was measured but no positive price
	// existed for the slot. The kWh is kept for audit, costs are zero.
	SlotStatusUnpriced SlotStatus = "unpriced"
	// SlotStatusInvalid means the cumulative counter decreased across the slot
	// (meter reset or glitch). Never retried.
	SlotStatusInvalid SlotStatus = "invalid"
	// SlotStatusMissingSamples means a boundary reading could not be resolved
	// from the retained sample window.
	SlotStatusMissingSamples SlotStatus = "missing_samples"
)

// BookedSlot is a finalized 15-minute consumption slot. Once created for a
// given Start it is never mutated or replaced.
type BookedSlot struct {
	Start    time.Time  `json:"start"`
	KWH      float64    `json:"kwh"`
	Status   SlotStatus `json:"status"`
	DynCost  Components `json:"dyn,omitempty"`
	BaseCost Components `json:"base,omitempty"`
	Savings  Components `json:"sav,omitempty"`
}
