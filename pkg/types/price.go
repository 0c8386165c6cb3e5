package types

import "time"

// SlotDuration is the atomic pricing and booking interval. Every stored
// price and every booked consumption record covers exactly one slot.
const SlotDuration = 15 * time.Minute

// Well-known tariff component names as published by the upstream API.
const (
	ComponentElectricity   = "electricity"
	ComponentGrid          = "grid"
	ComponentRegionalFees  = "regional_fees"
	ComponentMetering      = "metering"
	ComponentRefundStorage = "refund_storage"
	ComponentIntegrated    = "integrated"
	ComponentFeedIn        = "feed_in"
)

// Components maps a tariff component name to a CHF/kWh (or CHF, for costs) value.
type Components map[string]float64

// ActiveTotal returns the all-in CHF/kWh total for a slot: the upstream
// "integrated" component when it is present and positive, otherwise the sum of
// all component values. A result <= 0 means the slot is unpriced.
func (c Components) ActiveTotal() float64 {
	if v, ok := c[ComponentIntegrated]; ok && v > 0 {
		return v
	}
	var sum float64
	for _, v := range c {
		sum += v
	}
	return sum
}

// Sum returns the total of the named components, ignoring absent ones.
func (c Components) Sum(names []string) float64 {
	var sum float64
	for _, n := range names {
		sum += c[n]
	}
	return sum
}

// Clone returns a copy of the map. Clone of nil is nil.
func (c Components) Clone() Components {
	if c == nil {
		return nil
	}
	out := make(Components, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// PriceSlot is a single 15-minute slot of an upstream price curve.
type PriceSlot struct {
	Start      time.Time  `json:"start"`
	Components Components `json:"components"`
}

// Electricity returns the energy-only CHF/kWh component, 0 if absent.
func (s PriceSlot) Electricity() float64 {
	return s.Components[ComponentElectricity]
}

// PriceEntry is a persisted price slot: the dynamic tariff components plus the
// optional baseline (comparison) tariff components for the same slot.
type PriceEntry struct {
	Dyn  Components `json:"dyn"`
	Base Components `json:"base,omitempty"`
}

// FloorSlot floors a timestamp to its 15-minute UTC slot boundary.
func FloorSlot(t time.Time) time.Time {
	return t.UTC().Truncate(SlotDuration)
}
