package tariff

import (
	"github.com/tariffsaver/tariffsaver/pkg/types"
)

// chfPerKWHUnits are the upstream units accepted as CHF/kWh. Everything else
// (monthly fees in CHF_m, percentages, ...) is ignored during normalization.
var chfPerKWHUnits = map[string]bool{
	"CHF_kWh": true,
	"CHF/kWh": true,
}

// timestampFields are record fields that never carry a price component.
var timestampFields = map[string]bool{
	"start_timestamp":       true,
	"end_timestamp":         true,
	"publication_timestamp": true,
}

// asNumber accepts the numeric shapes encoding/json and upstream payloads
// produce for a value.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// sumListUnit sums the CHF/kWh entries of a list-form component field like
//
//	"electricity": [{"unit":"CHF_m","value":3.0},{"unit":"CHF_kWh","value":0.11933}]
//
// The second return is false if the value is not a list or carries no
// CHF/kWh entry at all.
func sumListUnit(val any) (float64, bool) {
	list, ok := val.([]any)
	if !ok {
		return 0, false
	}
	var total float64
	var found bool
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		unit, ok := m["unit"].(string)
		if !ok || !chfPerKWHUnits[unit] {
			continue
		}
		if v, ok := asNumber(m["value"]); ok {
			total += v
			found = true
		}
	}
	return total, found
}

// unitValue reads a dict-form component field {"unit":..,"value":..}.
func unitValue(val any) (float64, bool) {
	m, ok := val.(map[string]any)
	if !ok {
		return 0, false
	}
	unit, ok := m["unit"].(string)
	if !ok || !chfPerKWHUnits[unit] {
		return 0, false
	}
	return asNumber(m["value"])
}

// ParseComponents normalizes one raw upstream price record into a map of
// component name to CHF/kWh. Component fields come in three shapes: a list of
// {unit,value} sub-components (summed over accepted units), a single
// {unit,value} object, or a bare number. Zero totals are treated as
// absent/unpublished, not free, and omitted.
func ParseComponents(record map[string]any) types.Components {
	out := types.Components{}
	for key, val := range record {
		if timestampFields[key] {
			continue
		}

		if sum, ok := sumListUnit(val); ok {
			if sum != 0 {
				out[key] = sum
			}
			continue
		}

		if v, ok := unitValue(val); ok {
			if v != 0 {
				out[key] = v
			}
			continue
		}

		if v, ok := asNumber(val); ok && v != 0 {
			out[key] = v
		}
	}
	return out
}
