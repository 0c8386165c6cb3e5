package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tariffsaver/tariffsaver/pkg/types"
)

// Older documents store samples as [isoTimestamp, kwh] pairs and booked slots
// keyed by the *end* of the slot in local time.

type bookedFlat struct {
	KWH     float64 `json:"kwh"`
	DynCHF  float64 `json:"dyn_chf"`
	BaseCHF float64 `json:"base_chf"`
	Status  string  `json:"status"`
}

type priceFlat struct {
	Dyn  float64 `json:"dyn"`
	Base float64 `json:"base"`
}

// decodeV1 upgrades the flat electricity-only shape: price slots carried
// single dyn/base floats and booked costs were flat CHF totals.
func decodeV1(raw []byte) (types.Document, error) {
	var old struct {
		Samples     [][]any               `json:"samples"`
		BookedSlots map[string]bookedFlat `json:"booked_slots"`
		PriceSlots  map[string]priceFlat  `json:"price_slots"`
	}
	if err := json.Unmarshal(raw, &old); err != nil {
		return types.Document{}, fmt.Errorf("failed to decode v1 document: %w", err)
	}

	doc := types.Document{
		Version:    types.DocumentVersion,
		PriceSlots: make(map[string]types.PriceEntry, len(old.PriceSlots)),
	}
	for key, p := range old.PriceSlots {
		start, ok := reparseUTC(key)
		if !ok {
			continue
		}
		e := types.PriceEntry{}
		if p.Dyn != 0 {
			e.Dyn = types.Components{types.ComponentElectricity: p.Dyn}
		}
		if p.Base != 0 {
			e.Base = types.Components{types.ComponentElectricity: p.Base}
		}
		if e.Dyn == nil {
			continue
		}
		doc.PriceSlots[start] = e
	}
	doc.Samples = upgradeSamples(old.Samples)
	doc.Booked = upgradeBookedFlat(old.BookedSlots)
	return doc, nil
}

// decodeV2 upgrades the per-component price-slot shape; booked costs were
// still flat electricity CHF totals keyed by slot end.
func decodeV2(raw []byte) (types.Document, error) {
	var old struct {
		Samples     [][]any                     `json:"samples"`
		BookedSlots map[string]bookedFlat       `json:"booked_slots"`
		PriceSlots  map[string]types.PriceEntry `json:"price_slots"`
		LastSuccess *time.Time                  `json:"last_api_success_utc"`
	}
	if err := json.Unmarshal(raw, &old); err != nil {
		return types.Document{}, fmt.Errorf("failed to decode v2 document: %w", err)
	}

	doc := types.Document{
		Version:        types.DocumentVersion,
		PriceSlots:     make(map[string]types.PriceEntry, len(old.PriceSlots)),
		LastAPISuccess: old.LastSuccess,
	}
	for key, e := range old.PriceSlots {
		start, ok := reparseUTC(key)
		if !ok || len(e.Dyn) == 0 {
			continue
		}
		doc.PriceSlots[start] = e
	}
	doc.Samples = upgradeSamples(old.Samples)
	doc.Booked = upgradeBookedFlat(old.BookedSlots)
	return doc, nil
}

// reparseUTC normalizes an old map key (possibly in a local offset) to the
// canonical UTC RFC3339 key.
func reparseUTC(key string) (string, bool) {
	t, err := time.Parse(time.RFC3339, key)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func upgradeSamples(pairs [][]any) []types.SampleDoc {
	out := make([]types.SampleDoc, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			continue
		}
		iso, ok := pair[0].(string)
		if !ok {
			continue
		}
		kwh, ok := pair[1].(float64)
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339, iso)
		if err != nil {
			continue
		}
		out = append(out, types.SampleDoc{TS: ts.Unix(), KWH: kwh})
	}
	return out
}

// upgradeBookedFlat converts end-keyed flat-cost booked slots to the current
// start-keyed per-component shape. Flat costs become the electricity
// component; savings are derived where both costs exist.
func upgradeBookedFlat(old map[string]bookedFlat) []types.BookedSlotDoc {
	out := make([]types.BookedSlotDoc, 0, len(old))
	for endKey, b := range old {
		end, err := time.Parse(time.RFC3339, endKey)
		if err != nil {
			continue
		}
		start := end.UTC().Add(-types.SlotDuration)

		doc := types.BookedSlotDoc{
			Start:  start.Format(time.RFC3339),
			KWH:    b.KWH,
			Status: b.Status,
		}
		if b.DynCHF != 0 {
			doc.Dyn = types.Components{types.ComponentElectricity: b.DynCHF}
		}
		if b.BaseCHF != 0 {
			doc.Base = types.Components{types.ComponentElectricity: b.BaseCHF}
		}
		if b.DynCHF != 0 && b.BaseCHF != 0 {
			doc.Sav = types.Components{types.ComponentElectricity: b.BaseCHF - b.DynCHF}
		}
		out = append(out, doc)
	}
	return out
}
