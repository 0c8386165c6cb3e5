package types

import "time"

// DocumentVersion is the current on-disk schema version. Older versions are
// upgraded in memory on load; newer versions are a fatal load error.
const DocumentVersion = 3

// Document is the single persisted state document for one instance.
//
// Schema history:
//
//	v1: price slots carried flat electricity-only "dyn"/"base" floats and
//	    booked slots were keyed by local slot end with flat dyn_chf/base_chf.
//	v2: price slots became per-component maps, booked costs stayed flat.
//	v3: booked slots keyed by UTC slot start with per-component cost maps,
//	    samples as epoch seconds, last fetch success recorded.
type Document struct {
	Version        int                   `json:"version"`
	PriceSlots     map[string]PriceEntry `json:"price_slots"`
	Samples        []SampleDoc           `json:"samples"`
	Booked         []BookedSlotDoc       `json:"booked"`
	LastAPISuccess *time.Time            `json:"last_api_success_utc,omitempty"`
}

// SampleDoc is the persisted form of a Sample (epoch seconds keep the
// document compact; samples dominate its size).
type SampleDoc struct {
	TS  int64   `json:"ts"`
	KWH float64 `json:"kwh"`
}

// BookedSlotDoc is the persisted form of a BookedSlot.
type BookedSlotDoc struct {
	Start  string     `json:"start"` // RFC3339, UTC slot start
	KWH    float64    `json:"kwh"`
	Status string     `json:"status"`
	Dyn    Components `json:"dyn,omitempty"`
	Base   Components `json:"base,omitempty"`
	Sav    Components `json:"sav,omitempty"`
}
