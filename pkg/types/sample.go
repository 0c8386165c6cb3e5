package types

import "time"

// Sample is one observation of a cumulative energy meter. KWH is a running
// total, not a delta. The meter is monotonic in principle only: a later sample
// with a smaller KWH means the meter reset, never negative consumption.
type Sample struct {
	TS  time.Time `json:"ts"`
	KWH float64   `json:"kwh"`
}
