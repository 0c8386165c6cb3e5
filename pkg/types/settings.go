package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Defaults for the per-instance configuration.
const (
	DefaultPublishTime    = "18:15"
	DefaultPriceKeepDays  = 7
	DefaultSampleKeepDays = 14
	DefaultBookedKeepDays = 400
	DefaultMinSampleGapS  = 10
)

// DefaultAllInComponents is the documented set of components that sum to the
// all-in import price. Credits (feed_in) and the upstream integrated total are
// deliberately excluded; the list is policy, not physics.
var DefaultAllInComponents = []string{
	ComponentElectricity,
	ComponentGrid,
	ComponentRegionalFees,
	ComponentMetering,
	ComponentRefundStorage,
}

// Settings is the per-instance configuration for one tariff integration.
type Settings struct {
	InstanceID         string   `json:"instanceID"`
	TariffName         string   `json:"tariffName"`
	BaselineTariffName string   `json:"baselineTariffName,omitempty"`
	PublishTime        string   `json:"publishTime"` // local "HH:MM"
	AllInComponents    []string `json:"allInComponents"`
	PriceKeepDays      int      `json:"priceKeepDays"`
	SampleKeepDays     int      `json:"sampleKeepDays"`
	BookedKeepDays     int      `json:"bookedKeepDays"`
	MinSampleGapS      int      `json:"minSampleGapS"`

	// Grade thresholds: deviation vs reference average (percent) below which a
	// slot earns grade 1..4; anything above T4 is grade 5.
	GradeT1 float64 `json:"gradeT1"`
	GradeT2 float64 `json:"gradeT2"`
	GradeT3 float64 `json:"gradeT3"`
	GradeT4 float64 `json:"gradeT4"`
}

// WithDefaults fills zero-valued fields with the documented defaults.
func (s Settings) WithDefaults() Settings {
	if s.PublishTime == "" {
		s.PublishTime = DefaultPublishTime
	}
	if len(s.AllInComponents) == 0 {
		s.AllInComponents = DefaultAllInComponents
	}
	if s.PriceKeepDays <= 0 {
		s.PriceKeepDays = DefaultPriceKeepDays
	}
	if s.SampleKeepDays <= 0 {
		s.SampleKeepDays = DefaultSampleKeepDays
	}
	if s.BookedKeepDays <= 0 {
		s.BookedKeepDays = DefaultBookedKeepDays
	}
	if s.MinSampleGapS <= 0 {
		s.MinSampleGapS = DefaultMinSampleGapS
	}
	if s.GradeT1 == 0 && s.GradeT2 == 0 && s.GradeT3 == 0 && s.GradeT4 == 0 {
		s.GradeT1, s.GradeT2, s.GradeT3, s.GradeT4 = -20, -10, 10, 25
	}
	return s
}

// ParsePublishTime parses the local "HH:MM" publish time.
func (s Settings) ParsePublishTime() (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s.PublishTime), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid publish time %q", s.PublishTime)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid publish hour %q", s.PublishTime)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid publish minute %q", s.PublishTime)
	}
	return hour, minute, nil
}
