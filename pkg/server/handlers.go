package server

import (
	"net/http"
	"time"

	"github.com/tariffsaver/tariffsaver/pkg/coordinator"
	"github.com/tariffsaver/tariffsaver/pkg/tariff"
	"github.com/tariffsaver/tariffsaver/pkg/types"
)

// windowSizes are the cheapest-window durations exposed by the API, in
// 15-minute slots (30m, 1h, 2h, 3h).
var windowSizes = []int{2, 4, 8, 12}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	active, baseline := s.coord.Curves()
	vsAvg, vsBase := tariff.Deviations(active, baseline, time.Now())
	writeJSON(w, struct {
		Tariff         string             `json:"tariff"`
		BaselineTariff string             `json:"baselineTariff,omitempty"`
		Slots          []types.PriceSlot  `json:"slots"`
		BaselineSlots  []types.PriceSlot  `json:"baselineSlots,omitempty"`
		DevVsAvg       map[string]float64 `json:"devVsAvgPercent"`
		DevVsBaseline  map[string]float64 `json:"devVsBaselinePercent"`
	}{
		Tariff:         s.coord.Settings().TariffName,
		BaselineTariff: s.coord.Settings().BaselineTariffName,
		Slots:          active,
		BaselineSlots:  baseline,
		DevVsAvg:       vsAvg,
		DevVsBaseline:  vsBase,
	})
}

func (s *Server) handlePricesNow(w http.ResponseWriter, r *http.Request) {
	active, _ := s.coord.Curves()
	now := time.Now()

	current, ok := tariff.CurrentSlot(active, now)
	if !ok {
		writeJSONError(w, "no price curve available", http.StatusNotFound)
		return
	}
	settings := s.coord.Settings()
	refAvg := tariff.FutureAverage(active, now)

	resp := struct {
		Slot         types.PriceSlot  `json:"slot"`
		Next         *types.PriceSlot `json:"next,omitempty"`
		AllInCHFKWH  float64          `json:"allInCHFPerKWH"`
		ActiveCHFKWH float64          `json:"activeTotalCHFPerKWH"`
		RefAvgCHFKWH float64          `json:"refAvgCHFPerKWH"`
		Grade        int              `json:"grade,omitempty"`
		Stars        string           `json:"stars,omitempty"`
	}{
		Slot:         current,
		AllInCHFKWH:  current.Components.Sum(settings.AllInComponents),
		ActiveCHFKWH: current.Components.ActiveTotal(),
		RefAvgCHFKWH: refAvg,
	}
	if next, ok := tariff.NextSlot(active, now); ok {
		resp.Next = &next
	}
	if refAvg > 0 && current.Electricity() > 0 {
		dev := (current.Electricity()/refAvg - 1.0) * 100.0
		resp.Grade = tariff.GradeFromDeviation(dev, settings)
		resp.Stars = tariff.StarsFromGrade(resp.Grade)
	}
	writeJSON(w, resp)
}

func (s *Server) handlePricesWindows(w http.ResponseWriter, r *http.Request) {
	active, _ := s.coord.Curves()
	now := time.Now()
	settings := s.coord.Settings()
	refAvg := tariff.FutureAverage(active, now)

	// only future slots are candidates; a cheap window in the past is useless
	future := make([]types.PriceSlot, 0, len(active))
	for _, slot := range active {
		if !slot.Start.Before(types.FloorSlot(now)) {
			future = append(future, slot)
		}
	}

	windows := make(map[string]tariff.Window, len(windowSizes))
	for _, size := range windowSizes {
		win, ok := tariff.CheapestWindow(future, size)
		if !ok {
			continue
		}
		dur := time.Duration(size) * types.SlotDuration
		windows[dur.String()] = win.Decorate(refAvg, settings)
	}
	if len(windows) == 0 {
		writeJSONError(w, "no price curve available", http.StatusNotFound)
		return
	}
	stats := s.coord.Stats()
	resp := struct {
		RefAvgCHFKWH   float64                  `json:"refAvgCHFPerKWH"`
		Windows        map[string]tariff.Window `json:"windows"`
		SavingsNext24h *float64                 `json:"savingsNext24hCHF,omitempty"`
	}{RefAvgCHFKWH: refAvg, Windows: windows}
	if stats.SavingsKnown {
		resp.SavingsNext24h = &stats.SavingsNext24h
	}
	writeJSON(w, resp)
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	period, err := types.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	bd, ok := s.coord.Store().PeriodBreakdown(period, time.Now())
	settings := s.coord.Settings()

	writeJSON(w, struct {
		Period    types.Period    `json:"period"`
		Available bool            `json:"available"`
		Breakdown types.Breakdown `json:"breakdown"`
		AllInDyn  float64         `json:"allInDynCHF"`
		AllInBase float64         `json:"allInBaseCHF"`
		AllInSav  float64         `json:"allInSavCHF"`
	}{
		Period:    period,
		Available: ok,
		Breakdown: bd,
		AllInDyn:  bd.Dyn.Sum(settings.AllInComponents),
		AllInBase: bd.Base.Sum(settings.AllInComponents),
		AllInSav:  bd.Sav.Sum(settings.AllInComponents),
	})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	st := s.coord.Store()
	priceSlots, samples, booked := st.Counts()
	stats := s.coord.Stats()

	resp := struct {
		InstanceID     string               `json:"instanceID"`
		Tariff         string               `json:"tariff"`
		PriceSlots     int                  `json:"priceSlots"`
		Samples        int                  `json:"samples"`
		Booked         int                  `json:"booked"`
		Dirty          bool                 `json:"dirty"`
		LastAPISuccess *time.Time           `json:"lastAPISuccess,omitempty"`
		LastFetch      coordinator.DayStats `json:"lastFetch"`
	}{
		InstanceID: s.coord.Settings().InstanceID,
		Tariff:     s.coord.Settings().TariffName,
		PriceSlots: priceSlots,
		Samples:    samples,
		Booked:     booked,
		Dirty:      st.Dirty(),
		LastFetch:  stats,
	}
	if t := st.LastAPISuccess(); !t.IsZero() {
		resp.LastAPISuccess = &t
	}
	writeJSON(w, resp)
}
