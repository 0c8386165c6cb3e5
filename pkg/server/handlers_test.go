package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tariffsaver/tariffsaver/pkg/coordinator"
	"github.com/tariffsaver/tariffsaver/pkg/storage/storagemock"
	"github.com/tariffsaver/tariffsaver/pkg/types"
)

type fixedFetcher struct {
	records map[string][]map[string]any
}

func (f *fixedFetcher) FetchPrices(_ context.Context, tariffName string) ([]map[string]any, error) {
	return f.records[tariffName], nil
}

func record(start time.Time, elec float64) map[string]any {
	return map[string]any{
		"start_timestamp": start.UTC().Format(time.RFC3339),
		"electricity":     []any{map[string]any{"unit": "CHF_kWh", "value": elec}},
	}
}

func testServer(t *testing.T) (*Server, *coordinator.Coordinator) {
	t.Helper()

	slot := types.FloorSlot(time.Now())
	records := make([]map[string]any, 0, 16)
	baseRecords := make([]map[string]any, 0, 16)
	for i := range 16 {
		records = append(records, record(slot.Add(time.Duration(i)*types.SlotDuration), 0.10+float64(i)*0.01))
		baseRecords = append(baseRecords, record(slot.Add(time.Duration(i)*types.SlotDuration), 0.30))
	}

	c := coordinator.New(types.Settings{
		InstanceID:         "home",
		TariffName:         "dynamic_basic",
		BaselineTariffName: "static_basic",
	}, time.UTC, &fixedFetcher{records: map[string][]map[string]any{
		"dynamic_basic": records,
		"static_basic":  baseRecords,
	}}, storagemock.New())
	c.FetchCycle(context.Background(), true)

	return New(c), c
}

func doRequest(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	var body map[string]any
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHandlePrices(t *testing.T) {
	srv, _ := testServer(t)

	w, body := doRequest(t, srv, "/api/prices")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dynamic_basic", body["tariff"])
	assert.Len(t, body["slots"], 16)
	assert.Len(t, body["baselineSlots"], 16)
	assert.NotEmpty(t, body["devVsBaselinePercent"])
}

func TestHandlePricesNow(t *testing.T) {
	srv, _ := testServer(t)

	w, body := doRequest(t, srv, "/api/prices/now")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, body, "slot")
	assert.Greater(t, body["refAvgCHFPerKWH"].(float64), 0.0)
	assert.Contains(t, body, "grade")
	assert.Contains(t, body, "stars")
}

func TestHandlePricesWindows(t *testing.T) {
	srv, _ := testServer(t)

	w, body := doRequest(t, srv, "/api/prices/windows")
	require.Equal(t, http.StatusOK, w.Code)

	windows, ok := body["windows"].(map[string]any)
	require.True(t, ok)
	// 16 future slots support the 30m, 1h, 2h and 3h windows
	assert.Len(t, windows, 4)
	for _, key := range []string{"30m0s", "1h0m0s", "2h0m0s", "3h0m0s"} {
		assert.Contains(t, windows, key)
	}
	// baseline was fetched, so the savings estimate is present
	assert.Contains(t, body, "savingsNext24hCHF")
}

func TestHandleCosts(t *testing.T) {
	srv, c := testServer(t)

	t.Run("bad period", func(t *testing.T) {
		w, _ := doRequest(t, srv, "/api/costs?period=decade")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing period", func(t *testing.T) {
		w, _ := doRequest(t, srv, "/api/costs")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no booked data", func(t *testing.T) {
		w, body := doRequest(t, srv, "/api/costs?period=year")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, body["available"])
	})

	t.Run("with booked data", func(t *testing.T) {
		slot := types.FloorSlot(time.Now().Add(-time.Hour))
		c.Store().UpsertPriceSlot(slot,
			types.Components{types.ComponentElectricity: 0.10},
			types.Components{types.ComponentElectricity: 0.30})
		c.OnSample(context.Background(), slot, 100)
		c.OnSample(context.Background(), slot.Add(types.SlotDuration), 101)

		// the year window keeps this test clear of the local midnight boundary
		w, body := doRequest(t, srv, "/api/costs?period=year")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, body["available"])
		assert.InDelta(t, 0.10, body["allInDynCHF"].(float64), 1e-9)
		assert.InDelta(t, 0.20, body["allInSavCHF"].(float64), 1e-9)
	})
}

func TestHandleDiagnostics(t *testing.T) {
	srv, _ := testServer(t)

	w, body := doRequest(t, srv, "/api/diagnostics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "home", body["instanceID"])
	assert.Equal(t, "dynamic_basic", body["tariff"])
	assert.Contains(t, body, "lastAPISuccess")
	assert.Contains(t, body, "lastFetch")
}

func TestHealthzAndMetrics(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
