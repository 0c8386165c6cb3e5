// Package sampler feeds cumulative energy-meter readings into the booking
// pipeline by watching a Home-Assistant sensor entity.
package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/tariffsaver/tariffsaver/pkg/common"
	"github.com/tariffsaver/tariffsaver/pkg/log"
)

// EmitFunc receives one new meter observation.
type EmitFunc func(ts time.Time, cumulativeKWH float64)

// Source delivers (timestamp, cumulative kWh) observations until the context
// is canceled.
type Source interface {
	Run(ctx context.Context, emit EmitFunc) error
}

// HomeAssistant polls the Home-Assistant REST API for the state of one
// cumulative (total_increasing) energy sensor. A new last_updated timestamp
// counts as a new observation; duplicate polls are dropped here and the
// store's minimum-spacing rule bounds what gets retained.
type HomeAssistant struct {
	baseURL  string
	token    string
	entityID string
	interval time.Duration
	hc       *http.Client

	lastUpdated time.Time
}

// Configured sets up the Home-Assistant sample source based on flags.
func Configured() *HomeAssistant {
	baseURL := lflag.String("ha-url", "http://homeassistant.local:8123", "Base URL of the Home Assistant instance")
	token := lflag.String("ha-token", "", "Long-lived access token for the Home Assistant API")
	entityID := lflag.String("ha-energy-entity", "", "Entity ID of the cumulative consumption sensor (empty disables cost tracking)")
	interval := lflag.Duration("ha-poll-interval", 15*time.Second, "How often to poll the consumption sensor")

	h := &HomeAssistant{}

	lflag.Do(func() {
		h.baseURL = *baseURL
		h.token = *token
		h.entityID = *entityID
		h.interval = *interval
		h.hc = common.HTTPClient(10 * time.Second)
	})

	return h
}

// NewHomeAssistant builds a source directly, used by tests.
func NewHomeAssistant(baseURL, token, entityID string, interval time.Duration, hc *http.Client) *HomeAssistant {
	return &HomeAssistant{baseURL: baseURL, token: token, entityID: entityID, interval: interval, hc: hc}
}

// Enabled reports whether a consumption entity is configured.
func (h *HomeAssistant) Enabled() bool {
	return h.entityID != ""
}

// Run polls the sensor until ctx is canceled. Poll failures are logged and
// retried on the next tick; booking self-heals for future intervals once
// sampling resumes.
func (h *HomeAssistant) Run(ctx context.Context, emit EmitFunc) error {
	if !h.Enabled() {
		return fmt.Errorf("no consumption entity configured")
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ts, kwh, ok, err := h.poll(ctx)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "failed to poll consumption sensor",
					slog.String("entity", h.entityID), slog.Any("error", err))
				continue
			}
			if ok {
				emit(ts, kwh)
			}
		}
	}
}

func (h *HomeAssistant) poll(ctx context.Context) (time.Time, float64, bool, error) {
	url := h.baseURL + "/api/states/" + h.entityID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return time.Time{}, 0, false, fmt.Errorf("failed to build request: %w", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.hc.Do(req)
	if err != nil {
		return time.Time{}, 0, false, fmt.Errorf("state request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return time.Time{}, 0, false, fmt.Errorf("failed to read state response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, 0, false, fmt.Errorf("state request returned %d: %s", resp.StatusCode, string(body))
	}

	var state struct {
		State       string    `json:"state"`
		LastUpdated time.Time `json:"last_updated"`
	}
	if err := json.Unmarshal(body, &state); err != nil {
		return time.Time{}, 0, false, fmt.Errorf("failed to decode state: %w", err)
	}

	// unknown/unavailable show up as literal states, not errors
	if state.State == "unknown" || state.State == "unavailable" {
		return time.Time{}, 0, false, nil
	}
	kwh, err := strconv.ParseFloat(state.State, 64)
	if err != nil {
		return time.Time{}, 0, false, fmt.Errorf("non-numeric sensor state %q: %w", state.State, err)
	}

	if !state.LastUpdated.After(h.lastUpdated) {
		return time.Time{}, 0, false, nil
	}
	h.lastUpdated = state.LastUpdated
	return state.LastUpdated.UTC(), kwh, true, nil
}
