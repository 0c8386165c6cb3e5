package sampler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll(t *testing.T) {
	var state string
	var lastUpdated string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/states/sensor.energy_total", r.URL.Path)
		assert.Equal(t, "Bearer token123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"state":"` + state + `","last_updated":"` + lastUpdated + `"}`))
	}))
	defer srv.Close()

	h := NewHomeAssistant(srv.URL, "token123", "sensor.energy_total", time.Second, srv.Client())
	ctx := context.Background()

	t.Run("numeric state emits once", func(t *testing.T) {
		state, lastUpdated = "1234.5", "2026-03-01T10:00:00Z"

		ts, kwh, ok, err := h.poll(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, 1234.5, kwh, 1e-9)
		assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), ts)

		// unchanged last_updated is a duplicate poll
		_, _, ok, err = h.poll(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("new reading emits again", func(t *testing.T) {
		state, lastUpdated = "1234.9", "2026-03-01T10:01:00Z"

		_, kwh, ok, err := h.poll(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, 1234.9, kwh, 1e-9)
	})

	t.Run("unavailable state is skipped without error", func(t *testing.T) {
		state, lastUpdated = "unavailable", "2026-03-01T10:02:00Z"

		_, _, ok, err := h.poll(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		state = "unknown"
		_, _, ok, err = h.poll(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("non-numeric state errors", func(t *testing.T) {
		state, lastUpdated = "charging", "2026-03-01T10:03:00Z"

		_, _, _, err := h.poll(ctx)
		require.Error(t, err)
	})
}

func TestPollHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := NewHomeAssistant(srv.URL, "bad", "sensor.energy_total", time.Second, srv.Client())
	_, _, _, err := h.poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestRunRequiresEntity(t *testing.T) {
	h := NewHomeAssistant("http://unused", "", "", time.Second, http.DefaultClient)
	assert.False(t, h.Enabled())
	require.Error(t, h.Run(context.Background(), func(time.Time, float64) {}))
}

func TestRunEmits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"state":"42","last_updated":"2026-03-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	h := NewHomeAssistant(srv.URL, "", "sensor.energy_total", 10*time.Millisecond, srv.Client())

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan float64, 1)
	go func() {
		_ = h.Run(ctx, func(_ time.Time, kwh float64) {
			select {
			case got <- kwh:
			default:
			}
		})
	}()

	select {
	case kwh := <-got:
		assert.InDelta(t, 42, kwh, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("no sample emitted")
	}
	cancel()
}
