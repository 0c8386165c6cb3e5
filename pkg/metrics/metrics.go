// Package metrics exposes Prometheus collectors for the fetch-and-book cycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FetchCycles counts upstream fetch cycles by result (ok, empty, error).
	FetchCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tariffsaver_fetch_cycles_total",
		Help: "Tariff fetch cycles by result.",
	}, []string{"result"})

	// BookedSlots counts finalized 15-minute slots by status.
	BookedSlots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tariffsaver_booked_slots_total",
		Help: "Finalized consumption slots by status.",
	}, []string{"status"})

	// Samples counts meter observations by outcome (stored, suppressed).
	Samples = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tariffsaver_samples_total",
		Help: "Consumption meter samples by outcome.",
	}, []string{"outcome"})

	// SaveFailures counts failed persistence writes. In-memory state stays
	// authoritative; the snapshot is retried on the next dirty cycle.
	SaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tariffsaver_save_failures_total",
		Help: "Failed state document writes.",
	})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
