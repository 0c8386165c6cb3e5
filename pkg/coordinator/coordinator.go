// Package coordinator drives one tariff instance: it loads and saves the
// persisted document, fetches the daily price curves on schedule, feeds meter
// samples into the booking sweep, and exposes the resulting state to the
// HTTP server.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/robfig/cron/v3"

	"github.com/tariffsaver/tariffsaver/pkg/log"
	"github.com/tariffsaver/tariffsaver/pkg/metrics"
	"github.com/tariffsaver/tariffsaver/pkg/sampler"
	"github.com/tariffsaver/tariffsaver/pkg/storage"
	"github.com/tariffsaver/tariffsaver/pkg/store"
	"github.com/tariffsaver/tariffsaver/pkg/tariff"
	"github.com/tariffsaver/tariffsaver/pkg/types"
)

// retryInterval is how often a fetch is retried after the publish time when
// the upstream has not published tomorrow's curve yet. Retries stop at local
// midnight; the booker keeps working off already stored slots regardless.
const retryInterval = 30 * time.Minute

// PriceFetcher is the part of the tariff client the coordinator needs.
type PriceFetcher interface {
	FetchPrices(ctx context.Context, tariffName string) ([]map[string]any, error)
}

// DayStats summarizes the last successful fetch for the API surface.
type DayStats struct {
	FetchedAt      time.Time `json:"fetchedAt"`
	ActiveAvg      float64   `json:"activeAvgCHFPerKWH"`
	BaselineAvg    float64   `json:"baselineAvgCHFPerKWH,omitempty"`
	SavingsNext24h float64   `json:"savingsNext24hCHF"`
	SavingsKnown   bool      `json:"savingsKnown"`
}

// Coordinator owns the store for one instance and serializes all mutation of
// it behind its own loop and callbacks.
type Coordinator struct {
	settings types.Settings
	loc      *time.Location

	client PriceFetcher
	db     storage.Database
	source *sampler.HomeAssistant

	st *store.Store

	mu         sync.Mutex
	active     []types.PriceSlot
	baseline   []types.PriceSlot
	stats      DayStats
	fetchedDay string // local YYYY-MM-DD with a curve covering tomorrow
}

// Configured sets up the coordinator based on flags. The collaborators come
// from their own Configured calls in main.
func Configured(client *tariff.Client, db storage.Database, source *sampler.HomeAssistant) *Coordinator {
	instanceID := lflag.String("instance-id", "default", "Instance ID used as the persistence key")
	tariffName := lflag.String("tariff-name", "", "Name of the dynamic tariff to track")
	baselineName := lflag.String("baseline-tariff-name", "", "Name of the static comparison tariff (empty disables savings)")
	publishTime := lflag.String("publish-time", types.DefaultPublishTime, "Local HH:MM at which tomorrow's prices are published")
	timezone := lflag.String("timezone", "Local", "IANA timezone for the publish schedule and calendar periods")

	c := &Coordinator{
		client: client,
		db:     db,
		source: source,
	}

	lflag.Do(func() {
		c.settings = types.Settings{
			InstanceID:         *instanceID,
			TariffName:         *tariffName,
			BaselineTariffName: *baselineName,
			PublishTime:        *publishTime,
		}.WithDefaults()

		loc, err := time.LoadLocation(*timezone)
		if err != nil {
			panic(fmt.Sprintf("invalid timezone %q: %v", *timezone, err))
		}
		c.loc = loc
		c.st = store.New(c.settings, loc)
	})

	return c
}

// New builds a coordinator directly, used by tests.
func New(settings types.Settings, loc *time.Location, client PriceFetcher, db storage.Database) *Coordinator {
	if loc == nil {
		loc = time.Local
	}
	return &Coordinator{
		settings: settings.WithDefaults(),
		loc:      loc,
		client:   client,
		db:       db,
		st:       store.New(settings, loc),
	}
}

// Store exposes the instance store for the HTTP handlers.
func (c *Coordinator) Store() *store.Store {
	return c.st
}

// Settings returns the instance settings.
func (c *Coordinator) Settings() types.Settings {
	return c.settings
}

// Curves returns the last fetched active and baseline curves.
func (c *Coordinator) Curves() (active, baseline []types.PriceSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.baseline
}

// Stats returns the summary of the last successful fetch.
func (c *Coordinator) Stats() DayStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Validate checks the configuration before Init.
func (c *Coordinator) Validate() error {
	if c.settings.TariffName == "" {
		return fmt.Errorf("tariff-name is required")
	}
	if _, _, err := c.settings.ParsePublishTime(); err != nil {
		return err
	}
	return nil
}

// Init loads the persisted document into the store. A missing document is a
// fresh start; a document written by a newer build aborts startup so state is
// never silently discarded.
func (c *Coordinator) Init(ctx context.Context) error {
	raw, err := c.db.LoadDocument(ctx, c.settings.InstanceID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Ctx(ctx).InfoContext(ctx, "no persisted state, starting fresh",
			slog.String("instanceID", c.settings.InstanceID))
		if ids, lerr := c.db.ListInstances(ctx); lerr == nil && len(ids) > 0 {
			// surfaces instance-id typos
			log.Ctx(ctx).InfoContext(ctx, "existing instances in storage", slog.Any("instanceIDs", ids))
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	doc, err := store.DecodeDocument(raw)
	if err != nil {
		return fmt.Errorf("failed to decode state for %s: %w", c.settings.InstanceID, err)
	}
	c.st.Load(doc)

	priceSlots, samples, booked := c.st.Counts()
	log.Ctx(ctx).InfoContext(ctx, "loaded persisted state",
		slog.String("instanceID", c.settings.InstanceID),
		slog.Int("docVersion", doc.Version),
		slog.Int("priceSlots", priceSlots),
		slog.Int("samples", samples),
		slog.Int("booked", booked))
	return nil
}

// Run blocks until ctx is canceled. It performs an immediate fetch, schedules
// the daily publish-time fetch, runs the retry loop, and consumes the sample
// source if one is configured.
func (c *Coordinator) Run(ctx context.Context) error {
	hour, minute, err := c.settings.ParsePublishTime()
	if err != nil {
		return err
	}

	// catch up immediately so a restart mid-day does not wait for publish time
	c.FetchCycle(ctx, false)

	sched := cron.New(cron.WithLocation(c.loc))
	_, err = sched.AddFunc(fmt.Sprintf("%d %d * * *", minute, hour), func() {
		c.FetchCycle(ctx, true)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule daily fetch: %w", err)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	if c.source != nil && c.source.Enabled() {
		go func() {
			if err := c.source.Run(ctx, func(ts time.Time, kwh float64) {
				c.OnSample(ctx, ts, kwh)
			}); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "sample source stopped", slog.Any("error", err))
			}
		}()
	} else {
		log.Ctx(ctx).InfoContext(ctx, "no consumption sensor configured, cost tracking disabled")
	}

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.SaveIfDirty(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			if c.retryDue(time.Now()) {
				c.FetchCycle(ctx, false)
			}
			c.SaveIfDirty(ctx)
		}
	}
}

// retryDue reports whether a fetch retry should run: after today's publish
// time, before local midnight, and only while tomorrow's curve is missing.
func (c *Coordinator) retryDue(now time.Time) bool {
	hour, minute, err := c.settings.ParsePublishTime()
	if err != nil {
		return false
	}
	local := now.In(c.loc)
	publish := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, c.loc)
	if local.Before(publish) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchedDay != local.Format("2006-01-02")
}

// FetchCycle fetches the active (and best-effort baseline) curves and merges
// them into the store. force bypasses the fetched-today short-circuit, used by
// the scheduled publish-time run.
func (c *Coordinator) FetchCycle(ctx context.Context, force bool) {
	local := time.Now().In(c.loc)
	today := local.Format("2006-01-02")

	c.mu.Lock()
	done := c.fetchedDay == today
	c.mu.Unlock()
	if done && !force {
		return
	}

	records, err := c.client.FetchPrices(ctx, c.settings.TariffName)
	if err != nil {
		metrics.FetchCycles.WithLabelValues("error").Inc()
		log.Ctx(ctx).WarnContext(ctx, "tariff fetch failed",
			slog.String("tariff", c.settings.TariffName), slog.Any("error", err))
		return
	}
	active := tariff.ParseSlots(records)
	if len(active) == 0 {
		metrics.FetchCycles.WithLabelValues("empty").Inc()
		log.Ctx(ctx).WarnContext(ctx, "tariff fetch returned no slots",
			slog.String("tariff", c.settings.TariffName))
		return
	}

	// The baseline is comparison-only. Its failure must never block price
	// storage, so it degrades to "no savings" silently.
	var baseline []types.PriceSlot
	if c.settings.BaselineTariffName != "" {
		baseRecords, err := c.client.FetchPrices(ctx, c.settings.BaselineTariffName)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "baseline tariff fetch failed",
				slog.String("tariff", c.settings.BaselineTariffName), slog.Any("error", err))
		} else {
			baseline = tariff.ParseSlots(baseRecords)
		}
	}

	c.merge(ctx, active, baseline)
	metrics.FetchCycles.WithLabelValues("ok").Inc()

	// a curve reaching into tomorrow means today's publish run succeeded
	tomorrow := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc).AddDate(0, 0, 1)
	covers := false
	for _, s := range active {
		if s.Electricity() > 0 && !s.Start.Before(tomorrow) {
			covers = true
			break
		}
	}

	now := time.Now()
	stats := DayStats{
		FetchedAt:   now.UTC(),
		ActiveAvg:   tariff.FutureAverage(active, now),
		BaselineAvg: tariff.FutureAverage(baseline, now),
	}
	stats.SavingsNext24h, stats.SavingsKnown = tariff.SavingsNext24h(active, baseline)

	c.mu.Lock()
	c.active = active
	c.baseline = baseline
	c.stats = stats
	if covers {
		c.fetchedDay = today
	}
	c.mu.Unlock()

	c.SaveIfDirty(ctx)
}

// merge upserts the priced slots into the store, pairing each with the
// baseline components for the same slot when available.
func (c *Coordinator) merge(ctx context.Context, active, baseline []types.PriceSlot) {
	// a baseline slot without a positive electricity price has nothing real
	// to compare against and must not produce baseline costs or savings
	baseByStart := make(map[time.Time]types.Components, len(baseline))
	for _, s := range baseline {
		if s.Electricity() <= 0 {
			continue
		}
		baseByStart[s.Start] = s.Components
	}

	var stored int
	for _, s := range active {
		// zero or negative electricity means the upstream had no real price
		// for the slot; storing it would book spurious zero costs
		if s.Electricity() <= 0 {
			continue
		}
		c.st.UpsertPriceSlot(s.Start, s.Components, baseByStart[s.Start])
		stored++
	}

	now := time.Now()
	c.st.Trim(now)
	c.st.SetLastAPISuccess(now)

	log.Ctx(ctx).InfoContext(ctx, "merged tariff curve",
		slog.String("tariff", c.settings.TariffName),
		slog.Int("fetched", len(active)),
		slog.Int("stored", stored),
		slog.Int("baseline", len(baseline)))
}

// OnSample ingests one meter observation and books every slot that became
// finalizable because of it.
func (c *Coordinator) OnSample(ctx context.Context, ts time.Time, kwh float64) {
	if c.st.AddSample(ts, kwh) {
		metrics.Samples.WithLabelValues("stored").Inc()
	} else {
		metrics.Samples.WithLabelValues("suppressed").Inc()
		return
	}

	newly := c.st.FinalizeDueSlots(time.Now())
	for _, b := range newly {
		metrics.BookedSlots.WithLabelValues(string(b.Status)).Inc()
		if b.Status != types.SlotStatusOK {
			log.Ctx(ctx).DebugContext(ctx, "booked slot without cost",
				slog.Time("slotStart", b.Start), slog.String("status", string(b.Status)))
		}
	}
	c.SaveIfDirty(ctx)
}

// SaveIfDirty snapshots and persists the store when it changed. A failed save
// re-flags the store so the snapshot is retried; in-memory state stays
// authoritative either way.
func (c *Coordinator) SaveIfDirty(ctx context.Context) {
	doc, ok := c.st.SnapshotIfDirty()
	if !ok {
		return
	}
	raw, err := store.EncodeDocument(doc)
	if err != nil {
		metrics.SaveFailures.Inc()
		c.st.MarkDirty()
		log.Ctx(ctx).ErrorContext(ctx, "failed to encode state", slog.Any("error", err))
		return
	}
	if err := c.db.SaveDocument(ctx, c.settings.InstanceID, raw); err != nil {
		metrics.SaveFailures.Inc()
		c.st.MarkDirty()
		log.Ctx(ctx).ErrorContext(ctx, "failed to save state",
			slog.String("instanceID", c.settings.InstanceID), slog.Any("error", err))
	}
}
