package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/station-sentinel/internal/adapter/sqlite"
	"github.com/couchcryptid/station-sentinel/internal/domain"
	"github.com/couchcryptid/station-sentinel/internal/observability"
)

// maxFetchAttempts bounds the in-cycle retries before a cycle is abandoned
// until the next tick.
const maxFetchAttempts = 3

// Fetcher retrieves one feed document.
type Fetcher interface {
	Fetch(ctx context.Context) ([]domain.Station, []domain.ObservationSample, error)
}

// Store is the collector's write surface.
type Store interface {
	UpsertStations(ctx context.Context, stations []domain.Station) error
	UpsertObservations(ctx context.Context, samples []domain.ObservationSample) (int, error)
	LogCollection(ctx context.Context, entry sqlite.CollectionEntry) error
}

// Collector runs the periodic fetch-and-store loop.
type Collector struct {
	fetcher  Fetcher
	store    Store
	logger   *slog.Logger
	metrics  *observability.Metrics
	interval time.Duration
	ready    atomic.Bool
}

// NewCollector creates a Collector with the given fetch cadence.
func NewCollector(fetcher Fetcher, store Store, logger *slog.Logger, metrics *observability.Metrics, interval time.Duration) *Collector {
	return &Collector{
		fetcher:  fetcher,
		store:    store,
		logger:   logger,
		metrics:  metrics,
		interval: interval,
	}
}

// CheckReadiness returns nil once at least one cycle has stored data.
func (c *Collector) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("collector has not stored any observations yet")
	}
	return nil
}

// Run collects immediately, then on every tick until the context is
// cancelled. A failed cycle is logged and retried on the next tick.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("collector started", "interval", c.interval)
	c.metrics.CollectorRunning.Set(1)
	defer c.metrics.CollectorRunning.Set(0)

	c.collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("collector stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

// collect runs one fetch-and-store cycle, retrying transient fetch failures
// with exponential backoff within the cycle.
func (c *Collector) collect(ctx context.Context) {
	stations, samples, err := c.fetchWithRetry(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.metrics.CollectorFetches.WithLabelValues("error").Inc()
		c.logger.Error("feed fetch failed", "error", err)
		c.logEntry(ctx, sqlite.CollectionEntry{
			FetchedAt: domain.Now(),
			Outcome:   "error",
			Detail:    err.Error(),
		})
		return
	}
	c.metrics.CollectorFetches.WithLabelValues("success").Inc()

	if err := c.store.UpsertStations(ctx, stations); err != nil {
		c.logger.Error("station upsert failed", "error", err)
		return
	}
	written, err := c.store.UpsertObservations(ctx, samples)
	if err != nil {
		c.logger.Error("observation upsert failed", "error", err, "written", written)
		return
	}
	c.metrics.ObservationsUpserted.Add(float64(written))
	c.logEntry(ctx, sqlite.CollectionEntry{
		FetchedAt:    domain.Now(),
		Stations:     len(stations),
		Observations: written,
		Outcome:      "success",
	})
	if written > 0 {
		c.ready.Store(true)
	}
	c.logger.Info("collection cycle complete", "stations", len(stations), "observations", written)
}

// fetchWithRetry attempts the fetch up to maxFetchAttempts times.
// Backoff starts at 200ms, doubles each retry, and caps at 5s.
func (c *Collector) fetchWithRetry(ctx context.Context) ([]domain.Station, []domain.ObservationSample, error) {
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		stations, samples, err := c.fetcher.Fetch(ctx)
		if err == nil {
			return stations, samples, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, nil, err
		}
		c.logger.Warn("feed fetch attempt failed", "attempt", attempt, "error", err)
		if attempt < maxFetchAttempts && !sleepWithContext(ctx, backoff) {
			return nil, nil, err
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
	return nil, nil, fmt.Errorf("feed fetch failed after %d attempts: %w", maxFetchAttempts, lastErr)
}

func (c *Collector) logEntry(ctx context.Context, entry sqlite.CollectionEntry) {
	if err := c.store.LogCollection(ctx, entry); err != nil {
		c.logger.Warn("collection log write failed", "error", err)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
