// Package pipeline orchestrates detection runs: it fans out over the station
// registry with bounded concurrency, runs the configured detector per
// variable, and optionally verifies flagged points against neighbor trends.
// One station's failure never aborts the batch.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/station-sentinel/internal/detect"
	"github.com/couchcryptid/station-sentinel/internal/domain"
	"github.com/couchcryptid/station-sentinel/internal/observability"
	"github.com/couchcryptid/station-sentinel/internal/verify"
)

// minWindowSamples is the smallest window worth running detectors on.
const minWindowSamples = 3

// Verifier classifies a flagged point by correlating the station's short-term
// trend against its geographic neighbors.
type Verifier interface {
	VerifyTrend(ctx context.Context, stationID string, ts time.Time, variable string, windowMinutes int) domain.TrendVerification
}

// Options tunes one Orchestrator. Zero values fall back to defaults.
type Options struct {
	Method              string
	Variables           map[string]domain.VariableMeta
	SpatialVerify       bool
	VerifyWindowMinutes int
	MaxConcurrent       int
	StationTimeout      time.Duration
}

// Orchestrator runs detection batches against a data provider.
type Orchestrator struct {
	provider domain.DataProvider
	router   *detect.Router
	verifier Verifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	opts     Options

	ready atomic.Bool
}

// New creates an Orchestrator. The verifier may be nil when spatial
// verification is disabled; records then keep an unset classification.
func New(provider domain.DataProvider, router *detect.Router, verifier Verifier, logger *slog.Logger, metrics *observability.Metrics, opts Options) (*Orchestrator, error) {
	if opts.Method == "" {
		opts.Method = detect.DefaultMethod
	}
	if _, err := router.Get(opts.Method); err != nil {
		return nil, err
	}
	if opts.Variables == nil {
		opts.Variables = domain.DefaultVariableMeta()
	}
	if opts.VerifyWindowMinutes <= 0 {
		opts.VerifyWindowMinutes = 30
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.SpatialVerify && verifier == nil {
		return nil, domain.NewValidationError("spatial verification enabled without a verifier")
	}
	return &Orchestrator{
		provider: provider,
		router:   router,
		verifier: verifier,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
	}, nil
}

// CheckReadiness reports whether at least one detection batch has completed.
func (o *Orchestrator) CheckReadiness(ctx context.Context) error {
	if !o.ready.Load() {
		return fmt.Errorf("no detection run has completed yet")
	}
	return nil
}

// DetectAll runs detection for every registered station within the window,
// with at most MaxConcurrent stations in flight and a per-station timeout.
// Reports come back in registry order.
func (o *Orchestrator) DetectAll(ctx context.Context, w Window) ([]domain.StationReport, error) {
	stations, err := o.provider.GetAllStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load station registry: %w", err)
	}

	o.metrics.RunRunning.Set(1)
	defer o.metrics.RunRunning.Set(0)
	runStart := time.Now()

	reports := make([]domain.StationReport, len(stations))
	var g errgroup.Group
	g.SetLimit(o.opts.MaxConcurrent)
	for i, station := range stations {
		g.Go(func() error {
			sctx := ctx
			if o.opts.StationTimeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, o.opts.StationTimeout)
				defer cancel()
			}
			reports[i] = o.DetectStation(sctx, station, w)
			return nil
		})
	}
	g.Wait() // workers never return errors; failures are per-station statuses

	o.metrics.RunDuration.Observe(time.Since(runStart).Seconds())
	o.ready.Store(true)
	o.logger.Info("detection run complete",
		"stations", len(stations),
		"window_start", w.Start,
		"window_end", w.End,
		"duration", time.Since(runStart),
	)
	return reports, nil
}

// DetectStation runs every configured detector over one station's window and
// returns its report. Provider failures and short windows become statuses.
func (o *Orchestrator) DetectStation(ctx context.Context, station domain.Station, w Window) domain.StationReport {
	start := time.Now()
	defer func() {
		o.metrics.StationsChecked.Inc()
		o.metrics.StationDuration.Observe(time.Since(start).Seconds())
	}()

	report := domain.StationReport{
		StationID:   station.ID,
		StationName: station.Name,
		Status:      domain.StatusOK,
		WindowStart: w.Start,
		WindowEnd:   w.End,
	}

	window, err := o.provider.GetWindow(ctx, station.ID, w.Start, w.End)
	if err != nil {
		o.logger.Warn("window fetch failed", "station_id", station.ID, "error", err)
		report.Status = domain.StatusError
		report.Error = err.Error()
		return report
	}

	report.SampleCount = window.Len()
	if window.Len() == 0 {
		report.Status = domain.StatusNoData
		return report
	}
	if window.Len() < minWindowSamples {
		report.Status = domain.StatusInsufficientData
		return report
	}

	for _, variable := range o.monitoredVariables() {
		meta := o.opts.Variables[variable]
		anomalies, ok := o.detectVariable(ctx, station, window, variable, meta)
		if !ok {
			continue
		}
		if report.Anomalies == nil {
			report.Anomalies = make(map[string]domain.VariableAnomalies)
		}
		report.Anomalies[variable] = anomalies
		report.HasAnomaly = true
	}
	return report
}

// monitoredVariables returns the configured variables, canonical ones first in
// report order, any extras sorted after them.
func (o *Orchestrator) monitoredVariables() []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range domain.Variables() {
		if _, ok := o.opts.Variables[v]; ok {
			out = append(out, v)
			seen[v] = true
		}
	}
	var extras []string
	for v := range o.opts.Variables {
		if !seen[v] {
			extras = append(extras, v)
		}
	}
	sort.Strings(extras)
	return append(out, extras...)
}

// detectVariable runs the primary detector plus the optional fixed-delta step
// check over one variable. The second return is false when the variable
// produced nothing reportable: absent from the window, a failed fit, or no
// flagged points.
func (o *Orchestrator) detectVariable(ctx context.Context, station domain.Station, window domain.DetectionWindow, variable string, meta domain.VariableMeta) (domain.VariableAnomalies, bool) {
	values := window.Series(variable)
	if allMissing(values) {
		return domain.VariableAnomalies{}, false
	}

	strategy, err := o.router.GetWithThreshold(o.opts.Method, meta.Threshold)
	if err != nil {
		o.logger.Error("strategy lookup failed", "method", o.opts.Method, "error", err)
		return domain.VariableAnomalies{}, false
	}

	res := strategy.Detect(values)
	if res.Failed() {
		o.metrics.DetectorFailures.WithLabelValues(o.opts.Method).Inc()
		o.logger.Warn("detector failed",
			"station_id", station.ID,
			"variable", variable,
			"method", o.opts.Method,
			"reason", res.Diagnostics.FailureReason,
		)
		return domain.VariableAnomalies{}, false
	}

	mask := res.Mask
	if meta.SuddenDelta != nil {
		step := detect.SuddenChange(values, *meta.SuddenDelta)
		if !step.Failed() {
			for i := range mask {
				mask[i] = mask[i] || step.Mask[i]
			}
		}
	}

	var records []domain.AnomalyRecord
	for i, flagged := range mask {
		if !flagged {
			continue
		}
		rec := domain.AnomalyRecord{
			Time:      window.Samples[i].Time,
			Variable:  variable,
			Value:     values[i],
			Deviation: deviationOf(values[i], res.Diagnostics.Stats),
		}
		if o.opts.SpatialVerify {
			tv := o.verifier.VerifyTrend(ctx, station.ID, rec.Time, variable, o.opts.VerifyWindowMinutes)
			o.metrics.Verifications.WithLabelValues(string(tv.Status)).Inc()
			rec = verify.Classify(rec, tv)
		}
		o.metrics.AnomaliesFound.WithLabelValues(variable, classificationLabel(rec.Classification)).Inc()
		records = append(records, rec)
	}
	if len(records) == 0 {
		return domain.VariableAnomalies{}, false
	}

	name := meta.Name
	if name == "" {
		name = variable
	}
	return domain.VariableAnomalies{
		Name:       name,
		Unit:       meta.Unit,
		Count:      len(records),
		Method:     o.opts.Method,
		Statistics: res.Diagnostics.Stats,
		Records:    records,
	}, true
}

// deviationOf expresses how far a value sits from the window's center in
// units of its robust spread. Falls back from median/MAD to mean/std; zero
// spread yields zero.
func deviationOf(value float64, stats map[string]float64) float64 {
	center, ok := stats["median"]
	spread := stats["mad_scaled"]
	if !ok || spread == 0 {
		if m, mok := stats["mean"]; mok {
			center = m
			spread = stats["std"]
		}
	}
	if spread <= 0 {
		return 0
	}
	d := value - center
	if d < 0 {
		d = -d
	}
	return d / spread
}

func classificationLabel(c domain.Classification) string {
	if c == domain.ClassUnset {
		return "unclassified"
	}
	return string(c)
}

func allMissing(values []float64) bool {
	for _, v := range values {
		if v == v { // not NaN
			return false
		}
	}
	return true
}
