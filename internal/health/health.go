// Package health audits stations for chronic sensor degradation over
// multi-day windows: missing data, stalled sensors, and stuck readings.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/station-sentinel/internal/domain"
)

// Issue thresholds. A sensor reporting mostly exact zeros is probably
// stalled; one reporting mostly nothing has a transmission problem; one with
// almost no variance but still reporting is probably stuck.
const (
	maxZeroRatio      = 0.3
	maxNullRatio      = 0.5
	minVariance       = 0.1
	stuckNullRatioCap = 0.9
)

// Config tunes the health checker. SamplesPerHour is the expected collection
// cadence; Variables lists the variables audited for stall/stuck behaviour.
type Config struct {
	SamplesPerHour int
	Variables      []string
}

// DefaultConfig matches the collector's 10-minute cadence and audits wind
// speed, the variable most prone to bearing stalls.
func DefaultConfig() Config {
	return Config{
		SamplesPerHour: 6,
		Variables:      []string{domain.VarWindSpeed},
	}
}

// Checker runs long-term station audits against a data provider.
type Checker struct {
	provider domain.DataProvider
	cfg      Config
	logger   *slog.Logger
}

// New creates a Checker. Zero-valued config fields fall back to defaults.
func New(provider domain.DataProvider, cfg Config, logger *slog.Logger) *Checker {
	def := DefaultConfig()
	if cfg.SamplesPerHour <= 0 {
		cfg.SamplesPerHour = def.SamplesPerHour
	}
	if len(cfg.Variables) == 0 {
		cfg.Variables = def.Variables
	}
	return &Checker{provider: provider, cfg: cfg, logger: logger}
}

// CheckStation audits one station over the trailing days ending now.
// An empty window yields a no_data report, never an error.
func (c *Checker) CheckStation(ctx context.Context, station domain.Station, days int) domain.StationHealthReport {
	end := domain.Now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	expected := days * 24 * c.cfg.SamplesPerHour

	report := domain.StationHealthReport{
		StationID:       station.ID,
		Status:          domain.StatusOK,
		Days:            days,
		ExpectedSamples: expected,
		Severity:        domain.HealthHealthy,
	}

	window, err := c.provider.GetWindow(ctx, station.ID, start, end)
	if err != nil {
		c.logger.Warn("health window fetch failed", "station_id", station.ID, "error", err)
		report.Status = domain.StatusError
		return report
	}
	if window.Len() == 0 {
		report.Status = domain.StatusNoData
		return report
	}

	report.ObservedSamples = window.Len()
	if expected > 0 {
		report.Completeness = float64(window.Len()) / float64(expected)
	}

	for _, variable := range c.cfg.Variables {
		report.Issues = append(report.Issues, auditVariable(window, variable)...)
	}
	if len(report.Issues) > 0 {
		report.Severity = domain.HealthCritical
	}
	return report
}

// CheckAll audits every station in the registry. One station's failure never
// stops the batch.
func (c *Checker) CheckAll(ctx context.Context, days int) ([]domain.StationHealthReport, error) {
	stations, err := c.provider.GetAllStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load station registry: %w", err)
	}
	reports := make([]domain.StationHealthReport, 0, len(stations))
	for _, station := range stations {
		reports = append(reports, c.CheckStation(ctx, station, days))
	}
	return reports, nil
}

// auditVariable computes zero-ratio, null-ratio, and variance for one
// variable and maps them to issues.
func auditVariable(window domain.DetectionWindow, variable string) []domain.HealthIssue {
	total := window.Len()
	if total == 0 {
		return nil
	}

	var present []float64
	zeros := 0
	for _, sample := range window.Samples {
		v, ok := sample.Value(variable)
		if !ok {
			continue
		}
		present = append(present, v)
		if v == 0 {
			zeros++
		}
	}

	zeroRatio := float64(zeros) / float64(total)
	nullRatio := float64(total-len(present)) / float64(total)

	var issues []domain.HealthIssue
	if zeroRatio > maxZeroRatio {
		issues = append(issues, domain.HealthIssue{
			Variable: variable,
			Problem:  "possibly stalled",
			Detail:   fmt.Sprintf("%.0f%% of readings are exactly zero", zeroRatio*100),
		})
	}
	if nullRatio > maxNullRatio {
		issues = append(issues, domain.HealthIssue{
			Variable: variable,
			Problem:  "high missing rate",
			Detail:   fmt.Sprintf("%.0f%% of readings are missing", nullRatio*100),
		})
	}
	if variance(present) < minVariance && nullRatio < stuckNullRatioCap {
		issues = append(issues, domain.HealthIssue{
			Variable: variable,
			Problem:  "possibly stuck",
			Detail:   fmt.Sprintf("variance %.3f over %d readings", variance(present), len(present)),
		})
	}
	return issues
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	v := sumSq / float64(len(values))
	if math.IsNaN(v) {
		return 0
	}
	return v
}
