// Package verify decides whether a flagged point is a genuine localized
// weather event, a suspected sensor fault, or a likely device failure by
// correlating the station's short-term trend against its geographic
// neighbors.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/station-sentinel/internal/domain"
	"github.com/couchcryptid/station-sentinel/internal/spatial"
)

const (
	// minAlignedSamples is the smallest aligned row count a correlation is
	// computed from.
	minAlignedSamples = 5

	// maxInterpolationGap is the longest run of consecutive missing samples
	// the aligner will fill; longer gaps drop the affected rows.
	maxInterpolationGap = 2

	// Fixed classification thresholds.
	weatherEventMedianCorr  = 0.6
	weatherEventMaxCorr     = 0.8
	deviceFailureMedianCorr = 0.3
)

// Classifier verifies anomalies against neighbor trends. It is stateless per
// call apart from the neighbor cache, which only memoizes registry lookups.
type Classifier struct {
	provider          domain.DataProvider
	neighbors         *spatial.NeighborCache
	logger            *slog.Logger
	maxDistanceKm     float64
	maxElevationDiffM float64
}

// New creates a Classifier with the default neighbor limits (100 km, 500 m).
func New(provider domain.DataProvider, logger *slog.Logger) *Classifier {
	return NewWithLimits(provider, logger, spatial.DefaultMaxDistanceKm, spatial.DefaultMaxElevationDiffM)
}

// NewWithLimits creates a Classifier with explicit neighbor limits.
func NewWithLimits(provider domain.DataProvider, logger *slog.Logger, maxDistanceKm, maxElevationDiffM float64) *Classifier {
	return &Classifier{
		provider:          provider,
		neighbors:         spatial.NewNeighborCache(1024),
		logger:            logger,
		maxDistanceKm:     maxDistanceKm,
		maxElevationDiffM: maxElevationDiffM,
	}
}

// VerifyTrend correlates the station's series in a symmetric window of
// windowMinutes around ts against each qualifying neighbor's series.
// Every failure mode is a typed status, never an error: the caller records
// the skip reason and moves on.
func (c *Classifier) VerifyTrend(ctx context.Context, stationID string, ts time.Time, variable string, windowMinutes int) domain.TrendVerification {
	stations, err := c.provider.GetAllStations(ctx)
	if err != nil {
		c.logger.Warn("station registry unavailable during verification", "station_id", stationID, "error", err)
		return domain.TrendVerification{Status: domain.VerifyNoData}
	}

	var target *domain.Station
	for i := range stations {
		if stations[i].ID == stationID {
			target = &stations[i]
			break
		}
	}
	if target == nil {
		return domain.TrendVerification{Status: domain.VerifyStationNotFound}
	}

	neighbors := c.neighbors.Neighbors(*target, stations, c.maxDistanceKm, c.maxElevationDiffM)
	if len(neighbors) == 0 {
		return domain.TrendVerification{Status: domain.VerifyNoNeighbors}
	}

	start := ts.Add(-time.Duration(windowMinutes) * time.Minute)
	end := ts.Add(time.Duration(windowMinutes) * time.Minute)

	targetSeries := c.fetchSeries(ctx, stationID, variable, start, end)
	if len(targetSeries) == 0 {
		return domain.TrendVerification{Status: domain.VerifyNoData}
	}

	neighborSeries := make(map[string]map[time.Time]float64, len(neighbors))
	for _, nb := range neighbors {
		series := c.fetchSeries(ctx, nb.ID, variable, start, end)
		if len(series) > 0 {
			neighborSeries[nb.ID] = series
		}
	}
	if len(neighborSeries) == 0 {
		return domain.TrendVerification{Status: domain.VerifyNoData}
	}

	aligned := alignSeries(targetSeries, neighborSeries)
	if len(aligned.target) < minAlignedSamples {
		return domain.TrendVerification{Status: domain.VerifyInsufficientPoints}
	}

	var correlations []float64
	var validIDs []string
	validSeries := make(map[string][]float64)
	for _, id := range aligned.neighborIDs {
		corr := pearson(aligned.target, aligned.neighbors[id])
		if math.IsNaN(corr) {
			continue
		}
		correlations = append(correlations, corr)
		validIDs = append(validIDs, id)
		validSeries[id] = aligned.neighbors[id]
	}
	if len(correlations) == 0 {
		return domain.TrendVerification{Status: domain.VerifyNoValidCorrelations}
	}

	return domain.TrendVerification{
		Status:            domain.VerifySuccess,
		MedianCorrelation: median(correlations),
		MaxCorrelation:    maxOf(correlations),
		NeighborCount:     len(correlations),
		NeighborIDs:       validIDs,
		TargetSeries:      aligned.target,
		NeighborSeries:    validSeries,
	}
}

// fetchSeries returns the station's present readings of one variable keyed by
// timestamp. Provider errors are logged and degrade to an empty series.
func (c *Classifier) fetchSeries(ctx context.Context, stationID, variable string, start, end time.Time) map[time.Time]float64 {
	window, err := c.provider.GetWindow(ctx, stationID, start, end)
	if err != nil {
		c.logger.Warn("window fetch failed during verification", "station_id", stationID, "error", err)
		return nil
	}
	series := make(map[time.Time]float64, window.Len())
	for _, sample := range window.Samples {
		if v, ok := sample.Value(variable); ok {
			series[sample.Time] = v
		}
	}
	return series
}

// Classify attaches a classification to a copy of the record based on the
// verification outcome. The input record is never mutated.
func Classify(rec domain.AnomalyRecord, tv domain.TrendVerification) domain.AnomalyRecord {
	out := rec
	switch {
	case tv.Status != domain.VerifySuccess:
		out.Classification = domain.ClassUnverified
		out.Rationale = fmt.Sprintf("verification skipped: %s", tv.Status)
	case tv.MedianCorrelation > weatherEventMedianCorr || tv.MaxCorrelation > weatherEventMaxCorr:
		out.Classification = domain.ClassWeatherEvent
		out.Rationale = fmt.Sprintf("trend consistent with %d neighbors (median corr %.2f, max %.2f)",
			tv.NeighborCount, tv.MedianCorrelation, tv.MaxCorrelation)
	case tv.MedianCorrelation < deviceFailureMedianCorr:
		out.Classification = domain.ClassDeviceFailure
		out.Rationale = fmt.Sprintf("trend inconsistent with %d neighbors (median corr %.2f)",
			tv.NeighborCount, tv.MedianCorrelation)
		// Retain the comparison data for diagnostic reporting.
		out.NeighborIDs = tv.NeighborIDs
		out.TargetSeries = tv.TargetSeries
		out.NeighborSeries = tv.NeighborSeries
	default:
		out.Classification = domain.ClassWarning
		out.Rationale = fmt.Sprintf("weak neighbor correlation (median corr %.2f)", tv.MedianCorrelation)
	}
	return out
}

// alignedSeries holds the target and neighbor series restricted to rows
// where every retained column has a value.
type alignedSeries struct {
	target      []float64
	neighborIDs []string
	neighbors   map[string][]float64
}

// alignSeries builds a shared timeline across the target and all neighbors,
// fills gaps of up to maxInterpolationGap consecutive missing samples by
// linear interpolation in time (nearest value at the edges), and drops any
// row that is still incomplete.
func alignSeries(target map[time.Time]float64, neighbors map[string]map[time.Time]float64) alignedSeries {
	timeSet := make(map[time.Time]struct{}, len(target))
	for t := range target {
		timeSet[t] = struct{}{}
	}
	for _, series := range neighbors {
		for t := range series {
			timeSet[t] = struct{}{}
		}
	}
	times := make([]time.Time, 0, len(timeSet))
	for t := range timeSet {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	neighborIDs := make([]string, 0, len(neighbors))
	for id := range neighbors {
		neighborIDs = append(neighborIDs, id)
	}
	sort.Strings(neighborIDs)

	columns := make(map[string][]float64, len(neighbors)+1)
	columns[""] = interpolate(columnOf(target, times), times)
	for _, id := range neighborIDs {
		columns[id] = interpolate(columnOf(neighbors[id], times), times)
	}

	// Drop rows where any column is still missing.
	out := alignedSeries{neighborIDs: neighborIDs, neighbors: make(map[string][]float64, len(neighborIDs))}
	for row := range times {
		complete := isFinite(columns[""][row])
		for _, id := range neighborIDs {
			if !isFinite(columns[id][row]) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		out.target = append(out.target, columns[""][row])
		for _, id := range neighborIDs {
			out.neighbors[id] = append(out.neighbors[id], columns[id][row])
		}
	}
	return out
}

func columnOf(series map[time.Time]float64, times []time.Time) []float64 {
	col := make([]float64, len(times))
	for i, t := range times {
		if v, ok := series[t]; ok {
			col[i] = v
		} else {
			col[i] = math.NaN()
		}
	}
	return col
}

// interpolate fills missing runs of up to maxInterpolationGap samples.
// Interior gaps are linearly interpolated in time between the surrounding
// values; leading and trailing gaps take the nearest value.
func interpolate(col []float64, times []time.Time) []float64 {
	out := make([]float64, len(col))
	copy(out, col)

	i := 0
	for i < len(out) {
		if isFinite(out[i]) {
			i++
			continue
		}
		gapStart := i
		for i < len(out) && !isFinite(out[i]) {
			i++
		}
		gapEnd := i // first present index after the gap, or len(out)
		if gapEnd-gapStart > maxInterpolationGap {
			continue
		}

		switch {
		case gapStart == 0 && gapEnd < len(out):
			for j := gapStart; j < gapEnd; j++ {
				out[j] = out[gapEnd]
			}
		case gapEnd == len(out) && gapStart > 0:
			for j := gapStart; j < gapEnd; j++ {
				out[j] = out[gapStart-1]
			}
		case gapStart > 0 && gapEnd < len(out):
			t0 := times[gapStart-1]
			t1 := times[gapEnd]
			v0 := out[gapStart-1]
			v1 := out[gapEnd]
			span := t1.Sub(t0).Seconds()
			for j := gapStart; j < gapEnd; j++ {
				if span == 0 {
					out[j] = v0
					continue
				}
				frac := times[j].Sub(t0).Seconds() / span
				out[j] = v0 + frac*(v1-v0)
			}
		}
	}
	return out
}

// pearson returns the Pearson correlation of two equal-length series, or NaN
// when it is undefined (zero variance on either side).
func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return math.NaN()
	}
	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varA*varB)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func maxOf(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}
