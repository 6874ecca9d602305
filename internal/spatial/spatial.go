// Package spatial implements geographic neighbor discovery and
// elevation-adjusted cross-station deviation scoring.
package spatial

import (
	"math"
	"sort"

	"github.com/couchcryptid/station-sentinel/internal/domain"
)

const (
	// earthRadiusKm is the mean Earth radius used for great-circle distance.
	earthRadiusKm = 6371

	// DefaultMaxDistanceKm is the default neighbor search radius.
	DefaultMaxDistanceKm = 100
	// DefaultMaxElevationDiffM is the default neighbor elevation cap.
	DefaultMaxElevationDiffM = 500

	// Environmental lapse rates used to project a neighbor's reading to the
	// target's elevation: temperature 0.65 °C per 100 m, pressure 1.2 hPa
	// per 10 m.
	temperatureLapsePerM = 0.65 / 100
	pressureLapsePerM    = 1.2 / 10

	madConsistency = 1.4826

	// spreadEpsilon avoids division by zero when all neighbor values are
	// identical (both MAD and standard deviation zero).
	spreadEpsilon = 1e-6
)

// Haversine returns the great-circle distance in kilometers between two
// latitude/longitude points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// FindNeighbors returns the stations within maxDistanceKm great-circle
// distance AND maxElevationDiffM elevation difference of the target,
// excluding the target itself. Order follows the input registry order, which
// keeps reports deterministic.
func FindNeighbors(target domain.Station, all []domain.Station, maxDistanceKm, maxElevationDiffM float64) []domain.Station {
	var neighbors []domain.Station
	for _, s := range all {
		if s.ID == target.ID {
			continue
		}
		if math.Abs(s.Elevation-target.Elevation) > maxElevationDiffM {
			continue
		}
		if Haversine(target.Latitude, target.Longitude, s.Latitude, s.Longitude) > maxDistanceKm {
			continue
		}
		neighbors = append(neighbors, s)
	}
	return neighbors
}

// ElevationAdjusted projects a neighbor's reading to the target's elevation.
// elevationDiffM is neighbor elevation minus target elevation. Only
// altitude-sensitive variables are adjusted; everything else passes through.
func ElevationAdjusted(value, elevationDiffM float64, variable string) float64 {
	switch variable {
	case domain.VarTemperature:
		return value + elevationDiffM*temperatureLapsePerM
	case domain.VarPressure:
		return value + elevationDiffM*pressureLapsePerM
	default:
		return value
	}
}

// Params configures a snapshot anomaly pass.
type Params struct {
	Threshold         float64
	MaxDistanceKm     float64
	MaxElevationDiffM float64
	MinNeighbors      int
}

// DefaultParams returns the stock snapshot detection parameters.
func DefaultParams() Params {
	return Params{
		Threshold:         3.0,
		MaxDistanceKm:     DefaultMaxDistanceKm,
		MaxElevationDiffM: DefaultMaxElevationDiffM,
		MinNeighbors:      2,
	}
}

// SnapshotAnomaly describes one station flagged against its neighbors at a
// single instant.
type SnapshotAnomaly struct {
	StationID      string   `json:"station_id"`
	Value          float64  `json:"value"`
	NeighborMedian float64  `json:"neighbor_median"`
	Deviation      float64  `json:"deviation"`
	NeighborCount  int      `json:"neighbor_count"`
	NeighborIDs    []string `json:"neighbor_ids"`
}

// DetectSnapshotAnomalies scores every station with a present reading against
// the elevation-adjusted median of its neighbors. The robust spread is
// 1.4826·MAD, falling back to the neighbor standard deviation when the MAD is
// zero, and to a small epsilon when both vanish. Stations with fewer than
// MinNeighbors valid neighbor values are skipped, not flagged.
func DetectSnapshotAnomalies(stations []domain.Station, snap domain.Snapshot, variable string, p Params) []SnapshotAnomaly {
	byID := make(map[string]domain.Station, len(stations))
	for _, s := range stations {
		byID[s.ID] = s
	}

	var anomalies []SnapshotAnomaly
	for _, target := range stations {
		sample, ok := snap.Samples[target.ID]
		if !ok {
			continue
		}
		value, ok := sample.Value(variable)
		if !ok {
			continue
		}

		neighbors := FindNeighbors(target, stations, p.MaxDistanceKm, p.MaxElevationDiffM)
		var adjusted []float64
		var usedIDs []string
		for _, nb := range neighbors {
			nbSample, ok := snap.Samples[nb.ID]
			if !ok {
				continue
			}
			nbValue, ok := nbSample.Value(variable)
			if !ok {
				continue
			}
			diff := nb.Elevation - target.Elevation
			adjusted = append(adjusted, ElevationAdjusted(nbValue, diff, variable))
			usedIDs = append(usedIDs, nb.ID)
		}
		if len(adjusted) < p.MinNeighbors {
			continue
		}

		med := median(adjusted)
		spread := scaledSpread(adjusted, med)
		dev := math.Abs(value-med) / spread
		if dev > p.Threshold {
			anomalies = append(anomalies, SnapshotAnomaly{
				StationID:      target.ID,
				Value:          value,
				NeighborMedian: med,
				Deviation:      dev,
				NeighborCount:  len(adjusted),
				NeighborIDs:    usedIDs,
			})
		}
	}
	return anomalies
}

// scaledSpread returns 1.4826·MAD of the values around med, with the
// standard-deviation and epsilon fallbacks.
func scaledSpread(values []float64, med float64) float64 {
	absDev := make([]float64, len(values))
	for i, v := range values {
		absDev[i] = math.Abs(v - med)
	}
	mad := median(absDev)
	if mad == 0 {
		mad = stddev(values)
	}
	if mad == 0 {
		mad = spreadEpsilon
	}
	return madConsistency * mad
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

func stddev(values []float64) float64 {
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
	return math.Sqrt(sumSq / float64(len(values)))
}
