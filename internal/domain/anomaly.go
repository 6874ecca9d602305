package domain

import "time"

// Classification labels the verified nature of a flagged point.
type Classification string

const (
	// ClassUnset means verification has not run for this record.
	ClassUnset Classification = ""
	// ClassWeatherEvent means neighbors trend with the station; the reading
	// reflects a genuine localized weather event.
	ClassWeatherEvent Classification = "weather_event"
	// ClassDeviceFailure means the station disagrees with all neighbors;
	// the sensor is suspected failed. Critical.
	ClassDeviceFailure Classification = "device_failure"
	// ClassWarning means neighbor correlation was too weak to decide.
	ClassWarning Classification = "warning"
	// ClassUnverified means verification was skipped; Rationale carries why.
	ClassUnverified Classification = "unverified"
)

// AnomalyRecord is one flagged point in a station's detection window.
// Classification stays unset until spatial verification runs. Classification
// attaches to a copy of the record; records are never mutated in place.
type AnomalyRecord struct {
	Time           time.Time      `json:"time"`
	Variable       string         `json:"variable"`
	Value          float64        `json:"value"`
	Deviation      float64        `json:"deviation"`
	Classification Classification `json:"classification,omitempty"`
	Rationale      string         `json:"rationale,omitempty"`

	// Diagnostic payload retained for device-failure reporting: which
	// neighbors were compared and the aligned series that disagreed.
	NeighborIDs    []string             `json:"neighbor_ids,omitempty"`
	TargetSeries   []float64            `json:"target_series,omitempty"`
	NeighborSeries map[string][]float64 `json:"neighbor_series,omitempty"`
}

// VerificationStatus describes the outcome of a trend verification attempt.
type VerificationStatus string

const (
	VerifySuccess             VerificationStatus = "success"
	VerifyStationNotFound     VerificationStatus = "station_not_found"
	VerifyNoNeighbors         VerificationStatus = "no_neighbors"
	VerifyNoData              VerificationStatus = "no_data"
	VerifyInsufficientPoints  VerificationStatus = "insufficient_points"
	VerifyNoValidCorrelations VerificationStatus = "no_valid_correlations"
)

// TrendVerification is the result of correlating a station's short time
// series against its geographic neighbors around one flagged instant.
type TrendVerification struct {
	Status            VerificationStatus   `json:"status"`
	MedianCorrelation float64              `json:"median_correlation"`
	MaxCorrelation    float64              `json:"max_correlation"`
	NeighborCount     int                  `json:"neighbor_count"`
	NeighborIDs       []string             `json:"neighbor_ids,omitempty"`
	TargetSeries      []float64            `json:"target_series,omitempty"`
	NeighborSeries    map[string][]float64 `json:"neighbor_series,omitempty"`
}

// DetectionStatus describes the per-station outcome of a detection or health
// run. Failures are statuses, never panics or batch aborts.
type DetectionStatus string

const (
	StatusOK               DetectionStatus = "ok"
	StatusInsufficientData DetectionStatus = "insufficient_data"
	StatusNoData           DetectionStatus = "no_data"
	StatusError            DetectionStatus = "error"
)

// VariableAnomalies aggregates the flagged points of one variable within a
// station report.
type VariableAnomalies struct {
	Name       string             `json:"name"`
	Unit       string             `json:"unit"`
	Count      int                `json:"count"`
	Method     string             `json:"method"`
	Statistics map[string]float64 `json:"statistics,omitempty"`
	Records    []AnomalyRecord    `json:"records"`
}

// StationReport is the stable, machine-parseable detection result for one
// station and one run.
type StationReport struct {
	StationID   string                       `json:"station_id"`
	StationName string                       `json:"station_name,omitempty"`
	Status      DetectionStatus              `json:"status"`
	WindowStart time.Time                    `json:"window_start,omitzero"`
	WindowEnd   time.Time                    `json:"window_end,omitzero"`
	SampleCount int                          `json:"sample_count"`
	HasAnomaly  bool                         `json:"has_anomaly"`
	Anomalies   map[string]VariableAnomalies `json:"anomalies,omitempty"`
	Error       string                       `json:"error,omitempty"`
}

// HealthSeverity is the overall judgement of a long-term station audit.
type HealthSeverity string

const (
	HealthHealthy  HealthSeverity = "healthy"
	HealthCritical HealthSeverity = "critical"
)

// HealthIssue is one chronic problem found for a variable.
type HealthIssue struct {
	Variable string `json:"variable"`
	Problem  string `json:"problem"`
	Detail   string `json:"detail,omitempty"`
}

// StationHealthReport summarizes completeness and per-variable behaviour of
// one station over a multi-day window.
type StationHealthReport struct {
	StationID       string          `json:"station_id"`
	Status          DetectionStatus `json:"status"`
	Days            int             `json:"days"`
	ExpectedSamples int             `json:"expected_samples"`
	ObservedSamples int             `json:"observed_samples"`
	Completeness    float64         `json:"completeness"`
	Issues          []HealthIssue   `json:"issues,omitempty"`
	Severity        HealthSeverity  `json:"severity"`
}
