package domain

import (
	"math"
	"time"
)

// Variable names for observed quantities. These are the canonical keys used
// in sample maps, detector configuration, and report payloads.
const (
	VarTemperature = "temperature"
	VarHumidity    = "humidity"
	VarWindSpeed   = "wind_speed"
	VarPressure    = "pressure"
	VarRainfall    = "rainfall"
)

// Variables lists all monitored variables in canonical report order.
func Variables() []string {
	return []string{VarTemperature, VarHumidity, VarWindSpeed, VarPressure, VarRainfall}
}

// AltitudeSensitive reports whether a variable needs lapse-rate adjustment
// when compared across stations at different elevations.
func AltitudeSensitive(variable string) bool {
	return variable == VarTemperature || variable == VarPressure
}

// Station is an immutable registry entry for one weather station.
type Station struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation_m"`
}

// ObservationSample is one timestamped reading set for a station. A nil value
// pointer means the variable was not reported at that instant.
type ObservationSample struct {
	StationID string
	Time      time.Time
	Values    map[string]*float64
}

// Value returns the reading for a variable and whether it was present.
func (s ObservationSample) Value(variable string) (float64, bool) {
	v, ok := s.Values[variable]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// DetectionWindow is an ascending-by-time sequence of samples for one
// station with no duplicate timestamps.
type DetectionWindow struct {
	StationID string
	Samples   []ObservationSample
}

// Len returns the number of samples in the window.
func (w DetectionWindow) Len() int { return len(w.Samples) }

// Start returns the timestamp of the first sample, or zero when empty.
func (w DetectionWindow) Start() time.Time {
	if len(w.Samples) == 0 {
		return time.Time{}
	}
	return w.Samples[0].Time
}

// End returns the timestamp of the last sample, or zero when empty.
func (w DetectionWindow) End() time.Time {
	if len(w.Samples) == 0 {
		return time.Time{}
	}
	return w.Samples[len(w.Samples)-1].Time
}

// Series extracts one variable as a float slice aligned with Samples.
// Missing readings become NaN so detectors can skip them positionally.
func (w DetectionWindow) Series(variable string) []float64 {
	out := make([]float64, len(w.Samples))
	for i, s := range w.Samples {
		if v, ok := s.Value(variable); ok {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Snapshot is a single-instant view across stations: for each station id, the
// sample closest to the snapshot time within the provider's tolerance.
type Snapshot struct {
	Time    time.Time
	Samples map[string]ObservationSample
}

// VariableMeta holds display and detection metadata for one variable.
// A positive Threshold overrides the configured method's own default; zero
// leaves the method's default in force. SuddenDelta, when non-nil, enables
// the fixed-delta secondary check with that maximum step between
// consecutive samples.
type VariableMeta struct {
	Name        string   `yaml:"name" json:"name"`
	Unit        string   `yaml:"unit" json:"unit"`
	Threshold   float64  `yaml:"threshold" json:"threshold"`
	SuddenDelta *float64 `yaml:"sudden_change,omitempty" json:"sudden_change,omitempty"`
}

// DefaultVariableMeta returns the built-in per-variable detection metadata.
func DefaultVariableMeta() map[string]VariableMeta {
	tempDelta := 5.0
	pressureDelta := 10.0
	return map[string]VariableMeta{
		VarTemperature: {Name: "Temperature", Unit: "°C", SuddenDelta: &tempDelta},
		VarHumidity:    {Name: "Humidity", Unit: "%"},
		VarWindSpeed:   {Name: "Wind Speed", Unit: "km/h"},
		VarPressure:    {Name: "Pressure", Unit: "hPa", SuddenDelta: &pressureDelta},
		VarRainfall:    {Name: "Rainfall", Unit: "mm"},
	}
}
