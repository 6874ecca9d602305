package pipeline_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/station-sentinel/internal/detect"
	"github.com/couchcryptid/station-sentinel/internal/domain"
	"github.com/couchcryptid/station-sentinel/internal/observability"
	"github.com/couchcryptid/station-sentinel/internal/pipeline"
	"github.com/couchcryptid/station-sentinel/internal/verify"
)

type mockProvider struct {
	stations    []domain.Station
	windows     map[string]domain.DetectionWindow
	windowErr   error
	stationsErr error
}

func (m *mockProvider) GetAllStations(_ context.Context) ([]domain.Station, error) {
	return m.stations, m.stationsErr
}

func (m *mockProvider) GetWindow(_ context.Context, stationID string, _, _ time.Time) (domain.DetectionWindow, error) {
	if m.windowErr != nil {
		return domain.DetectionWindow{}, m.windowErr
	}
	return m.windows[stationID], nil
}

func (m *mockProvider) GetSnapshot(_ context.Context, ts time.Time, _ time.Duration) (domain.Snapshot, error) {
	return domain.Snapshot{Time: ts}, nil
}

type mockVerifier struct {
	tv    domain.TrendVerification
	calls int
}

func (m *mockVerifier) VerifyTrend(_ context.Context, _ string, _ time.Time, _ string, _ int) domain.TrendVerification {
	m.calls++
	return m.tv
}

func tempWindow(stationID string, values []float64) domain.DetectionWindow {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := domain.DetectionWindow{StationID: stationID}
	for i := range values {
		v := values[i]
		w.Samples = append(w.Samples, domain.ObservationSample{
			StationID: stationID,
			Time:      start.Add(time.Duration(i) * 10 * time.Minute),
			Values:    map[string]*float64{domain.VarTemperature: &v},
		})
	}
	return w
}

func newOrchestrator(t *testing.T, provider *mockProvider, verifier pipeline.Verifier, opts pipeline.Options) *pipeline.Orchestrator {
	t.Helper()
	router := detect.NewRouter(detect.DefaultOptions())
	orch, err := pipeline.New(provider, router, verifier, slog.Default(), observability.NewMetricsForTesting(), opts)
	require.NoError(t, err)
	return orch
}

func testWindow() pipeline.Window {
	return pipeline.Window{
		Start: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNew_UnknownMethodIsValidationError(t *testing.T) {
	router := detect.NewRouter(detect.DefaultOptions())
	_, err := pipeline.New(&mockProvider{}, router, nil, slog.Default(),
		observability.NewMetricsForTesting(), pipeline.Options{Method: "hdbscan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown detection method")
}

func TestDetectStation_FlagsSpike(t *testing.T) {
	provider := &mockProvider{
		windows: map[string]domain.DetectionWindow{
			"a": tempWindow("a", []float64{10, 10.1, 9.9, 10, 10.05, 30}),
		},
	}
	orch := newOrchestrator(t, provider, nil, pipeline.Options{})

	report := orch.DetectStation(context.Background(), domain.Station{ID: "a", Name: "Alpha"}, testWindow())

	assert.Equal(t, domain.StatusOK, report.Status)
	assert.Equal(t, 6, report.SampleCount)
	require.True(t, report.HasAnomaly)

	va, ok := report.Anomalies[domain.VarTemperature]
	require.True(t, ok)
	assert.Equal(t, 1, va.Count)
	assert.Equal(t, "mad", va.Method)
	assert.Equal(t, "°C", va.Unit)

	rec := va.Records[0]
	assert.Equal(t, 30.0, rec.Value)
	assert.Equal(t, domain.ClassUnset, rec.Classification, "no verifier configured")
	assert.Greater(t, rec.Deviation, 3.5)
}

func TestDetectStation_DefaultThresholdIsMethodDefault(t *testing.T) {
	// 10.265 sits about 3.2 scaled MADs from the window median: past a 3.0
	// cut but inside the mad detector's own 3.5 default. The out-of-box
	// configuration must leave the method's default in force.
	provider := &mockProvider{
		windows: map[string]domain.DetectionWindow{
			"a": tempWindow("a", []float64{10, 10.1, 9.9, 10, 10.05, 10.265}),
		},
	}
	orch := newOrchestrator(t, provider, nil, pipeline.Options{})

	report := orch.DetectStation(context.Background(), domain.Station{ID: "a"}, testWindow())
	assert.Equal(t, domain.StatusOK, report.Status)
	assert.False(t, report.HasAnomaly)
}

func TestDetectStation_SuddenChangeUnionsWithPrimaryMask(t *testing.T) {
	// A steady ramp with one 6-degree step: robust stats stay quiet, the
	// fixed-delta check catches the jump.
	provider := &mockProvider{
		windows: map[string]domain.DetectionWindow{
			"a": tempWindow("a", []float64{10, 10.2, 10.4, 16.4, 16.6, 16.8}),
		},
	}
	orch := newOrchestrator(t, provider, nil, pipeline.Options{})

	report := orch.DetectStation(context.Background(), domain.Station{ID: "a"}, testWindow())
	require.True(t, report.HasAnomaly)
	va := report.Anomalies[domain.VarTemperature]
	require.Equal(t, 1, va.Count)
	assert.Equal(t, 16.4, va.Records[0].Value)
}

func TestDetectStation_ShortWindow(t *testing.T) {
	provider := &mockProvider{
		windows: map[string]domain.DetectionWindow{
			"a": tempWindow("a", []float64{10, 11}),
		},
	}
	orch := newOrchestrator(t, provider, nil, pipeline.Options{})

	report := orch.DetectStation(context.Background(), domain.Station{ID: "a"}, testWindow())
	assert.Equal(t, domain.StatusInsufficientData, report.Status)
	assert.False(t, report.HasAnomaly)
	assert.Equal(t, 2, report.SampleCount)
}

func TestDetectStation_ProviderErrorIsStatus(t *testing.T) {
	provider := &mockProvider{windowErr: assert.AnError}
	orch := newOrchestrator(t, provider, nil, pipeline.Options{})

	report := orch.DetectStation(context.Background(), domain.Station{ID: "a"}, testWindow())
	assert.Equal(t, domain.StatusError, report.Status)
	assert.NotEmpty(t, report.Error)
}

func TestDetectStation_VerificationClassifiesRecords(t *testing.T) {
	provider := &mockProvider{
		windows: map[string]domain.DetectionWindow{
			"a": tempWindow("a", []float64{10, 10.1, 9.9, 10, 10.05, 30}),
		},
	}
	verifier := &mockVerifier{tv: domain.TrendVerification{
		Status:            domain.VerifySuccess,
		MedianCorrelation: 0.9,
		MaxCorrelation:    0.95,
		NeighborCount:     3,
	}}
	orch := newOrchestrator(t, provider, verifier, pipeline.Options{SpatialVerify: true})

	report := orch.DetectStation(context.Background(), domain.Station{ID: "a"}, testWindow())
	require.True(t, report.HasAnomaly)
	rec := report.Anomalies[domain.VarTemperature].Records[0]
	assert.Equal(t, domain.ClassWeatherEvent, rec.Classification)
	assert.Equal(t, 1, verifier.calls)
}

func TestDetectStation_EndToEndVerification(t *testing.T) {
	stations := []domain.Station{
		{ID: "a", Name: "Alpha", Latitude: 0, Longitude: 0, Elevation: 100},
		{ID: "b", Name: "Bravo", Latitude: 0.1, Longitude: 0, Elevation: 120},
	}
	// The neighbor trends with the target through the spike, so the flagged
	// point verifies as a genuine weather event.
	provider := &mockProvider{
		stations: stations,
		windows: map[string]domain.DetectionWindow{
			"a": tempWindow("a", []float64{10, 10.1, 9.9, 10, 10.05, 30}),
			"b": tempWindow("b", []float64{15, 15.1, 14.9, 15, 15.05, 35}),
		},
	}
	verifier := verify.NewWithLimits(provider, slog.Default(), 100, 500)
	orch := newOrchestrator(t, provider, verifier, pipeline.Options{SpatialVerify: true})

	report := orch.DetectStation(context.Background(), stations[0], testWindow())
	require.True(t, report.HasAnomaly)

	rec := report.Anomalies[domain.VarTemperature].Records[0]
	assert.Equal(t, domain.ClassWeatherEvent, rec.Classification)
	assert.Contains(t, rec.Rationale, "trend consistent with 1 neighbors")
}

func TestNew_VerifyWithoutVerifierRejected(t *testing.T) {
	router := detect.NewRouter(detect.DefaultOptions())
	_, err := pipeline.New(&mockProvider{}, router, nil, slog.Default(),
		observability.NewMetricsForTesting(), pipeline.Options{SpatialVerify: true})
	require.Error(t, err)
}

func TestDetectAll_RegistryOrderAndIsolation(t *testing.T) {
	provider := &mockProvider{
		stations: []domain.Station{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		windows: map[string]domain.DetectionWindow{
			"a": tempWindow("a", []float64{10, 10.1, 9.9, 10, 10.05, 30}),
			"b": tempWindow("b", []float64{10, 10.1}),
			// c has no data at all
		},
	}
	orch := newOrchestrator(t, provider, nil, pipeline.Options{MaxConcurrent: 2})

	assert.Error(t, orch.CheckReadiness(context.Background()))

	reports, err := orch.DetectAll(context.Background(), testWindow())
	require.NoError(t, err)
	require.Len(t, reports, 3)

	assert.Equal(t, "a", reports[0].StationID)
	assert.True(t, reports[0].HasAnomaly)
	assert.Equal(t, domain.StatusInsufficientData, reports[1].Status)
	assert.Equal(t, domain.StatusNoData, reports[2].Status)

	assert.NoError(t, orch.CheckReadiness(context.Background()))
}

func TestDetectAll_RegistryErrorFailsRun(t *testing.T) {
	provider := &mockProvider{stationsErr: assert.AnError}
	orch := newOrchestrator(t, provider, nil, pipeline.Options{})
	_, err := orch.DetectAll(context.Background(), testWindow())
	require.Error(t, err)
}
