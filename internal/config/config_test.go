package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/station-sentinel/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "weather_stream.db", cfg.SQLitePath)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, "mad", cfg.Method)
	assert.False(t, cfg.SpatialVerify)
	assert.Equal(t, 30, cfg.VerifyWindowMinutes)
	assert.Equal(t, 4, cfg.MaxConcurrentStations)
	assert.Equal(t, 30*time.Second, cfg.StationTimeout)

	assert.Equal(t, 100.0, cfg.MaxDistanceKm)
	assert.Equal(t, 500.0, cfg.MaxElevationDiffM)
	assert.Equal(t, 2, cfg.MinNeighbors)
	assert.Equal(t, 3.0, cfg.SpatialThreshold)
	assert.Equal(t, 5*time.Minute, cfg.SnapshotTolerance)

	assert.Equal(t, 6, cfg.ExpectedSamplesPerHour)
	assert.Equal(t, []string{domain.VarWindSpeed}, cfg.HealthVariables)

	assert.False(t, cfg.AlertsEnabled)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "weather-anomaly-alerts", cfg.KafkaAlertTopic)

	assert.Equal(t, 10*time.Minute, cfg.FetchInterval)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)

	temp, ok := cfg.Variables[domain.VarTemperature]
	require.True(t, ok)
	assert.Equal(t, "°C", temp.Unit)
	require.NotNil(t, temp.SuddenDelta)
	assert.Equal(t, 5.0, *temp.SuddenDelta)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("SQLITE_PATH", "/tmp/obs.db")
	t.Setenv("DETECTION_METHOD", "3sigma")
	t.Setenv("SPATIAL_VERIFY", "true")
	t.Setenv("VERIFY_WINDOW_MINUTES", "45")
	t.Setenv("MAX_CONCURRENT_STATIONS", "8")
	t.Setenv("MAX_DISTANCE_KM", "50")
	t.Setenv("HEALTH_VARIABLES", "wind_speed, rainfall")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/obs.db", cfg.SQLitePath)
	assert.Equal(t, "3sigma", cfg.Method)
	assert.True(t, cfg.SpatialVerify)
	assert.Equal(t, 45, cfg.VerifyWindowMinutes)
	assert.Equal(t, 8, cfg.MaxConcurrentStations)
	assert.Equal(t, 50.0, cfg.MaxDistanceKm)
	assert.Equal(t, []string{"wind_speed", "rainfall"}, cfg.HealthVariables)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.AlertsEnabled, "brokers imply alerting")
}

func TestLoad_AlertsDisabledExplicitly(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092")
	t.Setenv("ALERTS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.AlertsEnabled)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "STATION_TIMEOUT", "soon"},
		{"negative duration", "FETCH_INTERVAL", "-5m"},
		{"bad int", "VERIFY_WINDOW_MINUTES", "many"},
		{"zero verify window", "VERIFY_WINDOW_MINUTES", "0"},
		{"bad float", "MAX_DISTANCE_KM", "far"},
		{"alerts without brokers", "ALERTS_ENABLED", "true"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoad_VariablesFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "variables.yaml")
	content := `
temperature:
  name: Temperature
  unit: "°C"
  threshold: 2.5
  sudden_change: 4
soil_moisture:
  name: Soil Moisture
  unit: "%"
  threshold: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("VARIABLES_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	temp := cfg.Variables[domain.VarTemperature]
	assert.Equal(t, 2.5, temp.Threshold)
	require.NotNil(t, temp.SuddenDelta)
	assert.Equal(t, 4.0, *temp.SuddenDelta)

	soil, ok := cfg.Variables["soil_moisture"]
	require.True(t, ok, "unknown variables may be added by the file")
	assert.Equal(t, "%", soil.Unit)

	// Untouched defaults survive the merge.
	assert.Equal(t, "hPa", cfg.Variables[domain.VarPressure].Unit)
}

func TestValidateCollector(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, cfg.ValidateCollector(), "FEED_URL is mandatory for the collector")

	cfg.FeedURL = "http://feed.example/observations"
	assert.NoError(t, cfg.ValidateCollector())
}
