// Package config loads service settings from environment variables, with an
// optional YAML file overriding per-variable detection metadata.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/station-sentinel/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	SQLitePath      string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Detection settings.
	Method                string
	SpatialVerify         bool
	VerifyWindowMinutes   int
	MaxConcurrentStations int
	StationTimeout        time.Duration
	Variables             map[string]domain.VariableMeta

	// Spatial settings.
	MaxDistanceKm     float64
	MaxElevationDiffM float64
	MinNeighbors      int
	SpatialThreshold  float64
	SnapshotTolerance time.Duration

	// Health check settings.
	ExpectedSamplesPerHour int
	HealthVariables        []string

	// Alert sink (feature-flagged via KAFKA_BROKERS / ALERTS_ENABLED).
	KafkaBrokers    []string
	KafkaAlertTopic string
	AlertsEnabled   bool

	// Collector settings.
	FeedURL       string
	FetchInterval time.Duration
	FetchTimeout  time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset. Malformed values are fatal and reported before any I/O.
func Load() (*Config, error) {
	shutdownTimeout, err := durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	stationTimeout, err := durationEnv("STATION_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	snapshotTolerance, err := durationEnv("SNAPSHOT_TOLERANCE", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	fetchInterval, err := durationEnv("FETCH_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := durationEnv("FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	verifyWindow, err := intEnv("VERIFY_WINDOW_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	maxConcurrent, err := intEnv("MAX_CONCURRENT_STATIONS", 4)
	if err != nil {
		return nil, err
	}
	minNeighbors, err := intEnv("MIN_NEIGHBORS", 2)
	if err != nil {
		return nil, err
	}
	samplesPerHour, err := intEnv("EXPECTED_SAMPLES_PER_HOUR", 6)
	if err != nil {
		return nil, err
	}

	maxDistance, err := floatEnv("MAX_DISTANCE_KM", 100)
	if err != nil {
		return nil, err
	}
	maxElevDiff, err := floatEnv("MAX_ELEVATION_DIFF_M", 500)
	if err != nil {
		return nil, err
	}
	spatialThreshold, err := floatEnv("SPATIAL_THRESHOLD", 3.0)
	if err != nil {
		return nil, err
	}

	variables, err := loadVariables(os.Getenv("VARIABLES_FILE"))
	if err != nil {
		return nil, err
	}

	brokers := splitList(envOrDefault("KAFKA_BROKERS", ""))
	alertsEnabled := len(brokers) > 0
	if v := os.Getenv("ALERTS_ENABLED"); v != "" {
		alertsEnabled = v == "true"
	}

	cfg := &Config{
		SQLitePath:      envOrDefault("SQLITE_PATH", "weather_stream.db"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Method:                envOrDefault("DETECTION_METHOD", "mad"),
		SpatialVerify:         os.Getenv("SPATIAL_VERIFY") == "true",
		VerifyWindowMinutes:   verifyWindow,
		MaxConcurrentStations: maxConcurrent,
		StationTimeout:        stationTimeout,
		Variables:             variables,

		MaxDistanceKm:     maxDistance,
		MaxElevationDiffM: maxElevDiff,
		MinNeighbors:      minNeighbors,
		SpatialThreshold:  spatialThreshold,
		SnapshotTolerance: snapshotTolerance,

		ExpectedSamplesPerHour: samplesPerHour,
		HealthVariables:        splitList(envOrDefault("HEALTH_VARIABLES", domain.VarWindSpeed)),

		KafkaBrokers:    brokers,
		KafkaAlertTopic: envOrDefault("KAFKA_ALERT_TOPIC", "weather-anomaly-alerts"),
		AlertsEnabled:   alertsEnabled,

		FeedURL:       os.Getenv("FEED_URL"),
		FetchInterval: fetchInterval,
		FetchTimeout:  fetchTimeout,
	}

	if cfg.VerifyWindowMinutes <= 0 {
		return nil, domain.NewValidationError("VERIFY_WINDOW_MINUTES must be positive")
	}
	if cfg.MaxConcurrentStations <= 0 {
		return nil, domain.NewValidationError("MAX_CONCURRENT_STATIONS must be positive")
	}
	if cfg.ExpectedSamplesPerHour <= 0 {
		return nil, domain.NewValidationError("EXPECTED_SAMPLES_PER_HOUR must be positive")
	}
	if cfg.AlertsEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, domain.NewValidationError("ALERTS_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.AlertsEnabled && cfg.KafkaAlertTopic == "" {
		return nil, domain.NewValidationError("ALERTS_ENABLED is true but KAFKA_ALERT_TOPIC is empty")
	}

	return cfg, nil
}

// ValidateCollector checks the settings only the collector service needs.
func (c *Config) ValidateCollector() error {
	if c.FeedURL == "" {
		return domain.NewValidationError("FEED_URL is required")
	}
	if c.FetchInterval <= 0 {
		return domain.NewValidationError("FETCH_INTERVAL must be positive")
	}
	return nil
}

// loadVariables merges a YAML variable-metadata file over the built-in
// defaults. Path may be empty.
func loadVariables(path string) (map[string]domain.VariableMeta, error) {
	variables := domain.DefaultVariableMeta()
	if path == "" {
		return variables, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variables file: %w", err)
	}
	var overrides map[string]domain.VariableMeta
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse variables file: %w", err)
	}
	for name, meta := range overrides {
		variables[name] = meta
	}
	return variables, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, domain.NewValidationError("invalid " + key)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.NewValidationError("invalid " + key)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, domain.NewValidationError("invalid " + key)
	}
	return f, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
