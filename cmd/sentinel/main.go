// Command sentinel runs a one-shot anomaly detection pass over the collected
// observation store and prints a report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	kafkaadapter "github.com/couchcryptid/station-sentinel/internal/adapter/kafka"
	"github.com/couchcryptid/station-sentinel/internal/adapter/sqlite"
	"github.com/couchcryptid/station-sentinel/internal/config"
	"github.com/couchcryptid/station-sentinel/internal/detect"
	"github.com/couchcryptid/station-sentinel/internal/domain"
	"github.com/couchcryptid/station-sentinel/internal/health"
	"github.com/couchcryptid/station-sentinel/internal/observability"
	"github.com/couchcryptid/station-sentinel/internal/pipeline"
	"github.com/couchcryptid/station-sentinel/internal/report"
	"github.com/couchcryptid/station-sentinel/internal/spatial"
	"github.com/couchcryptid/station-sentinel/internal/verify"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		startStr    = flag.String("start", "", "window start (YYYY-MM-DD HH:MM:SS, RFC3339, or 'now')")
		endStr      = flag.String("end", "", "window end")
		windowHours = flag.Int("window", 0, "window length in hours, ending at -end or now")
		stationID   = flag.String("station", "", "check a single station instead of all")
		method      = flag.String("method", "", "detection method (overrides DETECTION_METHOD)")
		doVerify    = flag.Bool("verify", false, "verify anomalies against neighbor trends")
		healthDays  = flag.Int("health-days", 0, "run a station health audit over this many days instead of detection")
		snapshotStr = flag.String("snapshot", "", "run a spatial scan at this instant instead of a window detection")
		asJSON      = flag.Bool("json", false, "emit JSON instead of text")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}
	if *method != "" {
		cfg.Method = *method
	}
	if *doVerify {
		cfg.SpatialVerify = true
	}

	logger := observability.NewLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return 1
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate store", "error", err)
		return 1
	}

	if *healthDays > 0 {
		return runHealth(ctx, store, cfg, logger, *healthDays, *asJSON)
	}

	metrics := observability.NewMetrics()
	router := detect.NewRouter(detect.DefaultOptions())
	var verifier pipeline.Verifier
	if cfg.SpatialVerify {
		verifier = verify.NewWithLimits(store, logger, cfg.MaxDistanceKm, cfg.MaxElevationDiffM)
	}
	orch, err := pipeline.New(store, router, verifier, logger, metrics, pipeline.Options{
		Method:              cfg.Method,
		Variables:           cfg.Variables,
		SpatialVerify:       cfg.SpatialVerify,
		VerifyWindowMinutes: cfg.VerifyWindowMinutes,
		MaxConcurrent:       cfg.MaxConcurrentStations,
		StationTimeout:      cfg.StationTimeout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if *snapshotStr != "" {
		return runSnapshot(ctx, orch, cfg, logger, *snapshotStr, *asJSON)
	}

	w, err := pipeline.ResolveWindow(*startStr, *endStr, *windowHours, domain.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	reports, err := detectReports(ctx, orch, store, *stationID, w)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		logger.Error("detection run failed", "error", err)
		return 1
	}

	if *asJSON {
		if err := report.WriteJSON(os.Stdout, reports); err != nil {
			logger.Error("report encoding failed", "error", err)
			return 1
		}
	} else {
		report.Text(os.Stdout, reports)
	}

	if cfg.AlertsEnabled {
		writer := kafkaadapter.NewAlertWriter(cfg.KafkaBrokers, cfg.KafkaAlertTopic, logger)
		defer writer.Close()
		if err := writer.PublishReports(ctx, reports); err != nil {
			logger.Error("alert publish failed", "error", err)
			return 1
		}
	}
	return 0
}

func detectReports(ctx context.Context, orch *pipeline.Orchestrator, store *sqlite.Store, stationID string, w pipeline.Window) ([]domain.StationReport, error) {
	if stationID == "" {
		return orch.DetectAll(ctx, w)
	}
	stations, err := store.GetAllStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load station registry: %w", err)
	}
	for _, st := range stations {
		if st.ID == stationID {
			return []domain.StationReport{orch.DetectStation(ctx, st, w)}, nil
		}
	}
	return nil, domain.NewValidationError("unknown station " + stationID)
}

func runSnapshot(ctx context.Context, orch *pipeline.Orchestrator, cfg *config.Config, logger *slog.Logger, snapshotStr string, asJSON bool) int {
	ts, err := time.Parse("2006-01-02 15:04:05", snapshotStr)
	if err != nil {
		if ts, err = time.Parse(time.RFC3339, snapshotStr); err != nil {
			fmt.Fprintln(os.Stderr, domain.NewValidationError("unparseable snapshot time "+snapshotStr))
			return 2
		}
	}
	anomalies, err := orch.SnapshotScan(ctx, ts, cfg.SnapshotTolerance, spatial.Params{
		Threshold:         cfg.SpatialThreshold,
		MaxDistanceKm:     cfg.MaxDistanceKm,
		MaxElevationDiffM: cfg.MaxElevationDiffM,
		MinNeighbors:      cfg.MinNeighbors,
	})
	if err != nil {
		logger.Error("snapshot scan failed", "error", err)
		return 1
	}
	if asJSON {
		if err := report.WriteJSON(os.Stdout, anomalies); err != nil {
			logger.Error("report encoding failed", "error", err)
			return 1
		}
		return 0
	}
	report.SnapshotText(os.Stdout, ts, anomalies)
	return 0
}

func runHealth(ctx context.Context, store *sqlite.Store, cfg *config.Config, logger *slog.Logger, days int, asJSON bool) int {
	checker := health.New(store, health.Config{
		SamplesPerHour: cfg.ExpectedSamplesPerHour,
		Variables:      cfg.HealthVariables,
	}, logger)
	reports, err := checker.CheckAll(ctx, days)
	if err != nil {
		logger.Error("health audit failed", "error", err)
		return 1
	}
	if asJSON {
		if err := report.WriteJSON(os.Stdout, reports); err != nil {
			logger.Error("report encoding failed", "error", err)
			return 1
		}
		return 0
	}
	report.HealthText(os.Stdout, reports)
	return 0
}
