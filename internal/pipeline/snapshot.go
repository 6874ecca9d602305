package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/station-sentinel/internal/spatial"
)

// SnapshotScan flags stations whose reading at one instant deviates from the
// elevation-adjusted median of their neighbors, per variable. Variables with
// no flagged stations are omitted from the result.
func (o *Orchestrator) SnapshotScan(ctx context.Context, ts time.Time, tolerance time.Duration, p spatial.Params) (map[string][]spatial.SnapshotAnomaly, error) {
	stations, err := o.provider.GetAllStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load station registry: %w", err)
	}
	snap, err := o.provider.GetSnapshot(ctx, ts, tolerance)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if len(snap.Samples) == 0 {
		return nil, nil
	}

	out := make(map[string][]spatial.SnapshotAnomaly)
	for _, variable := range o.monitoredVariables() {
		anomalies := spatial.DetectSnapshotAnomalies(stations, snap, variable, p)
		if len(anomalies) == 0 {
			continue
		}
		out[variable] = anomalies
		for range anomalies {
			o.metrics.AnomaliesFound.WithLabelValues(variable, "spatial").Inc()
		}
	}
	o.logger.Info("snapshot scan complete", "time", snap.Time, "stations", len(snap.Samples), "variables_flagged", len(out))
	return out, nil
}
