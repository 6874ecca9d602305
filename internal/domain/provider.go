package domain

import (
	"context"
	"time"
)

// DataProvider is the read-only source of station metadata and observation
// windows. Backends (SQLite today, Postgres/TimescaleDB tomorrow) implement
// this interface and are chosen at construction time; nothing in the
// detection pipeline depends on a concrete backend.
//
// An empty window or snapshot is a valid result, not an error. Errors are
// reserved for the backend itself failing (connection lost, bad query).
type DataProvider interface {
	// GetWindow returns the station's samples in [start, end], ascending by
	// time, at most one sample per timestamp.
	GetWindow(ctx context.Context, stationID string, start, end time.Time) (DetectionWindow, error)

	// GetAllStations returns the station registry.
	GetAllStations(ctx context.Context) ([]Station, error)

	// GetSnapshot returns, per station, the sample nearest to ts within
	// ±tolerance. Stations with no sample in range are absent from the map.
	GetSnapshot(ctx context.Context, ts time.Time, tolerance time.Duration) (Snapshot, error)
}
