// Package sqlite persists the station registry and the observation stream,
// and serves both back as detection windows and snapshots.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/station-sentinel/internal/domain"
)

// timeLayout is the canonical stored timestamp format. All times are UTC.
const timeLayout = time.RFC3339

const schema = `
CREATE TABLE IF NOT EXISTS stations (
	station_id TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	elevation  REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS observations (
	station_id  TEXT NOT NULL REFERENCES stations(station_id),
	observed_at TEXT NOT NULL,
	temperature REAL,
	humidity    REAL,
	wind_speed  REAL,
	pressure    REAL,
	rainfall    REAL,
	PRIMARY KEY (station_id, observed_at)
);

CREATE INDEX IF NOT EXISTS idx_observations_observed_at
	ON observations (observed_at);

CREATE TABLE IF NOT EXISTS collection_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	fetched_at   TEXT NOT NULL,
	stations     INTEGER NOT NULL,
	observations INTEGER NOT NULL,
	outcome      TEXT NOT NULL,
	detail       TEXT
);
`

// Store is a SQLite-backed observation store. It implements
// domain.DataProvider for the read path and the collector's write path.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path with WAL journaling and a
// busy timeout, so the collector and detector can share one file.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates the schema if it does not exist. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetAllStations returns the station registry ordered by id. An empty
// registry is a valid result.
func (s *Store) GetAllStations(ctx context.Context) ([]domain.Station, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT station_id, name, latitude, longitude, elevation FROM stations ORDER BY station_id`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var stations []domain.Station
	for rows.Next() {
		var st domain.Station
		if err := rows.Scan(&st.ID, &st.Name, &st.Latitude, &st.Longitude, &st.Elevation); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// GetWindow returns one station's samples in [start, end], ascending by time.
// Both bounds are inclusive, so a reading taken exactly at the window edge is
// part of the window. An empty window is a valid result, never an error.
func (s *Store) GetWindow(ctx context.Context, stationID string, start, end time.Time) (domain.DetectionWindow, error) {
	window := domain.DetectionWindow{StationID: stationID}
	rows, err := s.db.QueryContext(ctx,
		`SELECT observed_at, temperature, humidity, wind_speed, pressure, rainfall
		 FROM observations
		 WHERE station_id = ? AND observed_at >= ? AND observed_at <= ?
		 ORDER BY observed_at ASC`,
		stationID, start.UTC().Format(timeLayout), end.UTC().Format(timeLayout))
	if err != nil {
		return window, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sample, err := scanSample(rows, stationID)
		if err != nil {
			return window, err
		}
		window.Samples = append(window.Samples, sample)
	}
	return window, rows.Err()
}

// GetSnapshot returns, per station, the sample nearest to ts within the
// tolerance. Stations with no sample in range are absent from the result.
func (s *Store) GetSnapshot(ctx context.Context, ts time.Time, tolerance time.Duration) (domain.Snapshot, error) {
	snap := domain.Snapshot{Time: ts, Samples: make(map[string]domain.ObservationSample)}
	rows, err := s.db.QueryContext(ctx,
		`SELECT station_id, observed_at, temperature, humidity, wind_speed, pressure, rainfall
		 FROM observations
		 WHERE observed_at >= ? AND observed_at <= ?
		 ORDER BY station_id, observed_at`,
		ts.Add(-tolerance).UTC().Format(timeLayout), ts.Add(tolerance).UTC().Format(timeLayout))
	if err != nil {
		return snap, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stationID string
		sample, err := scanStationSample(rows, &stationID)
		if err != nil {
			return snap, err
		}
		best, ok := snap.Samples[stationID]
		if !ok || absDuration(sample.Time.Sub(ts)) < absDuration(best.Time.Sub(ts)) {
			snap.Samples[stationID] = sample
		}
	}
	return snap, rows.Err()
}

// UpsertStations inserts or updates registry entries.
func (s *Store) UpsertStations(ctx context.Context, stations []domain.Station) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin station upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stations (station_id, name, latitude, longitude, elevation)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(station_id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			elevation = excluded.elevation`)
	if err != nil {
		return fmt.Errorf("prepare station upsert: %w", err)
	}
	defer stmt.Close()

	for _, st := range stations {
		if st.ID == "" {
			return domain.NewValidationError("station id is required")
		}
		if _, err := stmt.ExecContext(ctx, st.ID, st.Name, st.Latitude, st.Longitude, st.Elevation); err != nil {
			return fmt.Errorf("upsert station %s: %w", st.ID, err)
		}
	}
	return tx.Commit()
}

// UpsertObservations writes samples, replacing any existing row for the same
// station and timestamp. Re-ingesting a feed is therefore idempotent.
func (s *Store) UpsertObservations(ctx context.Context, samples []domain.ObservationSample) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin observation upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO observations (station_id, observed_at, temperature, humidity, wind_speed, pressure, rainfall)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(station_id, observed_at) DO UPDATE SET
			temperature = excluded.temperature,
			humidity = excluded.humidity,
			wind_speed = excluded.wind_speed,
			pressure = excluded.pressure,
			rainfall = excluded.rainfall`)
	if err != nil {
		return 0, fmt.Errorf("prepare observation upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, sample := range samples {
		if sample.StationID == "" || sample.Time.IsZero() {
			return written, domain.NewValidationError("observation requires station id and timestamp")
		}
		_, err := stmt.ExecContext(ctx,
			sample.StationID,
			sample.Time.UTC().Format(timeLayout),
			nullable(sample, domain.VarTemperature),
			nullable(sample, domain.VarHumidity),
			nullable(sample, domain.VarWindSpeed),
			nullable(sample, domain.VarPressure),
			nullable(sample, domain.VarRainfall),
		)
		if err != nil {
			return written, fmt.Errorf("upsert observation %s@%s: %w", sample.StationID, sample.Time, err)
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

// CollectionEntry is one audit row describing a collector fetch.
type CollectionEntry struct {
	FetchedAt    time.Time
	Stations     int
	Observations int
	Outcome      string
	Detail       string
}

// LogCollection appends a fetch audit entry.
func (s *Store) LogCollection(ctx context.Context, entry CollectionEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collection_log (fetched_at, stations, observations, outcome, detail)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.FetchedAt.UTC().Format(timeLayout), entry.Stations, entry.Observations, entry.Outcome, entry.Detail)
	if err != nil {
		return fmt.Errorf("log collection: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(rows rowScanner, stationID string) (domain.ObservationSample, error) {
	var observedAt string
	var temp, hum, wind, press, rain sql.NullFloat64
	if err := rows.Scan(&observedAt, &temp, &hum, &wind, &press, &rain); err != nil {
		return domain.ObservationSample{}, fmt.Errorf("scan observation: %w", err)
	}
	return buildSample(stationID, observedAt, temp, hum, wind, press, rain)
}

func scanStationSample(rows rowScanner, stationID *string) (domain.ObservationSample, error) {
	var observedAt string
	var temp, hum, wind, press, rain sql.NullFloat64
	if err := rows.Scan(stationID, &observedAt, &temp, &hum, &wind, &press, &rain); err != nil {
		return domain.ObservationSample{}, fmt.Errorf("scan observation: %w", err)
	}
	return buildSample(*stationID, observedAt, temp, hum, wind, press, rain)
}

func buildSample(stationID, observedAt string, temp, hum, wind, press, rain sql.NullFloat64) (domain.ObservationSample, error) {
	ts, err := time.Parse(timeLayout, observedAt)
	if err != nil {
		return domain.ObservationSample{}, fmt.Errorf("parse stored timestamp %q: %w", observedAt, err)
	}
	sample := domain.ObservationSample{
		StationID: stationID,
		Time:      ts,
		Values:    make(map[string]*float64, 5),
	}
	put := func(variable string, v sql.NullFloat64) {
		if v.Valid {
			f := v.Float64
			sample.Values[variable] = &f
		} else {
			sample.Values[variable] = nil
		}
	}
	put(domain.VarTemperature, temp)
	put(domain.VarHumidity, hum)
	put(domain.VarWindSpeed, wind)
	put(domain.VarPressure, press)
	put(domain.VarRainfall, rain)
	return sample, nil
}

func nullable(sample domain.ObservationSample, variable string) any {
	if v, ok := sample.Value(variable); ok {
		return v
	}
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
