// Package domain models weather station observations and the results of
// anomaly detection over them.
//
// # Data Source
//
// Observations originate from a public station feed polled by the collector
// service on a fixed interval (default every 10 minutes, i.e. 6 samples per
// hour). Each poll yields, per station, a single timestamped reading set for
// the monitored variables. The collector upserts rows keyed by
// (station_id, time), so replays and overlapping polls are idempotent.
//
// # Station Registry
//
// Stations are immutable reference data: id, display name, WGS-84
// latitude/longitude, and elevation in meters. Elevation matters because
// spatial comparison projects neighbor readings to the target's elevation
// using fixed environmental gradients: temperature +0.65 °C per 100 m of
// elevation difference, pressure +1.2 hPa per 10 m. Other variables are not
// altitude sensitive.
//
// # Variables
//
// Monitored variables and default display metadata:
//
//	temperature  °C     sudden-change delta 5.0
//	humidity     %
//	wind_speed   km/h
//	pressure     hPa    sudden-change delta 10.0
//	rainfall     mm
//
// A reading may be missing ("---" in the upstream feed); missing values are
// stored as NULL and surface here as NaN in extracted series.
//
// # Classification
//
// A flagged point that passes spatial trend verification is classified with
// fixed thresholds: median neighbor correlation > 0.6 or max > 0.8 means a
// genuine localized weather event; median < 0.3 means the station disagrees
// with all of its neighbors and the device is suspected failed; anything in
// between is a warning. Points that cannot be verified (no neighbors, too few
// aligned samples, no computable correlation) stay unverified and carry the
// skip reason.
package domain
