// Package report renders detection, snapshot, and health results for humans
// and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/station-sentinel/internal/domain"
	"github.com/couchcryptid/station-sentinel/internal/spatial"
)

const timeFormat = "2006-01-02 15:04:05"

// Text renders a detection batch as a plain-text report.
func Text(w io.Writer, reports []domain.StationReport) {
	fmt.Fprintln(w, strings.Repeat("=", 64))
	fmt.Fprintln(w, "WEATHER STATION ANOMALY REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 64))

	flagged := 0
	for _, r := range reports {
		writeStation(w, r)
		if r.HasAnomaly {
			flagged++
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 64))
	fmt.Fprintf(w, "Stations checked: %d, with anomalies: %d\n", len(reports), flagged)
}

func writeStation(w io.Writer, r domain.StationReport) {
	name := r.StationName
	if name == "" {
		name = r.StationID
	}
	fmt.Fprintf(w, "\nStation %s (%s)\n", name, r.StationID)

	switch r.Status {
	case domain.StatusError:
		fmt.Fprintf(w, "  ERROR: %s\n", r.Error)
		return
	case domain.StatusNoData:
		fmt.Fprintln(w, "  no data in window")
		return
	case domain.StatusInsufficientData:
		fmt.Fprintf(w, "  insufficient data (%d samples)\n", r.SampleCount)
		return
	}

	if !r.HasAnomaly {
		fmt.Fprintf(w, "  OK (%d samples)\n", r.SampleCount)
		return
	}

	for _, variable := range sortedKeys(r.Anomalies) {
		va := r.Anomalies[variable]
		fmt.Fprintf(w, "  %s: %d anomalies (%s)\n", va.Name, va.Count, va.Method)
		for _, rec := range va.Records {
			line := fmt.Sprintf("    %s  %.2f %s (deviation %.1f)",
				rec.Time.Format(timeFormat), rec.Value, va.Unit, rec.Deviation)
			if rec.Classification != domain.ClassUnset {
				line += fmt.Sprintf("  [%s]", strings.ToUpper(string(rec.Classification)))
			}
			fmt.Fprintln(w, line)
			if rec.Rationale != "" {
				fmt.Fprintf(w, "      %s\n", rec.Rationale)
			}
		}
	}
}

// SnapshotText renders a spatial snapshot scan as a plain-text report.
func SnapshotText(w io.Writer, ts time.Time, anomalies map[string][]spatial.SnapshotAnomaly) {
	fmt.Fprintln(w, strings.Repeat("=", 64))
	fmt.Fprintf(w, "SPATIAL SNAPSHOT REPORT  %s\n", ts.Format(timeFormat))
	fmt.Fprintln(w, strings.Repeat("=", 64))

	if len(anomalies) == 0 {
		fmt.Fprintln(w, "\nNo spatial anomalies.")
		return
	}
	for _, variable := range sortedKeys(anomalies) {
		fmt.Fprintf(w, "\n%s:\n", variable)
		for _, a := range anomalies[variable] {
			fmt.Fprintf(w, "  %s: %.2f vs neighbor median %.2f (deviation %.1f, %d neighbors)\n",
				a.StationID, a.Value, a.NeighborMedian, a.Deviation, a.NeighborCount)
		}
	}
}

// HealthText renders long-term station health audits as a plain-text report.
func HealthText(w io.Writer, reports []domain.StationHealthReport) {
	fmt.Fprintln(w, strings.Repeat("=", 64))
	fmt.Fprintln(w, "STATION HEALTH REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 64))

	critical := 0
	for _, r := range reports {
		fmt.Fprintf(w, "\nStation %s (%d days)\n", r.StationID, r.Days)
		switch r.Status {
		case domain.StatusError:
			fmt.Fprintln(w, "  ERROR fetching data")
			continue
		case domain.StatusNoData:
			fmt.Fprintln(w, "  no data")
			continue
		}
		fmt.Fprintf(w, "  completeness: %.0f%% (%d of %d samples)\n",
			r.Completeness*100, r.ObservedSamples, r.ExpectedSamples)
		for _, issue := range r.Issues {
			fmt.Fprintf(w, "  %s: %s", issue.Variable, issue.Problem)
			if issue.Detail != "" {
				fmt.Fprintf(w, " (%s)", issue.Detail)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "  severity: %s\n", strings.ToUpper(string(r.Severity)))
		if r.Severity == domain.HealthCritical {
			critical++
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 64))
	fmt.Fprintf(w, "Stations audited: %d, critical: %d\n", len(reports), critical)
}

// WriteJSON writes any report payload as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
