// Package ingest collects the observation feed into the local store on a
// fixed cadence.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/station-sentinel/internal/domain"
)

// missingSentinel marks an absent reading in the feed payload.
const missingSentinel = "---"

// feedPayload is the wire shape of the upstream feed. Readings are strings
// because the feed encodes missing values as a sentinel.
type feedPayload struct {
	Stations []struct {
		ID        string  `json:"id"`
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Elevation float64 `json:"elevation_m"`
	} `json:"stations"`
	Observations []struct {
		StationID   string `json:"station_id"`
		Time        string `json:"time"`
		Temperature string `json:"temperature"`
		Humidity    string `json:"humidity"`
		WindSpeed   string `json:"wind_speed"`
		Pressure    string `json:"pressure"`
		Rainfall    string `json:"rainfall"`
	} `json:"observations"`
}

// FeedClient fetches and decodes the upstream observation feed over HTTP.
type FeedClient struct {
	url    string
	client *http.Client
}

// NewFeedClient creates a feed client with the given request timeout.
func NewFeedClient(url string, timeout time.Duration) *FeedClient {
	return &FeedClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves one feed document and decodes it into registry entries and
// observation samples. Sentinel readings decode to nil values; a malformed
// numeric reading fails the whole fetch so bad feeds are visible, not
// silently partial.
func (f *FeedClient) Fetch(ctx context.Context) ([]domain.Station, []domain.ObservationSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}

	var payload feedPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("decode feed: %w", err)
	}
	return decodePayload(payload)
}

func decodePayload(payload feedPayload) ([]domain.Station, []domain.ObservationSample, error) {
	stations := make([]domain.Station, 0, len(payload.Stations))
	for _, s := range payload.Stations {
		if s.ID == "" {
			return nil, nil, domain.NewValidationError("feed station entry missing id")
		}
		stations = append(stations, domain.Station{
			ID:        s.ID,
			Name:      s.Name,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Elevation: s.Elevation,
		})
	}

	samples := make([]domain.ObservationSample, 0, len(payload.Observations))
	for _, o := range payload.Observations {
		ts, err := time.Parse(time.RFC3339, o.Time)
		if err != nil {
			return nil, nil, fmt.Errorf("parse observation time %q: %w", o.Time, err)
		}
		values := make(map[string]*float64, 5)
		for variable, raw := range map[string]string{
			domain.VarTemperature: o.Temperature,
			domain.VarHumidity:    o.Humidity,
			domain.VarWindSpeed:   o.WindSpeed,
			domain.VarPressure:    o.Pressure,
			domain.VarRainfall:    o.Rainfall,
		} {
			v, err := parseReading(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("parse %s for station %s: %w", variable, o.StationID, err)
			}
			values[variable] = v
		}
		samples = append(samples, domain.ObservationSample{
			StationID: o.StationID,
			Time:      ts.UTC(),
			Values:    values,
		})
	}
	return stations, samples, nil
}

// parseReading converts one feed reading. The sentinel and the empty string
// both mean the sensor reported nothing.
func parseReading(raw string) (*float64, error) {
	if raw == "" || raw == missingSentinel {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
