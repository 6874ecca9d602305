// Package kafka publishes anomaly alerts to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/station-sentinel/internal/domain"
)

// Alert is the wire payload for one flagged point, flattened for consumers
// that do not want the full station report.
type Alert struct {
	StationID      string                `json:"station_id"`
	StationName    string                `json:"station_name,omitempty"`
	Variable       string                `json:"variable"`
	Time           time.Time             `json:"time"`
	Value          float64               `json:"value"`
	Deviation      float64               `json:"deviation"`
	Classification domain.Classification `json:"classification,omitempty"`
	Rationale      string                `json:"rationale,omitempty"`
}

// AlertWriter produces anomaly alerts to the alert topic.
type AlertWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewAlertWriter creates a Kafka producer for the alert topic.
func NewAlertWriter(brokers []string, topic string, logger *slog.Logger) *AlertWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &AlertWriter{writer: w, logger: logger}
}

// PublishReports flattens the flagged records of the given reports into
// alerts and publishes them in a single WriteMessages call. Reports with no
// anomalies produce nothing.
func (w *AlertWriter) PublishReports(ctx context.Context, reports []domain.StationReport) error {
	var msgs []kafkago.Message
	for _, report := range reports {
		if !report.HasAnomaly {
			continue
		}
		for _, anomalies := range report.Anomalies {
			for _, rec := range anomalies.Records {
				msg, err := serializeAlert(report, rec)
				if err != nil {
					return err
				}
				msgs = append(msgs, msg)
			}
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish alerts: %w", err)
	}
	w.logger.Info("alerts published", "count", len(msgs))
	return nil
}

func (w *AlertWriter) Close() error {
	return w.writer.Close()
}

// serializeAlert marshals one flagged record into a Kafka message keyed by
// station id so all of a station's alerts land on one partition.
func serializeAlert(report domain.StationReport, rec domain.AnomalyRecord) (kafkago.Message, error) {
	alert := Alert{
		StationID:      report.StationID,
		StationName:    report.StationName,
		Variable:       rec.Variable,
		Time:           rec.Time,
		Value:          rec.Value,
		Deviation:      rec.Deviation,
		Classification: rec.Classification,
		Rationale:      rec.Rationale,
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.StationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "variable", Value: []byte(rec.Variable)},
			{Key: "classification", Value: []byte(rec.Classification)},
		},
	}, nil
}
