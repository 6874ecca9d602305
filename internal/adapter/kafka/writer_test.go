package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/station-sentinel/internal/domain"
)

func TestSerializeAlert(t *testing.T) {
	report := domain.StationReport{StationID: "st-1", StationName: "Ridge"}
	rec := domain.AnomalyRecord{
		Time:           time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC),
		Variable:       domain.VarTemperature,
		Value:          31.5,
		Deviation:      8.2,
		Classification: domain.ClassDeviceFailure,
		Rationale:      "trend inconsistent with 3 neighbors (median corr 0.12)",
	}

	msg, err := serializeAlert(report, rec)
	require.NoError(t, err)

	assert.Equal(t, []byte("st-1"), msg.Key)

	var alert Alert
	require.NoError(t, json.Unmarshal(msg.Value, &alert))
	assert.Equal(t, "st-1", alert.StationID)
	assert.Equal(t, "Ridge", alert.StationName)
	assert.Equal(t, domain.VarTemperature, alert.Variable)
	assert.Equal(t, 31.5, alert.Value)
	assert.Equal(t, domain.ClassDeviceFailure, alert.Classification)

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "variable", msg.Headers[0].Key)
	assert.Equal(t, []byte("temperature"), msg.Headers[0].Value)
	assert.Equal(t, "classification", msg.Headers[1].Key)
	assert.Equal(t, []byte("device_failure"), msg.Headers[1].Value)
}
