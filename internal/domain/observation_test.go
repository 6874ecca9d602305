package domain_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/station-sentinel/internal/domain"
)

func TestSeries_MissingBecomesNaN(t *testing.T) {
	v1, v3 := 10.5, 11.0
	w := domain.DetectionWindow{
		StationID: "st-1",
		Samples: []domain.ObservationSample{
			{Time: time.Unix(0, 0), Values: map[string]*float64{domain.VarTemperature: &v1}},
			{Time: time.Unix(600, 0), Values: map[string]*float64{domain.VarTemperature: nil}},
			{Time: time.Unix(1200, 0), Values: map[string]*float64{domain.VarTemperature: &v3}},
			{Time: time.Unix(1800, 0), Values: map[string]*float64{}},
		},
	}

	series := w.Series(domain.VarTemperature)
	require.Len(t, series, 4)
	assert.Equal(t, 10.5, series[0])
	assert.True(t, math.IsNaN(series[1]), "nil pointer means not reported")
	assert.Equal(t, 11.0, series[2])
	assert.True(t, math.IsNaN(series[3]), "absent key means not reported")
}

func TestWindowBounds(t *testing.T) {
	empty := domain.DetectionWindow{}
	assert.True(t, empty.Start().IsZero())
	assert.True(t, empty.End().IsZero())
	assert.Equal(t, 0, empty.Len())

	w := domain.DetectionWindow{Samples: []domain.ObservationSample{
		{Time: time.Unix(100, 0)},
		{Time: time.Unix(200, 0)},
	}}
	assert.True(t, w.Start().Equal(time.Unix(100, 0)))
	assert.True(t, w.End().Equal(time.Unix(200, 0)))
}

func TestAltitudeSensitive(t *testing.T) {
	assert.True(t, domain.AltitudeSensitive(domain.VarTemperature))
	assert.True(t, domain.AltitudeSensitive(domain.VarPressure))
	assert.False(t, domain.AltitudeSensitive(domain.VarHumidity))
	assert.False(t, domain.AltitudeSensitive(domain.VarRainfall))
}

func TestDefaultVariableMeta(t *testing.T) {
	meta := domain.DefaultVariableMeta()
	for _, variable := range domain.Variables() {
		_, ok := meta[variable]
		assert.True(t, ok, variable)
	}
	require.NotNil(t, meta[domain.VarPressure].SuddenDelta)
	assert.Equal(t, 10.0, *meta[domain.VarPressure].SuddenDelta)
	assert.Nil(t, meta[domain.VarHumidity].SuddenDelta)
	for variable, m := range meta {
		assert.Zero(t, m.Threshold, "%s must defer to the method's own default", variable)
	}
}
