package detect_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/station-sentinel/internal/detect"
	"github.com/couchcryptid/station-sentinel/internal/domain"
)

func TestRouter_Names(t *testing.T) {
	r := detect.NewRouter(detect.DefaultOptions())
	assert.Equal(t, []string{
		"3sigma", "ar_residual", "iqr", "knn_outlier",
		"mad", "percentile", "seasonal_residual", "zscore",
	}, r.Names())
}

func TestRouter_UnknownMethod(t *testing.T) {
	r := detect.NewRouter(detect.DefaultOptions())
	_, err := r.Get("dbscan")
	require.Error(t, err)

	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "unknown detection method")
}

func TestRouter_ThresholdOverride(t *testing.T) {
	r := detect.NewRouter(detect.DefaultOptions())
	values := []float64{10, 10.1, 9.9, 10, 10.05, 10.25}

	// Deviation of the last point is ~3 scaled MADs: flagged at a tight
	// threshold, clean at the stock 3.5.
	loose, err := r.Get("mad")
	require.NoError(t, err)
	assert.Equal(t, 0, loose.Detect(values).Count())

	tight, err := r.GetWithThreshold("mad", 2.0)
	require.NoError(t, err)
	res := tight.Detect(values)
	assert.Equal(t, 1, res.Count())
	assert.True(t, res.Mask[5])
}

func TestRouter_NonPositiveThresholdUsesDefault(t *testing.T) {
	r := detect.NewRouter(detect.DefaultOptions())
	s, err := r.GetWithThreshold("3sigma", 0)
	require.NoError(t, err)
	assert.Equal(t, "3sigma", s.Name())

	values := boundarySeries()
	assert.Equal(t, 0, s.Detect(values).Count())
}
