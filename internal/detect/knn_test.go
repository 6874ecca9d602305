package detect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKNNOutlier_FlagsIsolatedValue(t *testing.T) {
	values := []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 50}
	res := strategyFor(t, "knn_outlier").Detect(values)
	require.False(t, res.Failed())
	assert.Equal(t, 1, res.Count())
	assert.True(t, res.Mask[10])
}

func TestKNNOutlier_UniformSpacingFlagsNothing(t *testing.T) {
	values := make([]float64, 15)
	for i := range values {
		values[i] = float64(i)
	}
	res := strategyFor(t, "knn_outlier").Detect(values)
	require.False(t, res.Failed())
	assert.Equal(t, 0, res.Count())
}

func TestKNNOutlier_TiedScoresStillFlagExtreme(t *testing.T) {
	// Seven duplicates collapse the score spread to zero; the lone distant
	// value must still be flagged, and the merely off-mass values must not.
	values := []float64{5, 5, 5, 5, 5, 5, 5, 1, 2, 50}
	res := strategyFor(t, "knn_outlier").Detect(values)
	require.False(t, res.Failed())
	assert.Equal(t, 1, res.Count())
	assert.True(t, res.Mask[9])
}

func TestKNNOutlier_ShortSeriesIsInsufficient(t *testing.T) {
	res := strategyFor(t, "knn_outlier").Detect([]float64{1, 2, 3, 4, 5})
	assert.False(t, res.Failed(), "short input is a data condition, not a model failure")
	assert.True(t, res.Diagnostics.InsufficientData)
	assert.Equal(t, 0, res.Count())
}
