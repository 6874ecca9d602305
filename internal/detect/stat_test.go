package detect_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/station-sentinel/internal/detect"
)

// boundarySeries has mean 0 and population standard deviation exactly 1, with
// its extremes sitting at exactly +/-3.
func boundarySeries() []float64 {
	values := []float64{3, -3}
	for i := 0; i < 16; i++ {
		values = append(values, math.Sqrt(0.5))
	}
	for i := 0; i < 16; i++ {
		values = append(values, -math.Sqrt(0.5))
	}
	return values
}

func TestThreeSigma_StrictBoundary(t *testing.T) {
	values := boundarySeries()

	res := detect.ThreeSigma(values, 3.0)
	require.False(t, res.Failed())
	assert.Equal(t, 0, res.Count(), "a point exactly at the boundary is not an anomaly")
	assert.InDelta(t, 0, res.Diagnostics.Stats["mean"], 1e-9)
	assert.InDelta(t, 1, res.Diagnostics.Stats["std"], 1e-9)

	res = detect.ThreeSigma(values, 2.99)
	assert.Equal(t, 2, res.Count())
	assert.True(t, res.Mask[0])
	assert.True(t, res.Mask[1])
}

func TestThreeSigma_Insufficient(t *testing.T) {
	res := detect.ThreeSigma([]float64{1, 2}, 3.0)
	assert.True(t, res.Diagnostics.InsufficientData)
	assert.Len(t, res.Mask, 2)
	assert.Equal(t, 0, res.Count())
}

func TestThreeSigma_ConstantSeries(t *testing.T) {
	res := detect.ThreeSigma([]float64{7, 7, 7, 7}, 3.0)
	assert.True(t, res.Diagnostics.IsConstant)
	assert.Equal(t, 0, res.Count())
}

func TestIQR_FlagsFarPoint(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 100}
	res := detect.IQR(values, 1.5)
	require.False(t, res.Failed())
	assert.Equal(t, 1, res.Count())
	assert.True(t, res.Mask[9])
	assert.InDelta(t, 12.25, res.Diagnostics.Stats["q1"], 1e-9)
	assert.InDelta(t, 16.75, res.Diagnostics.Stats["q3"], 1e-9)
}

func TestMAD_FlagsSpike(t *testing.T) {
	values := []float64{10, 10.1, 9.9, 10, 10.05, 30}
	res := detect.MAD(values, 3.5)
	require.False(t, res.Failed())
	assert.Equal(t, 1, res.Count())
	assert.True(t, res.Mask[5])
	assert.InDelta(t, 10.025, res.Diagnostics.Stats["median"], 1e-9)
	assert.InDelta(t, 0.05, res.Diagnostics.Stats["mad"], 1e-9)
}

func TestMAD_IgnoresMissing(t *testing.T) {
	values := []float64{10, math.NaN(), 10.1, 9.9, math.NaN(), 25}
	res := detect.MAD(values, 3.5)
	require.False(t, res.Failed())
	require.Len(t, res.Mask, 6)
	assert.False(t, res.Mask[1], "missing points are never flagged")
	assert.False(t, res.Mask[4])
	assert.True(t, res.Mask[5])
}

func TestMAD_ScaledTracksStdOnNormalData(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	values := make([]float64, 5000)
	for i := range values {
		values[i] = rng.NormFloat64()
	}

	res := detect.MAD(values, 3.5)
	require.False(t, res.Failed())

	var sum, sumSq float64
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(len(values)))

	// The 1.4826 consistency constant makes the scaled MAD estimate the
	// standard deviation of normally distributed data.
	assert.InEpsilon(t, std, res.Diagnostics.Stats["mad_scaled"], 0.1)
}

func TestMAD_ConstantFallsBackThenReportsConstant(t *testing.T) {
	res := detect.MAD([]float64{4, 4, 4, 4, 4}, 3.5)
	assert.True(t, res.Diagnostics.IsConstant)
	assert.Equal(t, 0, res.Count())
}

func TestModifiedZScore_FlagsSpike(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 100}
	res := detect.ModifiedZScore(values, 3.5)
	require.False(t, res.Failed())
	assert.Equal(t, 1, res.Count())
	assert.True(t, res.Mask[5])
}

func TestModifiedZScore_ZeroMADIsConstant(t *testing.T) {
	res := detect.ModifiedZScore([]float64{5, 5, 5, 5, 9}, 3.5)
	assert.True(t, res.Diagnostics.IsConstant)
	assert.Equal(t, 0, res.Count())
}

func TestPercentile_FlagsTails(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = float64(i + 1)
	}
	res := detect.Percentile(values, 5, 95)
	require.False(t, res.Failed())
	assert.Equal(t, 2, res.Count())
	assert.True(t, res.Mask[0])
	assert.True(t, res.Mask[19])
}

func TestPercentile_Insufficient(t *testing.T) {
	res := detect.Percentile([]float64{1, 2, 3}, 1, 99)
	assert.True(t, res.Diagnostics.InsufficientData)
}

func TestSuddenChange(t *testing.T) {
	values := []float64{10, math.NaN(), 20, 20.5, 30}
	res := detect.SuddenChange(values, 5)
	require.False(t, res.Failed())
	assert.False(t, res.Mask[0], "first point has no predecessor")
	assert.False(t, res.Mask[2], "missing predecessor suppresses the check")
	assert.False(t, res.Mask[3])
	assert.True(t, res.Mask[4])
}

func TestSuddenChange_TooShort(t *testing.T) {
	res := detect.SuddenChange([]float64{10}, 5)
	assert.True(t, res.Diagnostics.InsufficientData)
	assert.Equal(t, 0, res.Count())
}
