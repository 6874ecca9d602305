package detect

import (
	"math"
	"sort"
)

const (
	// madConsistency rescales the median absolute deviation to approximate
	// the standard deviation of a normal distribution.
	madConsistency = 1.4826

	// modifiedZFactor is the classic Iglewicz-Hoaglin constant for the
	// modified z-score.
	modifiedZFactor = 0.6745
)

// ThreeSigma flags points farther than threshold standard deviations from
// the mean. Needs at least 3 present values; a zero-variance series reports
// IsConstant and no anomalies. The comparison is strict: a point exactly at
// mean±threshold·std is not flagged.
func ThreeSigma(values []float64, threshold float64) Result {
	fin := finiteValues(values)
	if len(fin) < 3 {
		return insufficientResult(len(values))
	}

	mean, std := meanStd(fin)
	if std == 0 {
		return constantResult(len(values), map[string]float64{"mean": mean, "std": 0})
	}

	upper := mean + threshold*std
	lower := mean - threshold*std
	r := emptyResult(len(values))
	for i, v := range values {
		if isFinite(v) && (v > upper || v < lower) {
			r.Mask[i] = true
		}
	}
	r.Diagnostics.Stats = map[string]float64{
		"mean":        mean,
		"std":         std,
		"upper_bound": upper,
		"lower_bound": lower,
	}
	return r
}

// IQR flags points outside [Q1-k·IQR, Q3+k·IQR]. Needs at least 4 present
// values; a zero interquartile range means no anomalies.
func IQR(values []float64, k float64) Result {
	fin := finiteValues(values)
	if len(fin) < 4 {
		return insufficientResult(len(values))
	}

	sorted := sortedCopy(fin)
	q1 := percentileOf(sorted, 25)
	q3 := percentileOf(sorted, 75)
	iqr := q3 - q1
	med := medianSorted(sorted)
	if iqr == 0 {
		return constantResult(len(values), map[string]float64{"iqr": 0, "median": med})
	}

	lower := q1 - k*iqr
	upper := q3 + k*iqr
	r := emptyResult(len(values))
	for i, v := range values {
		if isFinite(v) && (v < lower || v > upper) {
			r.Mask[i] = true
		}
	}
	r.Diagnostics.Stats = map[string]float64{
		"q1":          q1,
		"q3":          q3,
		"iqr":         iqr,
		"median":      med,
		"lower_bound": lower,
		"upper_bound": upper,
	}
	return r
}

// MAD flags points whose distance from the median exceeds threshold scaled
// median-absolute-deviations (1.4826·MAD). When the MAD is zero it falls back
// to the mean absolute deviation; if that is also zero the series is constant
// and nothing is flagged. This is the primary default detector.
func MAD(values []float64, threshold float64) Result {
	fin := finiteValues(values)
	if len(fin) < 3 {
		return insufficientResult(len(values))
	}

	med := median(fin)
	absDev := make([]float64, len(fin))
	for i, v := range fin {
		absDev[i] = math.Abs(v - med)
	}
	mad := median(absDev)
	if mad == 0 {
		mad = mean(absDev)
	}
	if mad == 0 {
		return constantResult(len(values), map[string]float64{"median": med, "mad": 0})
	}

	scaled := madConsistency * mad
	r := emptyResult(len(values))
	for i, v := range values {
		if isFinite(v) && math.Abs(v-med)/scaled > threshold {
			r.Mask[i] = true
		}
	}
	r.Diagnostics.Stats = map[string]float64{
		"median":     med,
		"mad":        mad,
		"mad_scaled": scaled,
		"threshold":  threshold,
		"std":        scaled,
	}
	return r
}

// ModifiedZScore flags points with |0.6745·(x-median)/MAD| above threshold.
// Needs at least 3 present values; MAD of zero means no anomalies.
func ModifiedZScore(values []float64, threshold float64) Result {
	fin := finiteValues(values)
	if len(fin) < 3 {
		return insufficientResult(len(values))
	}

	med := median(fin)
	absDev := make([]float64, len(fin))
	for i, v := range fin {
		absDev[i] = math.Abs(v - med)
	}
	mad := median(absDev)
	if mad == 0 {
		return constantResult(len(values), map[string]float64{"median": med, "mad": 0})
	}

	r := emptyResult(len(values))
	for i, v := range values {
		if !isFinite(v) {
			continue
		}
		score := modifiedZFactor * (v - med) / mad
		if math.Abs(score) > threshold {
			r.Mask[i] = true
		}
	}
	r.Diagnostics.Stats = map[string]float64{
		"median":    med,
		"mad":       mad,
		"threshold": threshold,
		"std":       mad * madConsistency,
	}
	return r
}

// Percentile flags points outside the [lower, upper] percentile band of the
// series. Needs at least 10 present values.
func Percentile(values []float64, lower, upper float64) Result {
	fin := finiteValues(values)
	if len(fin) < 10 {
		return insufficientResult(len(values))
	}

	sorted := sortedCopy(fin)
	lb := percentileOf(sorted, lower)
	ub := percentileOf(sorted, upper)
	r := emptyResult(len(values))
	for i, v := range values {
		if isFinite(v) && (v < lb || v > ub) {
			r.Mask[i] = true
		}
	}
	r.Diagnostics.Stats = map[string]float64{
		"lower_bound": lb,
		"upper_bound": ub,
		"median":      medianSorted(sorted),
	}
	return r
}

// SuddenChange flags any point whose absolute difference from its immediate
// predecessor exceeds maxDelta. The first point is never flagged, and a
// missing predecessor suppresses the check for that point.
func SuddenChange(values []float64, maxDelta float64) Result {
	r := emptyResult(len(values))
	r.Diagnostics.Stats = map[string]float64{"max_delta": maxDelta}
	if len(values) < 2 {
		r.Diagnostics.InsufficientData = true
		return r
	}
	for i := 1; i < len(values); i++ {
		if !isFinite(values[i]) || !isFinite(values[i-1]) {
			continue
		}
		if math.Abs(values[i]-values[i-1]) > maxDelta {
			r.Mask[i] = true
		}
	}
	return r
}

// --- series helpers ---

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if isFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	m := mean(values)
	if len(values) == 0 {
		return 0, 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return m, math.Sqrt(sumSq / float64(len(values)))
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

func median(values []float64) float64 {
	return medianSorted(sortedCopy(values))
}

func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentileOf computes the p-th percentile of a sorted slice using linear
// interpolation between closest ranks.
func percentileOf(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
