package detect

import "math"

// minARPoints is the shortest series an AR(1) fit will accept.
const minARPoints = 20

// arResidual fits a first-order autoregressive model to the series and flags
// points whose one-step-ahead residual exceeds threshold standard deviations.
// Fit failures (short series, zero lag variance) surface as a failure marker
// so the pipeline skips the variable instead of aborting.
type arResidual struct {
	threshold float64
}

func (arResidual) Name() string { return "ar_residual" }

func (s arResidual) Detect(values []float64) Result {
	fin, positions := finiteWithPositions(values)
	if len(fin) < minARPoints {
		return failedResult(len(values), "insufficient data for autoregressive fit")
	}

	// Least-squares fit of x[t] = c + phi*x[t-1] over consecutive pairs.
	lagged := fin[:len(fin)-1]
	current := fin[1:]
	lagMean := mean(lagged)
	curMean := mean(current)
	var cov, lagVar float64
	for i := range lagged {
		dl := lagged[i] - lagMean
		cov += dl * (current[i] - curMean)
		lagVar += dl * dl
	}
	if lagVar == 0 {
		return failedResult(len(values), "autoregressive fit failed: zero lag variance")
	}
	phi := cov / lagVar
	intercept := curMean - phi*lagMean

	resid := make([]float64, len(current))
	for i := range current {
		resid[i] = current[i] - (intercept + phi*lagged[i])
	}
	_, std := meanStd(resid)

	r := emptyResult(len(values))
	r.Diagnostics.Stats = map[string]float64{
		"phi":           phi,
		"intercept":     intercept,
		"mean_residual": mean(resid),
		"std_residual":  std,
	}
	if std == 0 {
		return r
	}
	// resid[i] belongs to the (i+1)-th present point.
	for i, res := range resid {
		if math.Abs(res) > s.threshold*std {
			r.Mask[positions[i+1]] = true
		}
	}
	return r
}

// seasonalResidual removes a moving-average trend and a per-phase median
// seasonal component, then flags residuals beyond threshold scaled MADs.
// The period is the expected number of samples per seasonal cycle.
type seasonalResidual struct {
	period    int
	threshold float64
}

func (seasonalResidual) Name() string { return "seasonal_residual" }

func (s seasonalResidual) Detect(values []float64) Result {
	period := s.period
	if period < 2 {
		period = 2
	}
	fin, positions := finiteWithPositions(values)
	if len(fin) < 2*period {
		return failedResult(len(values), "insufficient data for seasonal decomposition")
	}

	trend := movingAverage(fin, period)
	detrended := make([]float64, len(fin))
	for i := range fin {
		detrended[i] = fin[i] - trend[i]
	}

	// Per-phase median seasonal component.
	seasonal := make([]float64, period)
	for phase := 0; phase < period; phase++ {
		var phaseVals []float64
		for i := phase; i < len(detrended); i += period {
			phaseVals = append(phaseVals, detrended[i])
		}
		seasonal[phase] = median(phaseVals)
	}

	resid := make([]float64, len(fin))
	for i := range detrended {
		resid[i] = detrended[i] - seasonal[i%period]
	}

	med := median(resid)
	absDev := make([]float64, len(resid))
	for i, v := range resid {
		absDev[i] = math.Abs(v - med)
	}
	mad := median(absDev)

	r := emptyResult(len(values))
	r.Diagnostics.Stats = map[string]float64{
		"period":          float64(period),
		"median_residual": med,
		"mad_residual":    mad,
	}
	if mad == 0 {
		return r
	}
	limit := s.threshold * madConsistency * mad
	for i, v := range resid {
		if math.Abs(v-med) > limit {
			r.Mask[positions[i]] = true
		}
	}
	return r
}

// movingAverage computes a centered moving average with the given window,
// shrinking the window at the edges.
func movingAverage(values []float64, window int) []float64 {
	half := window / 2
	out := make([]float64, len(values))
	for i := range values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > len(values)-1 {
			hi = len(values) - 1
		}
		out[i] = mean(values[lo : hi+1])
	}
	return out
}

// finiteWithPositions returns the present values and, for each, its index in
// the original series so masks can be mapped back.
func finiteWithPositions(values []float64) ([]float64, []int) {
	fin := make([]float64, 0, len(values))
	pos := make([]int, 0, len(values))
	for i, v := range values {
		if isFinite(v) {
			fin = append(fin, v)
			pos = append(pos, i)
		}
	}
	return fin, pos
}
