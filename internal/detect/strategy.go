// Package detect implements the statistical outlier detectors and the named
// strategy router that maps a single station's time window onto an anomaly
// mask plus diagnostic statistics.
//
// All detectors share one contract: series in (missing values as NaN),
// (mask, diagnostics) out. Detectors never raise on short or degenerate
// input; those conditions surface as explicit diagnostic flags so the
// orchestrator can skip a variable without aborting the run.
package detect

import (
	"sort"

	"github.com/couchcryptid/station-sentinel/internal/domain"
)

// Strategy maps a numeric series onto an anomaly mask plus diagnostics.
// Implementations backed by a numerical model (autoregressive residuals,
// seasonal decomposition, density scoring) report fit failures through the
// Result's failure marker, never through a panic or error.
type Strategy interface {
	Name() string
	Detect(values []float64) Result
}

// Options holds the default parameters for every registered strategy.
// All of them are externally configurable.
type Options struct {
	SigmaThreshold    float64
	IQRFactor         float64
	MADThreshold      float64
	ZScoreThreshold   float64
	PercentileLower   float64
	PercentileUpper   float64
	ARThreshold       float64
	SeasonalPeriod    int
	SeasonalThreshold float64
	KNNNeighbors      int
	KNNThreshold      float64
}

// DefaultOptions returns the stock thresholds for all strategies.
func DefaultOptions() Options {
	return Options{
		SigmaThreshold:    3.0,
		IQRFactor:         1.5,
		MADThreshold:      3.5,
		ZScoreThreshold:   3.0,
		PercentileLower:   1,
		PercentileUpper:   99,
		ARThreshold:       3.0,
		SeasonalPeriod:    6,
		SeasonalThreshold: 3.0,
		KNNNeighbors:      5,
		KNNThreshold:      3.5,
	}
}

// DefaultMethod is the primary detector used when none is configured.
const DefaultMethod = "mad"

// funcStrategy adapts a threshold-parameterized detector function.
type funcStrategy struct {
	name      string
	threshold float64
	fn        func(values []float64, threshold float64) Result
}

func (s funcStrategy) Name() string { return s.name }

func (s funcStrategy) Detect(values []float64) Result { return s.fn(values, s.threshold) }

// Router resolves detection strategies by name. Unknown names are a
// configuration fault and reported before any I/O happens.
type Router struct {
	defaults map[string]float64
	builders map[string]func(threshold float64) Strategy
}

// NewRouter registers all built-in and model-backed strategies with the
// given default parameters.
func NewRouter(opts Options) *Router {
	r := &Router{
		defaults: make(map[string]float64),
		builders: make(map[string]func(threshold float64) Strategy),
	}

	r.register("3sigma", opts.SigmaThreshold, func(t float64) Strategy {
		return funcStrategy{name: "3sigma", threshold: t, fn: ThreeSigma}
	})
	r.register("iqr", opts.IQRFactor, func(t float64) Strategy {
		return funcStrategy{name: "iqr", threshold: t, fn: IQR}
	})
	r.register("mad", opts.MADThreshold, func(t float64) Strategy {
		return funcStrategy{name: "mad", threshold: t, fn: MAD}
	})
	r.register("zscore", opts.ZScoreThreshold, func(t float64) Strategy {
		return funcStrategy{name: "zscore", threshold: t, fn: ModifiedZScore}
	})
	r.register("percentile", 0, func(float64) Strategy {
		return funcStrategy{name: "percentile", fn: func(values []float64, _ float64) Result {
			return Percentile(values, opts.PercentileLower, opts.PercentileUpper)
		}}
	})
	r.register("ar_residual", opts.ARThreshold, func(t float64) Strategy {
		return arResidual{threshold: t}
	})
	r.register("seasonal_residual", opts.SeasonalThreshold, func(t float64) Strategy {
		return seasonalResidual{period: opts.SeasonalPeriod, threshold: t}
	})
	r.register("knn_outlier", opts.KNNThreshold, func(t float64) Strategy {
		return knnOutlier{k: opts.KNNNeighbors, threshold: t}
	})

	return r
}

func (r *Router) register(name string, defaultThreshold float64, build func(threshold float64) Strategy) {
	r.defaults[name] = defaultThreshold
	r.builders[name] = build
}

// Get returns the named strategy with its default parameters.
func (r *Router) Get(name string) (Strategy, error) {
	return r.GetWithThreshold(name, 0)
}

// GetWithThreshold returns the named strategy, overriding its primary
// threshold when threshold is positive.
func (r *Router) GetWithThreshold(name string, threshold float64) (Strategy, error) {
	build, ok := r.builders[name]
	if !ok {
		return nil, domain.NewValidationError("unknown detection method " + name)
	}
	if threshold <= 0 {
		threshold = r.defaults[name]
	}
	return build(threshold), nil
}

// Names lists all registered strategy names, sorted.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
