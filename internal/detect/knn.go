package detect

import (
	"math"
	"sort"
)

// minKNNPoints is the shortest series the density scorer will accept.
const minKNNPoints = 10

// degenerateSpreadEps bounds, relative to the median score, how small a
// scaled MAD can be before it is treated as a tie artifact rather than a
// usable spread estimate.
const degenerateSpreadEps = 1e-9

// knnOutlier scores each point by its mean distance to the k nearest values
// in the series and flags points whose score is a robust outlier among the
// scores themselves. A low-density point sits far from everything else, the
// same intuition as the classic local-outlier-factor family, reduced to one
// dimension.
type knnOutlier struct {
	k         int
	threshold float64
}

func (knnOutlier) Name() string { return "knn_outlier" }

func (s knnOutlier) Detect(values []float64) Result {
	fin, positions := finiteWithPositions(values)
	if len(fin) < minKNNPoints {
		r := insufficientResult(len(values))
		return r
	}

	k := s.k
	if k < 1 {
		k = 1
	}
	if k > len(fin)-1 {
		k = len(fin) - 1
	}

	scores := make([]float64, len(fin))
	dists := make([]float64, 0, len(fin)-1)
	for i, v := range fin {
		dists = dists[:0]
		for j, u := range fin {
			if i == j {
				continue
			}
			dists = append(dists, math.Abs(v-u))
		}
		sort.Float64s(dists)
		scores[i] = mean(dists[:k])
	}

	med := median(scores)
	absDev := make([]float64, len(scores))
	for i, v := range scores {
		absDev[i] = math.Abs(v - med)
	}
	mad := median(absDev)

	limit := med + s.threshold*madConsistency*mad
	// When over half the points share a density, their scores tie and the
	// MAD collapses to zero up to float rounding, leaving the cut a hair
	// above the median. Switch to a scale-relative cut on the mean score
	// so only a point far from the whole series stands out.
	if madConsistency*mad <= degenerateSpreadEps*(1+med) {
		limit = s.threshold * mean(scores)
	}

	r := emptyResult(len(values))
	r.Diagnostics.Stats = map[string]float64{
		"k":                   float64(k),
		"median_knn_distance": med,
		"mad_knn_distance":    mad,
		"limit":               limit,
	}
	for i, score := range scores {
		if score > limit {
			r.Mask[positions[i]] = true
		}
	}
	return r
}
