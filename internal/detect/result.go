package detect

// Diagnostics carries a detector's summary statistics and explicit condition
// flags. Conditions like "too few points" or "constant series" are data
// facts, not errors; FailureReason is the marker for a strategy whose backing
// model could not run at all (bad fit, degenerate input for the model).
type Diagnostics struct {
	Stats            map[string]float64 `json:"stats,omitempty"`
	IsConstant       bool               `json:"is_constant,omitempty"`
	InsufficientData bool               `json:"insufficient_data,omitempty"`
	FailureReason    string             `json:"failure_reason,omitempty"`
}

// Result pairs a per-point anomaly mask with diagnostics. The mask is always
// sized to the input series; detectors never return an error.
type Result struct {
	Mask        []bool
	Diagnostics Diagnostics
}

// Failed reports whether the strategy carries a failure marker. A failed
// result contributes no anomalies and the surrounding pipeline discards the
// variable rather than aborting.
func (r Result) Failed() bool {
	return r.Diagnostics.FailureReason != ""
}

// Count returns the number of flagged points.
func (r Result) Count() int {
	n := 0
	for _, flagged := range r.Mask {
		if flagged {
			n++
		}
	}
	return n
}

func emptyResult(n int) Result {
	return Result{Mask: make([]bool, n)}
}

func insufficientResult(n int) Result {
	r := emptyResult(n)
	r.Diagnostics.InsufficientData = true
	return r
}

func constantResult(n int, stats map[string]float64) Result {
	r := emptyResult(n)
	r.Diagnostics.IsConstant = true
	r.Diagnostics.Stats = stats
	return r
}

func failedResult(n int, reason string) Result {
	r := emptyResult(n)
	r.Diagnostics.FailureReason = reason
	return r
}
