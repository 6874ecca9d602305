package observability

import (
	"context"
	"net/http"
	"time"
)

// ReadinessChecker reports whether a component is ready to serve.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// LivenessHandler always answers 200; the process is up if it can answer.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// ReadinessHandler answers 200 once the checker passes, 503 with the failure
// reason until then.
func ReadinessHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := checker.CheckReadiness(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	}
}
