package pipeline

import (
	"strings"
	"time"

	"github.com/couchcryptid/station-sentinel/internal/domain"
)

// Window bounds one detection run.
type Window struct {
	Start time.Time
	End   time.Time
}

// timeLayouts are the accepted CLI time formats, tried in order.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// ResolveWindow turns the invocation surface's time arguments into a concrete
// window: either explicit start+end, or end+duration in hours. The literal
// "now" resolves to the current time. A missing or contradictory range is a
// ValidationError, reported before any I/O.
func ResolveWindow(startStr, endStr string, windowHours int, now time.Time) (Window, error) {
	start, err := parseTimeArg(startStr, now)
	if err != nil {
		return Window{}, err
	}
	end, err := parseTimeArg(endStr, now)
	if err != nil {
		return Window{}, err
	}

	switch {
	case !start.IsZero() && !end.IsZero():
		if !start.Before(end) {
			return Window{}, domain.NewValidationError("start time must be before end time")
		}
		return Window{Start: start, End: end}, nil
	case !end.IsZero() && windowHours > 0:
		return Window{Start: end.Add(-time.Duration(windowHours) * time.Hour), End: end}, nil
	case windowHours > 0:
		return Window{Start: now.Add(-time.Duration(windowHours) * time.Hour), End: now}, nil
	default:
		return Window{}, domain.NewValidationError("must specify a time range: either start and end, or end and a window duration")
	}
}

func parseTimeArg(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if strings.EqualFold(s, "now") {
		return now, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domain.NewValidationError("unparseable time " + s)
}
