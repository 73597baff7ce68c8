package outage

import (
	"time"
)

// Normalize maps an observation to its semantic Period.
// It fails with an AmbiguityError when no single deterministic Period exists.
func Normalize(o Observation) (Period, error) {
	group, err := ParseGroupCode(o.Group)
	if err != nil {
		return Period{}, err
	}
	kind, err := ParseKind(string(o.Kind))
	if err != nil {
		return Period{}, err
	}
	if o.Start.IsZero() {
		return Period{}, &AmbiguityError{Field: "start", Reason: "missing start"}
	}

	var start, end time.Time
	if o.AllDay {
		start, end, err = allDayBounds(o.Start, o.End)
	} else {
		start, end, err = timedBounds(o.Start, o.End)
	}
	if err != nil {
		return Period{}, err
	}

	return Period{
		Group: group,
		Kind:  kind,
		Start: start.UTC(),
		End:   end.UTC(),
	}, nil
}

func allDayBounds(from, to time.Time) (time.Time, time.Time, error) {
	start := midnight(from)
	end := start.AddDate(0, 0, 1)
	if to.IsZero() {
		return start, end, nil
	}
	if to.Before(start) {
		return time.Time{}, time.Time{}, &AmbiguityError{
			Field:  "end",
			Value:  to.Format(time.RFC3339),
			Reason: "all-day period ends before its start date",
		}
	}
	if e := ceilDay(to.In(from.Location())); e.After(end) {
		end = e
	}
	return start, end, nil
}

func timedBounds(from, to time.Time) (time.Time, time.Time, error) {
	if to.IsZero() {
		return time.Time{}, time.Time{}, &AmbiguityError{Field: "end", Reason: "timed period without end"}
	}
	start := from.Truncate(time.Minute)
	end := to.Truncate(time.Minute)
	if !end.After(start) {
		return time.Time{}, time.Time{}, &AmbiguityError{
			Field:  "end",
			Value:  to.Format(time.RFC3339),
			Reason: "period does not end after it starts",
		}
	}
	return start, end, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func ceilDay(t time.Time) time.Time {
	m := midnight(t)
	if t.Equal(m) {
		return m
	}
	return m.AddDate(0, 0, 1)
}
