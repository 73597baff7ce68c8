package reconcile

import (
	"errors"

	"github.com/roach88/outagecal/internal/outage"
)

// Entry is the observation chosen to represent one fingerprint in a cycle.
type Entry struct {
	Fingerprint outage.Fingerprint
	Period      outage.Period
	Fields      outage.Fields

	// Index is the position of the chosen observation in the cycle input.
	Index int
}

// Rejection is an observation that could not be fingerprinted.
type Rejection struct {
	Index  int    `json:"index"`
	Group  string `json:"group"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Dedupe fingerprints obs and folds same-cycle repeats into one Entry per
// fingerprint. Entries keep the order in which their fingerprint first appears.
//
// When two observations share a fingerprint, a timed observation beats an
// all-day one; otherwise the later observation wins.
func Dedupe(obs []outage.Observation) (entries []Entry, rejections []Rejection, duplicates int) {
	pos := make(map[outage.Fingerprint]int)

	for i, o := range obs {
		fp, p, err := outage.FingerprintOf(o)
		if err != nil {
			rej := Rejection{Index: i, Group: o.Group, Reason: err.Error(), Err: err}
			var ae *outage.AmbiguityError
			if errors.As(err, &ae) {
				rej.Field = ae.Field
				rej.Reason = ae.Reason
			}
			rejections = append(rejections, rej)
			continue
		}

		candidate := Entry{Fingerprint: fp, Period: p, Fields: outage.DisplayFields(p, o), Index: i}
		j, ok := pos[fp]
		if !ok {
			pos[fp] = len(entries)
			entries = append(entries, candidate)
			continue
		}

		duplicates++
		if replaces(entries[j], candidate) {
			entries[j] = candidate
		}
	}

	return entries, rejections, duplicates
}

// replaces reports whether next should represent the fingerprint instead of cur.
func replaces(cur, next Entry) bool {
	if cur.Fields.AllDay != next.Fields.AllDay {
		return cur.Fields.AllDay
	}
	return true
}
