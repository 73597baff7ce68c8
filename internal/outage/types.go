package outage

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Kind tags what an observed period means for the group.
type Kind string

const (
	// KindOutage is a scheduled period without power.
	KindOutage Kind = "outage"

	// KindAvailable is a period with power explicitly available.
	KindAvailable Kind = "available"
)

// ParseKind normalises s and returns the matching Kind.
// Unknown kinds are rejected with an AmbiguityError.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(norm.NFC.String(s))))
	switch k {
	case KindOutage, KindAvailable:
		return k, nil
	}
	return "", &AmbiguityError{Field: "kind", Value: s, Reason: "unknown period kind"}
}

// Status is the lifecycle state of a durable Event.
type Status string

const (
	StatusActive  Status = "active"
	StatusRemoved Status = "removed"
)

// Observation is one raw outage period reported by a scrape cycle.
// It has no identity beyond its content.
type Observation struct {
	// Group is the group code as reported, e.g. "1.1".
	Group string `json:"group" yaml:"group"`

	Kind Kind `json:"kind" yaml:"kind"`

	// Start and End carry the location the source reported them in.
	// For all-day observations only the date of Start (and optionally End) matters.
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end,omitempty" yaml:"end,omitempty"`

	AllDay bool `json:"all_day,omitempty" yaml:"all_day,omitempty"`

	// Note is free text carried to the display fields (e.g. the schedule's last update).
	Note string `json:"note,omitempty" yaml:"note,omitempty"`
}

// Period is the normalised semantic content of an Observation.
// Start and End are UTC, minute precision, End exclusive.
type Period struct {
	Group GroupCode
	Kind  Kind
	Start time.Time
	End   time.Time
}

// Fields are the denormalised display fields stored on an Event.
type Fields struct {
	Group  GroupCode `json:"group"`
	Kind   Kind      `json:"kind"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
	Note   string    `json:"note,omitempty"`
}

// DisplayFields combines the normalised period with the presentation
// details of the observation it came from.
func DisplayFields(p Period, o Observation) Fields {
	return Fields{
		Group:  p.Group,
		Kind:   p.Kind,
		Start:  p.Start,
		End:    p.End,
		AllDay: o.AllDay,
		Note:   strings.TrimSpace(norm.NFC.String(o.Note)),
	}
}

// Event is a durable ledger row.
//
// UID is assigned once when the Fingerprint is first observed and is never
// reassigned. At most one Active Event exists per Fingerprint.
type Event struct {
	UID         string      `json:"uid"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Fields
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	RemovedAt  *time.Time `json:"removed_at,omitempty"`
}

// Active reports whether the event is currently scheduled.
func (e Event) Active() bool {
	return e.Status == StatusActive
}
