package source

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/outagecal/internal/outage"
)

// DefaultTimezone is the zone schedules are published in.
const DefaultTimezone = "Europe/Kyiv"

// Status texts printed by the schedule.
const (
	StatusTextOutage    = "Електроенергії немає"
	StatusTextAvailable = "Електроенергія є"
)

var groupNamePattern = regexp.MustCompile(`(\d+\.\d+)`)

// LoadLocation resolves a time zone name. The tz database is embedded, so
// this works on hosts without one.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// GroupCodeFromName extracts "X.Y" from a label such as "Група 1.1".
// The label is returned unchanged when it carries no code.
func GroupCodeFromName(name string) string {
	if m := groupNamePattern.FindString(norm.NFC.String(name)); m != "" {
		return m
	}
	return name
}

// StatusKind maps a schedule status text to a Kind.
// Unknown texts are returned verbatim for the reconciler to reject.
func StatusKind(status string) outage.Kind {
	switch strings.TrimSpace(norm.NFC.String(status)) {
	case StatusTextOutage:
		return outage.KindOutage
	case StatusTextAvailable:
		return outage.KindAvailable
	}
	return outage.Kind(status)
}

// Observations maps the snapshot's groups to observations in loc.
//
// A group without a period covers the whole schedule day. "24:00" and an
// end of "23:59" both mean the end of the day, and a period whose end is
// not after its start runs past midnight into the next day. Fields that cannot be parsed are left zero.
func Observations(s *Snapshot, loc *time.Location) []outage.Observation {
	if s == nil {
		return nil
	}

	date, dateErr := time.ParseInLocation(DateLayout, strings.TrimSpace(s.Date), loc)
	obs := make([]outage.Observation, 0, len(s.Groups))
	for _, g := range s.Groups {
		o := outage.Observation{
			Group: GroupCodeFromName(g.Name),
			Kind:  StatusKind(g.Status),
			Note:  s.LastUpdate,
		}
		if dateErr != nil {
			obs = append(obs, o)
			continue
		}

		if g.Period == nil || (strings.TrimSpace(g.Period.From) == "" && strings.TrimSpace(g.Period.To) == "") {
			o.AllDay = true
			o.Start = date
			obs = append(obs, o)
			continue
		}

		from, fromErr := parseClock(g.Period.From)
		to, toErr := parseClock(g.Period.To)
		if toErr == nil && to == lastMinute {
			to = endOfDay
		}
		if fromErr == nil {
			o.Start = at(date, from)
		}
		if fromErr == nil && toErr == nil {
			o.End = at(date, to)
			if !o.End.After(o.Start) {
				o.End = at(date.AddDate(0, 0, 1), to)
			}
		}
		obs = append(obs, o)
	}
	return obs
}

// clock is minutes after midnight; 24*60 is the end of the day.
type clock int

const (
	lastMinute clock = 23*60 + 59
	endOfDay   clock = 24 * 60
)

// parseClock accepts "H:MM", "HH:MM" or the same with "." as separator.
func parseClock(s string) (clock, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ".", ":")
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return clock(h*60 + m), nil
}

func at(date time.Time, c clock) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, int(c)/60, int(c)%60, 0, 0, date.Location())
}
