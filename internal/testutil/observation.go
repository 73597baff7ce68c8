package testutil

import (
	"time"

	"github.com/roach88/outagecal/internal/outage"
)

// Kyiv is a fixed UTC+3 zone standing in for Europe/Kyiv summer time, so
// tests do not depend on the host's tz database.
var Kyiv = time.FixedZone("EEST", 3*60*60)

// Day is the reference date used across tests.
var Day = time.Date(2026, time.October, 19, 0, 0, 0, 0, Kyiv)

// Timed builds a timed outage for group from "HH:MM"-style hour/minute pairs on Day.
func Timed(group string, fromHour, fromMin, toHour, toMin int) outage.Observation {
	return outage.Observation{
		Group: group,
		Kind:  outage.KindOutage,
		Start: Day.Add(time.Duration(fromHour)*time.Hour + time.Duration(fromMin)*time.Minute),
		End:   Day.Add(time.Duration(toHour)*time.Hour + time.Duration(toMin)*time.Minute),
	}
}

// AllDay builds an all-day outage for group on Day.
func AllDay(group string) outage.Observation {
	return outage.Observation{
		Group:  group,
		Kind:   outage.KindOutage,
		Start:  Day,
		AllDay: true,
	}
}

// WithNote returns o with its Note set.
func WithNote(o outage.Observation, note string) outage.Observation {
	o.Note = note
	return o
}
