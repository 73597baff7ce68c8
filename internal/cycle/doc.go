// Package cycle sits between the scraper and the reconciler.
//
// It decides whether a scrape may be reconciled at all: failed scrapes never
// are, and empty or implausibly small scrapes are handled by an explicit
// Policy instead of silently tombstoning the ledger. Runner.Watch repeats
// cycles and retention sweeps on cron schedules without letting them overlap.
package cycle
