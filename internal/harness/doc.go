// Package harness runs scripted reconciliation scenarios against a fresh
// ledger and compares the outcome with golden files.
//
// A scenario is a YAML file listing cycle and sweep steps. Cycle steps carry
// schedule lines (group, kind, from/to or all_day, note) that are read the
// same way a scraped schedule is, so a scenario exercises the source mapping,
// normalisation, fingerprinting, reconciliation and retention together.
//
// Runs are deterministic: the clock only moves when a step says so
// ("advance: 30m") and UIDs are minted as ev-1, ev-2, ... in creation order.
//
// Example:
//
//	name: removal
//	description: a period missing from the next cycle is tombstoned
//	steps:
//	  - do: cycle
//	    observations:
//	      - {group: "1.1", from: "08:00", to: "12:00"}
//	  - do: cycle
//	    advance: 30m
//	    expect: {removed: 1}
//	assertions:
//	  - type: active_count
//	    count: 0
//
// Golden files hold the canonical JSON of every step trace plus the final
// ledger, removed rows included.
package harness
