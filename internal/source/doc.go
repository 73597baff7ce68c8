// Package source turns saved schedule scrapes into observations.
//
// The scraper writes one JSON snapshot per scrape, named
// "<YYYYMMDD_HHMMSS>_power_outages.json", holding the schedule date, the time
// the schedule was last updated and one entry per outage group:
//
//	{
//	  "date": "19.10.2026",
//	  "date_found": true,
//	  "last_update": "19.10.2026 07:30",
//	  "groups": [
//	    {"name": "Група 1.1", "status": "Електроенергії немає", "period": {"from": "08:00", "to": "12:00"}}
//	  ]
//	}
//
// Validate classifies a snapshot before it is reconciled; Observations maps
// its groups to outage.Observation values in the schedule's time zone.
// Entries that cannot be mapped are passed through with the offending field
// left empty, so the reconciler rejects and reports them.
package source
