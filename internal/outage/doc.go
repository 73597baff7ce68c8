// Package outage defines the domain model of the outage ledger.
//
// Raw observations arrive once per scrape cycle and carry no identity of their
// own. Normalize turns an Observation into a Period (group, kind and a
// half-open UTC interval at minute precision), and Period.Fingerprint hashes
// that Period into the stable key used to recognise the same outage across
// cycles.
//
// # Normalisation rules
//
//   - Group codes are NFC normalised, trimmed and must match X.Y with X,Y in 1..6.
//   - Kinds are NFC normalised, lower-cased and must be a known Kind.
//   - All-day observations cover [midnight(Start), midnight(End)) in the
//     observation's own location; an End on the start date (or missing) means
//     a single day, an End with a clock time rounds up to the next midnight.
//   - Timed observations are truncated to the minute and otherwise kept as
//     the instants they name. Schedule notations for "until midnight" are
//     resolved by the source before normalisation.
//   - A timed period spanning exactly whole local days normalises to the same
//     Period as the equivalent all-day observation.
//
// Fingerprints are SHA-256 over RFC 8785 canonical JSON with domain
// separation, so equal Periods always produce equal Fingerprints no matter
// which zone their instants were expressed in.
package outage
