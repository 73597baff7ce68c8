// Package reconcile applies one scrape cycle's observations to the ledger.
//
// A cycle runs in four steps inside a single store.CycleTx:
//
//  1. Observations are fingerprinted and deduplicated. Observations that
//     cannot be normalised are rejected and reported, never coerced.
//  2. The fingerprints of the events active before the cycle are read.
//  3. Every fingerprint seen in the cycle is upserted (created or refreshed).
//  4. Every previously active fingerprint not seen is tombstoned.
//
// The transaction then commits, or on any error rolls back entirely, so
// readers never observe a partial cycle. An empty input tombstones every
// active event; deciding whether an empty scrape should reach the
// Reconciler at all belongs to the caller (see package cycle).
package reconcile
