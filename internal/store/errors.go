package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/outagecal/internal/outage"
)

// DuplicateActiveError reports more than one active row for a fingerprint.
// The ledger is corrupt when this is returned; it is never repaired silently.
type DuplicateActiveError struct {
	Fingerprint outage.Fingerprint
	UIDs        []string
}

func (e *DuplicateActiveError) Error() string {
	return fmt.Sprintf("fingerprint %s has %d active events (%s)",
		e.Fingerprint.Short(), len(e.UIDs), strings.Join(e.UIDs, ", "))
}

// IsDuplicateActive reports whether err is (or wraps) a DuplicateActiveError.
func IsDuplicateActive(err error) bool {
	var de *DuplicateActiveError
	return errors.As(err, &de)
}

// ErrTxDone is returned when a CycleTx is used after Commit or Rollback.
var ErrTxDone = errors.New("cycle transaction already finished")
