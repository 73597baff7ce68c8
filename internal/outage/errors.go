package outage

import (
	"errors"
	"fmt"
)

// AmbiguityError reports an observation that cannot be normalised to a
// single deterministic Fingerprint. Such observations are rejected, never
// coerced.
type AmbiguityError struct {
	Field  string
	Value  string
	Reason string
}

func (e *AmbiguityError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("ambiguous observation: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("ambiguous observation: %s %q: %s", e.Field, e.Value, e.Reason)
}

// IsAmbiguity reports whether err is (or wraps) an AmbiguityError.
func IsAmbiguity(err error) bool {
	var ae *AmbiguityError
	return errors.As(err, &ae)
}
