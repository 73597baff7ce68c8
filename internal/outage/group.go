package outage

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// GroupCode identifies an outage queue, formatted "X.Y" with X,Y in 1..6.
type GroupCode string

var groupCodePattern = regexp.MustCompile(`^[1-6]\.[1-6]$`)

// ParseGroupCode validates and normalises a group code.
func ParseGroupCode(s string) (GroupCode, error) {
	code := strings.TrimSpace(norm.NFC.String(s))
	if !groupCodePattern.MatchString(code) {
		return "", &AmbiguityError{Field: "group", Value: s, Reason: "group code must be X.Y with X,Y in 1..6"}
	}
	return GroupCode(code), nil
}

// ParseGroupCodes parses a list of codes, failing on the first invalid one.
// Blank entries are skipped.
func ParseGroupCodes(in []string) ([]GroupCode, error) {
	out := make([]GroupCode, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		code, err := ParseGroupCode(s)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}
