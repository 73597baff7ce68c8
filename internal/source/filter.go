package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/roach88/outagecal/internal/outage"
)

// GroupFilter keeps observations for a configured set of groups.
// The zero value keeps everything.
type GroupFilter struct {
	codes map[outage.GroupCode]struct{}
}

// NewGroupFilter creates a filter for codes. No codes means no filtering.
func NewGroupFilter(codes []outage.GroupCode) GroupFilter {
	if len(codes) == 0 {
		return GroupFilter{}
	}
	f := GroupFilter{codes: make(map[outage.GroupCode]struct{}, len(codes))}
	for _, c := range codes {
		f.codes[c] = struct{}{}
	}
	return f
}

// Empty reports whether the filter keeps every group.
func (f GroupFilter) Empty() bool {
	return len(f.codes) == 0
}

// Codes returns the filtered group codes, in no particular order.
func (f GroupFilter) Codes() []outage.GroupCode {
	out := make([]outage.GroupCode, 0, len(f.codes))
	for c := range f.codes {
		out = append(out, c)
	}
	return out
}

// Apply returns the observations whose group passes the filter.
// Observations with unparseable groups are kept so they are rejected and
// reported downstream rather than silently dropped.
func (f GroupFilter) Apply(obs []outage.Observation) []outage.Observation {
	if f.Empty() {
		return obs
	}
	out := make([]outage.Observation, 0, len(obs))
	for _, o := range obs {
		code, err := outage.ParseGroupCode(o.Group)
		if err != nil {
			out = append(out, o)
			continue
		}
		if _, ok := f.codes[code]; ok {
			out = append(out, o)
		}
	}
	return out
}

// groupsFile is the on-disk format of the groups file: {"group": ["1.1", "2.1"]}.
type groupsFile struct {
	Group []string `json:"group"`
}

// LoadGroups resolves the configured groups. A comma-separated list from the
// command line wins over the groups file; a missing file means no filter.
func LoadGroups(list string, path string) ([]outage.GroupCode, error) {
	if strings.TrimSpace(list) != "" {
		codes, err := outage.ParseGroupCodes(strings.Split(list, ","))
		if err != nil {
			return nil, fmt.Errorf("groups: %w", err)
		}
		return codes, nil
	}
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("groups file: %w", err)
	}

	var gf groupsFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("groups file %s: %w", path, err)
	}
	codes, err := outage.ParseGroupCodes(gf.Group)
	if err != nil {
		return nil, fmt.Errorf("groups file %s: %w", path, err)
	}
	return codes, nil
}
