package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/outagecal/internal/outage"
	"github.com/roach88/outagecal/internal/source"
)

// Scrape is one cycle's worth of observations.
type Scrape struct {
	Observations []outage.Observation
	Source       string
	Validation   source.Validation
}

// Scraper produces the observations of one cycle. Returning an error wrapping
// ErrScrapeFailed prevents the cycle from being reconciled.
type Scraper interface {
	Scrape(ctx context.Context) (Scrape, error)
}

// SnapshotScraper reads the newest saved schedule snapshot.
type SnapshotScraper struct {
	// Dir holds snapshots; the newest one is used unless Path is set.
	Dir string

	// Path pins a specific snapshot file.
	Path string

	Location *time.Location
	Filter   source.GroupFilter

	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// Scrape loads and validates the snapshot and maps it to observations.
// Stale and undated schedules are scrape failures; a schedule that lists no
// groups yields an empty observation set.
func (s *SnapshotScraper) Scrape(ctx context.Context) (Scrape, error) {
	if err := ctx.Err(); err != nil {
		return Scrape{}, err
	}

	path := s.Path
	if path == "" {
		var err error
		path, err = source.LatestSnapshot(s.Dir)
		if err != nil {
			return Scrape{}, fmt.Errorf("%w: %v", ErrScrapeFailed, err)
		}
	}

	snap, err := source.LoadSnapshot(path)
	if err != nil {
		return Scrape{}, fmt.Errorf("%w: %v", ErrScrapeFailed, err)
	}

	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	v := source.Validate(snap, now().In(loc))
	out := Scrape{Source: path, Validation: v}
	if v.Failed() {
		return out, fmt.Errorf("%w: %s", ErrScrapeFailed, v.Message)
	}
	if !v.Usable() {
		out.Observations = []outage.Observation{}
		return out, nil
	}

	out.Observations = s.Filter.Apply(source.Observations(snap, loc))
	return out, nil
}
