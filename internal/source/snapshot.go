package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SnapshotSuffix ends every snapshot file name.
const SnapshotSuffix = "_power_outages.json"

const snapshotStampLayout = "20060102_150405"

// ErrNoSnapshots is returned by LatestSnapshot when dir holds no snapshot.
var ErrNoSnapshots = errors.New("no schedule snapshots found")

// Period is a group's outage window as printed in the schedule ("HH:MM").
type Period struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Group is one line of the schedule.
type Group struct {
	// Name is the group label, e.g. "Група 1.1".
	Name string `json:"name"`

	// Status is the schedule's status text for the group.
	Status string `json:"status"`

	// Period is absent when the status applies to the whole day.
	Period *Period `json:"period,omitempty"`
}

// Snapshot is one saved scrape of the schedule page.
type Snapshot struct {
	Date            string  `json:"date"`
	DateFound       bool    `json:"date_found"`
	LastUpdate      string  `json:"last_update,omitempty"`
	LastUpdateFound bool    `json:"last_update_found,omitempty"`
	Groups          []Group `json:"groups"`

	// Path is the file the snapshot was loaded from, if any.
	Path string `json:"-"`
}

// LoadSnapshot reads and decodes a snapshot file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", filepath.Base(path), err)
	}
	s.Path = path
	return &s, nil
}

// SnapshotName returns the file name a snapshot scraped at t is saved under.
func SnapshotName(t time.Time) string {
	return t.Format(snapshotStampLayout) + SnapshotSuffix
}

// SaveSnapshot writes s into dir under SnapshotName(at) and returns the path.
func SaveSnapshot(dir string, s *Snapshot, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}

	path := filepath.Join(dir, SnapshotName(at))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	return path, nil
}

// LatestSnapshot returns the path of the newest snapshot in dir.
// Snapshot names start with their scrape timestamp, so the newest sorts last.
func LatestSnapshot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoSnapshots
		}
		return "", fmt.Errorf("latest snapshot: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SnapshotSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(e.Name(), SnapshotSuffix)
		if _, err := time.Parse(snapshotStampLayout, stamp); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return "", ErrNoSnapshots
	}

	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
