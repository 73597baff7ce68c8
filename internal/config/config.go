// Package config loads the outagecal configuration file.
//
// The file is YAML. A missing file is created with defaults on first run.
// Files are checked against an embedded CUE schema before decoding, so typos
// and out-of-range values are reported with their line and column.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/outagecal/internal/cycle"
	"github.com/roach88/outagecal/internal/outage"
	"github.com/roach88/outagecal/internal/source"
	"github.com/roach88/outagecal/internal/store"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "outagecal.yaml"

// Config is the application configuration.
type Config struct {
	// DBPath is the SQLite ledger file.
	DBPath string `yaml:"db_path" json:"db_path"`

	// SnapshotDir holds scraped schedule snapshots.
	SnapshotDir string `yaml:"snapshot_dir" json:"snapshot_dir"`

	// Timezone is the IANA zone schedules are published in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Groups restricts cycles to these group codes. Empty means all groups,
	// unless GroupsFile lists some.
	Groups []string `yaml:"groups" json:"groups"`

	// GroupsFile is a JSON file of the form {"group": ["1.1", ...]}.
	GroupsFile string `yaml:"groups_file" json:"groups_file"`

	// RetentionDays is how long removed events are kept before purging.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`

	// Schedule and SweepSchedule are cron specs for the watch loop.
	// An empty SweepSchedule disables scheduled sweeps.
	Schedule      string `yaml:"schedule" json:"schedule"`
	SweepSchedule string `yaml:"sweep_schedule" json:"sweep_schedule"`

	// EmptyCycle is one of skip, reconcile or fail.
	EmptyCycle string `yaml:"empty_cycle" json:"empty_cycle"`

	// MinObservations refuses smaller non-empty cycles. Zero disables it.
	MinObservations int `yaml:"min_observations" json:"min_observations"`

	// MergePolicy is overwrite or prefer-timed.
	MergePolicy string `yaml:"merge_policy" json:"merge_policy"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// MetricsAddr serves /metrics during watch when set.
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DBPath:          "power_outages.db",
		SnapshotDir:     "json_data",
		Timezone:        source.DefaultTimezone,
		Groups:          []string{},
		GroupsFile:      "groups.json",
		RetentionDays:   30,
		Schedule:        "*/5 * * * *",
		SweepSchedule:   "@daily",
		EmptyCycle:      string(cycle.EmptySkip),
		MinObservations: 0,
		MergePolicy:     string(store.MergeOverwrite),
		LogLevel:        "info",
		MetricsAddr:     "",
	}
}

// Normalize fills zero values with defaults so partial files behave like
// complete ones.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = d.SnapshotDir
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.Groups == nil {
		c.Groups = []string{}
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.Schedule == "" {
		c.Schedule = d.Schedule
	}
	if c.EmptyCycle == "" {
		c.EmptyCycle = d.EmptyCycle
	}
	if c.MinObservations < 0 {
		c.MinObservations = 0
	}
	if c.MergePolicy == "" {
		c.MergePolicy = d.MergePolicy
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate checks the values the schema cannot: the time zone, the cron
// schedules and the group codes.
func (c *Config) Validate() error {
	if _, err := source.LoadLocation(c.Timezone); err != nil {
		return &Error{Field: "timezone", Message: err.Error()}
	}
	if err := cycle.ValidateSchedule(c.Schedule); err != nil {
		return &Error{Field: "schedule", Message: err.Error()}
	}
	if c.SweepSchedule != "" {
		if err := cycle.ValidateSchedule(c.SweepSchedule); err != nil {
			return &Error{Field: "sweep_schedule", Message: err.Error()}
		}
	}
	if _, err := cycle.ParseEmptyCyclePolicy(c.EmptyCycle); err != nil {
		return &Error{Field: "empty_cycle", Message: err.Error()}
	}
	if _, err := store.ParseMergePolicy(c.MergePolicy); err != nil {
		return &Error{Field: "merge_policy", Message: err.Error()}
	}
	if _, err := outage.ParseGroupCodes(c.Groups); err != nil {
		return &Error{Field: "groups", Message: err.Error()}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return &Error{Field: "log_level", Message: err.Error()}
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	return source.LoadLocation(c.Timezone)
}

// Retention is RetentionDays as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Policy builds the cycle boundary policy.
func (c *Config) Policy() (cycle.Policy, error) {
	empty, err := cycle.ParseEmptyCyclePolicy(c.EmptyCycle)
	if err != nil {
		return cycle.Policy{}, err
	}
	return cycle.Policy{EmptyCycle: empty, MinObservations: c.MinObservations}, nil
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Load reads the configuration at path.
//
// A missing file is created with the defaults (0600, parent 0700) and the
// defaults are returned. An existing file is checked against the schema,
// decoded, normalised and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, fmt.Errorf("write default config: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(path, data)
}

// Parse checks, decodes and validates configuration bytes. filename is used
// in error positions only.
func Parse(filename string, data []byte) (*Config, error) {
	if err := checkSchema(filename, data); err != nil {
		return nil, err
	}

	// Fields absent from the file keep their defaults; fields present but
	// empty are left to Normalize.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", filename, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".outagecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
