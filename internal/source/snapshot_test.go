package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outagecal/internal/outage"
)

func TestLoadSnapshot(t *testing.T) {
	snap, err := LoadSnapshot("testdata/schedule.json")
	require.NoError(t, err)

	assert.Equal(t, "19.10.2026", snap.Date)
	assert.True(t, snap.DateFound)
	assert.Equal(t, "19.10.2026 07:30", snap.LastUpdate)
	assert.Len(t, snap.Groups, 6)
	assert.Nil(t, snap.Groups[2].Period)
	assert.Equal(t, "testdata/schedule.json", snap.Path)
}

func TestLoadSnapshot_Errors(t *testing.T) {
	_, err := LoadSnapshot("testdata/missing.json")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadSnapshot("testdata/snapshots/notes.txt")
	assert.Error(t, err)
}

func TestLatestSnapshot(t *testing.T) {
	path, err := LatestSnapshot("testdata/snapshots")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata/snapshots", "20261019_071000_power_outages.json"), path)
}

func TestLatestSnapshot_None(t *testing.T) {
	_, err := LatestSnapshot(t.TempDir())
	assert.ErrorIs(t, err, ErrNoSnapshots)

	_, err = LatestSnapshot(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNoSnapshots)
}

func TestSaveSnapshot_RoundTripsThroughLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "json_data")
	at := time.Date(2026, time.October, 19, 7, 10, 5, 0, time.UTC)

	snap := &Snapshot{
		Date:      "19.10.2026",
		DateFound: true,
		Groups:    []Group{{Name: "Група 1.1", Status: StatusTextOutage, Period: &Period{From: "08:00", To: "12:00"}}},
	}
	path, err := SaveSnapshot(dir, snap, at)
	require.NoError(t, err)
	assert.Equal(t, "20261019_071005_power_outages.json", filepath.Base(path))

	older, err := SaveSnapshot(dir, &Snapshot{}, at.Add(-time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, path, older)

	latest, err := LatestSnapshot(dir)
	require.NoError(t, err)
	assert.Equal(t, path, latest)

	loaded, err := LoadSnapshot(latest)
	require.NoError(t, err)
	assert.Equal(t, snap.Groups, loaded.Groups)
}

func TestGroupFilter(t *testing.T) {
	obs := []outage.Observation{
		{Group: "1.1"}, {Group: " 2.2"}, {Group: "3.3"}, {Group: "Черга"},
	}

	assert.Equal(t, obs, GroupFilter{}.Apply(obs))
	assert.True(t, NewGroupFilter(nil).Empty())

	f := NewGroupFilter([]outage.GroupCode{"1.1", "2.2"})
	assert.False(t, f.Empty())
	assert.ElementsMatch(t, []outage.GroupCode{"1.1", "2.2"}, f.Codes())

	kept := f.Apply(obs)
	assert.Equal(t, []outage.Observation{{Group: "1.1"}, {Group: " 2.2"}, {Group: "Черга"}}, kept)
}

func TestLoadGroups(t *testing.T) {
	codes, err := LoadGroups("3.1, 4.2", "testdata/groups.json")
	require.NoError(t, err)
	assert.Equal(t, []outage.GroupCode{"3.1", "4.2"}, codes)

	codes, err = LoadGroups("", "testdata/groups.json")
	require.NoError(t, err)
	assert.Equal(t, []outage.GroupCode{"1.1", "2.2"}, codes)

	codes, err = LoadGroups("", "testdata/no-such-groups.json")
	require.NoError(t, err)
	assert.Nil(t, codes)

	_, err = LoadGroups("", "testdata/groups_invalid.json")
	assert.Error(t, err)

	_, err = LoadGroups("1.1,7.7", "")
	assert.Error(t, err)
}
