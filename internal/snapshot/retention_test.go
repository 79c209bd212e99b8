package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// touch creates a snapshot-named file aged by age.
func touch(t *testing.T, dir string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, fileName(now.Add(-age)))
	require.NoError(t, os.WriteFile(path, []byte("sqlite"), 0o644))
	return path
}

func TestFileNameRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 9, 30, 15, 123456000, time.UTC)
	parsed, ok := timeFromName(fileName(ts))
	require.True(t, ok)
	assert.True(t, ts.Equal(parsed))

	_, ok = timeFromName("backup.db")
	assert.False(t, ok)
	_, ok = timeFromName("memgraph-yesterday.db")
	assert.False(t, ok)
}

func TestListSnapshots(t *testing.T) {
	dir := t.TempDir()
	older := touch(t, dir, 2*time.Hour)
	newer := touch(t, dir, time.Hour)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.db"), 0o755))
	other := filepath.Join(dir, "manual.db")
	require.NoError(t, os.WriteFile(other, []byte("sqlite!"), 0o644))

	snapshots, err := listSnapshots(dir)
	require.NoError(t, err)
	require.Len(t, snapshots, 3)

	// manual.db falls back to its modification time, which is the newest.
	assert.Equal(t, other, snapshots[0].Path)
	assert.Equal(t, newer, snapshots[1].Path)
	assert.Equal(t, older, snapshots[2].Path)
	assert.Equal(t, int64(6), snapshots[1].Size)

	_, err = listSnapshots(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestSelectExpired(t *testing.T) {
	mk := func(age time.Duration, name string) Info {
		return Info{Path: name, Timestamp: now.Add(-age)}
	}
	day := 24 * time.Hour

	snapshots := []Info{
		mk(time.Hour, "h1"),
		mk(2*time.Hour, "h2"),
		mk(3*time.Hour, "h3"),
		mk(2*day, "d1"),
		mk(3*day, "d2"),
		mk(10*day, "w1"),
		mk(60*day, "m1"),
		mk(400*day, "ancient"),
	}

	expired := selectExpired(snapshots, RetentionPolicy{Hourly: 2, Daily: 1, Weekly: 4, Monthly: 12}, now)
	assert.ElementsMatch(t, []string{"h3", "d2", "ancient"}, expired)

	assert.Equal(t, []string{"ancient"}, selectExpired(snapshots, DefaultRetention, now))
}

func TestApplyRetention(t *testing.T) {
	dir := t.TempDir()
	keep := touch(t, dir, time.Hour)
	drop := touch(t, dir, 2*time.Hour)
	ancient := touch(t, dir, 400*24*time.Hour)

	removed, err := applyRetention(dir, RetentionPolicy{Hourly: 1, Daily: 1, Weekly: 1, Monthly: 1}, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{drop, ancient}, removed)

	assert.FileExists(t, keep)
	assert.NoFileExists(t, drop)
	assert.NoFileExists(t, ancient)
}
