package snapshot_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memgraph/internal/clock"
	"github.com/scrypster/memgraph/internal/snapshot"
	"github.com/scrypster/memgraph/internal/storage/sqlite"
	"github.com/scrypster/memgraph/pkg/types"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.GraphStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memgraph.db")
	store, err := sqlite.NewGraphStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.PutNode(context.Background(), &types.GraphNode{
		ID: "self", Scope: types.ScopeIdentity, Type: types.NodeTypeIdentity,
		Attributes: types.Attributes{"name": types.String("Ada")},
	}, start)
	require.NoError(t, err)
	return store
}

type failingSource struct{}

func (failingSource) Snapshot(context.Context, string) error { return errors.New("disk full") }

func TestNewManager_Validation(t *testing.T) {
	_, err := snapshot.NewManager(nil, snapshot.Config{Dir: t.TempDir()})
	assert.Error(t, err)

	_, err = snapshot.NewManager(failingSource{}, snapshot.Config{})
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "a", "b")
	_, err = snapshot.NewManager(failingSource{}, snapshot.Config{Dir: dir})
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestManager_TakeListAndRestore(t *testing.T) {
	store := newStore(t)
	clk := clock.NewFixed(start)
	dir := t.TempDir()

	m, err := snapshot.NewManager(store, snapshot.Config{
		Dir:       dir,
		Verify:    true,
		Retention: snapshot.RetentionPolicy{Hourly: 2},
		Clock:     clk,
	})
	require.NoError(t, err)

	var taken []string
	for i := 0; i < 3; i++ {
		res, err := m.Take(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Verified)
		assert.Positive(t, res.Size)
		taken = append(taken, res.Path)
		clk.Advance(10 * time.Minute)
	}

	snapshots, err := m.List()
	require.NoError(t, err)
	require.Len(t, snapshots, 2, "hourly tier keeps two")
	assert.Equal(t, taken[2], snapshots[0].Path)
	assert.NoFileExists(t, taken[0])

	usage, err := m.DiskUsage()
	require.NoError(t, err)
	assert.Equal(t, snapshots[0].Size+snapshots[1].Size, usage)

	target := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, snapshot.Restore(taken[2], target))

	restored, err := sqlite.NewGraphStore(target)
	require.NoError(t, err)
	defer restored.Close()
	node, err := restored.GetNode(context.Background(), "self", types.ScopeIdentity)
	require.NoError(t, err)
	assert.Equal(t, "Ada", node.Attributes.GetString("name"))
}

func TestManager_TakeFailure(t *testing.T) {
	m, err := snapshot.NewManager(failingSource{}, snapshot.Config{Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = m.Take(context.Background())
	assert.EqualError(t, err, "disk full")
}

func TestManager_Prune(t *testing.T) {
	store := newStore(t)
	clk := clock.NewFixed(start)
	m, err := snapshot.NewManager(store, snapshot.Config{Dir: t.TempDir(), Clock: clk})
	require.NoError(t, err)

	_, err = m.Take(context.Background())
	require.NoError(t, err)

	clk.Advance(2 * 365 * 24 * time.Hour)
	removed, err := m.Prune()
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	snapshots, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestRestore_RejectsCorruptSnapshot(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.db")
	require.NoError(t, os.WriteFile(bad, []byte("not a database"), 0o644))

	err := snapshot.Restore(bad, filepath.Join(t.TempDir(), "target.db"))
	assert.Error(t, err)
}
