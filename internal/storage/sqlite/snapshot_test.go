package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memgraph/pkg/types"
)

func TestSnapshot_VerifyAndRestore(t *testing.T) {
	store, _ := newFileStore(t)
	ctx := context.Background()

	_, err := store.PutNode(ctx, node("user_alice", types.ScopeLocal, types.NodeTypeUser, map[string]any{"name": "Alice"}), baseTime)
	require.NoError(t, err)
	_, err = store.PutEdge(ctx, types.NewGraphEdge("user_alice", "chan_general", types.RelParticipatesIn, types.ScopeLocal, 1))
	require.NoError(t, err)

	dir := t.TempDir()
	snap := filepath.Join(dir, "snapshots", "graph.snapshot.db")
	require.NoError(t, store.Snapshot(ctx, snap))
	require.NoError(t, VerifySnapshot(snap))

	err = store.Snapshot(ctx, snap)
	assert.Error(t, err, "existing destination must not be overwritten")

	target := filepath.Join(dir, "restored.db")
	require.NoError(t, RestoreSnapshot(snap, target))

	restored, err := NewGraphStore(target)
	require.NoError(t, err)
	defer func() { _ = restored.Close() }()

	got, err := restored.GetNode(ctx, "user_alice", types.ScopeLocal)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Attributes.GetString("name"))

	edges, err := restored.EdgesForNode(ctx, "user_alice", types.ScopeLocal)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestVerifySnapshot_RejectsNonDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite"), 0o600))

	assert.Error(t, VerifySnapshot(path))
}

func TestRestoreSnapshot_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := RestoreSnapshot(filepath.Join(dir, "missing.db"), filepath.Join(dir, "target.db"))
	assert.Error(t, err)
}
