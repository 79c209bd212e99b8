package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/pkg/types"
)

func TestPutEdge_SameTripleReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := types.NewGraphEdge("user_alice", "chan_general", types.RelParticipatesIn, types.ScopeLocal, 0.5)
	id1, err := store.PutEdge(ctx, first)
	require.NoError(t, err)

	second := types.NewGraphEdge("user_alice", "chan_general", types.RelParticipatesIn, types.ScopeLocal, 0.9)
	second.Attributes["note"] = types.String("updated")
	id2, err := store.PutEdge(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	edges, err := store.EdgesForNode(ctx, "user_alice", types.ScopeLocal)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 0.9, edges[0].Weight)
	assert.Equal(t, "updated", edges[0].Attributes.GetString("note"))
}

func TestPutEdge_DistinctRelationshipsCoexist(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.PutEdge(ctx, types.NewGraphEdge("a", "b", types.RelRelatesTo, types.ScopeLocal, 1))
	require.NoError(t, err)
	_, err = store.PutEdge(ctx, types.NewGraphEdge("a", "b", types.RelDerivedFrom, types.ScopeLocal, 1))
	require.NoError(t, err)

	edges, err := store.EdgesForNode(ctx, "a", types.ScopeLocal)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestPutEdge_Invalid(t *testing.T) {
	store := newTestStore(t)

	_, err := store.PutEdge(context.Background(), &types.GraphEdge{Source: "a", Scope: types.ScopeLocal, Relationship: "x"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestEdgesForNode_MatchesEitherEndpointWithinScope(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _ = store.PutEdge(ctx, types.NewGraphEdge("a", "b", types.RelRelatesTo, types.ScopeLocal, 1))
	_, _ = store.PutEdge(ctx, types.NewGraphEdge("c", "a", types.RelRelatesTo, types.ScopeLocal, 1))
	_, _ = store.PutEdge(ctx, types.NewGraphEdge("a", "d", types.RelRelatesTo, types.ScopeCommunity, 1))

	edges, err := store.EdgesForNode(ctx, "a", types.ScopeLocal)
	require.NoError(t, err)
	require.Len(t, edges, 2)

	others := map[string]bool{}
	for _, e := range edges {
		others[e.Other("a")] = true
	}
	assert.Equal(t, map[string]bool{"b": true, "c": true}, others)
}

func TestEdgesForNode_SurviveNodeDeletion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.PutNode(ctx, node("a", types.ScopeLocal, types.NodeTypeConcept, nil), baseTime)
	require.NoError(t, err)
	_, err = store.PutEdge(ctx, types.NewGraphEdge("a", "b", types.RelRelatesTo, types.ScopeLocal, 1))
	require.NoError(t, err)

	n, err := store.DeleteNode(ctx, "a", types.ScopeLocal)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	edges, err := store.EdgesForNode(ctx, "a", types.ScopeLocal)
	require.NoError(t, err)
	assert.Len(t, edges, 1, "edges are not cascaded on node delete")
}

func TestDeleteEdgesForNode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _ = store.PutEdge(ctx, types.NewGraphEdge("a", "b", types.RelRelatesTo, types.ScopeLocal, 1))
	_, _ = store.PutEdge(ctx, types.NewGraphEdge("c", "a", types.RelRelatesTo, types.ScopeLocal, 1))
	_, _ = store.PutEdge(ctx, types.NewGraphEdge("b", "c", types.RelRelatesTo, types.ScopeLocal, 1))

	n, err := store.DeleteEdgesForNode(ctx, "a", types.ScopeLocal)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := store.EdgesForNode(ctx, "b", types.ScopeLocal)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "c", remaining[0].Target)
}

func TestDeleteEdge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.PutEdge(ctx, types.NewGraphEdge("a", "b", types.RelRelatesTo, types.ScopeLocal, 1))
	require.NoError(t, err)

	n, err := store.DeleteEdge(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.DeleteEdge(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
