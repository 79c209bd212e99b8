package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memgraph/internal/secrets"
	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/pkg/types"
)

func TestParseSearch(t *testing.T) {
	q := parseSearch("Deploy type:concept SCOPE:identity  Rollback", types.SearchFilter{Scope: types.ScopeLocal})
	assert.Equal(t, types.NodeType("concept"), q.typ)
	assert.Equal(t, types.ScopeIdentity, q.scope)
	assert.Equal(t, []string{"deploy", "rollback"}, q.terms)

	q = parseSearch("type:", types.SearchFilter{Type: types.NodeTypeUser})
	assert.Equal(t, types.NodeTypeUser, q.typ)
	assert.Equal(t, []string{"type:"}, q.terms)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	memorize(t, f.svc, "concept_deploy", types.ScopeLocal, types.NodeTypeConcept, map[string]any{"summary": "Blue-green rollout"})
	memorize(t, f.svc, "concept_cache", types.ScopeLocal, types.NodeTypeConcept, map[string]any{"summary": "LRU eviction"})
	memorize(t, f.svc, "user_dana", types.ScopeLocal, types.NodeTypeUser, map[string]any{"bio": "runs the rollout"})
	memorize(t, f.svc, "self", types.ScopeIdentity, types.NodeTypeIdentity, map[string]any{"motto": "rollout carefully"})
	memorize(t, f.svc, "creds", types.ScopeLocal, types.NodeTypeConfig, map[string]any{"note": "key " + rawSecret})

	search := func(text string, filter types.SearchFilter) []string {
		t.Helper()
		nodes, err := f.svc.Search(ctx, text, filter)
		require.NoError(t, err)
		return nodeIDs(nodes)
	}

	assert.ElementsMatch(t, []string{"concept_deploy", "user_dana", "self"}, search("ROLLOUT", types.SearchFilter{}))
	assert.ElementsMatch(t, []string{"concept_deploy", "user_dana"}, search("rollout", types.SearchFilter{Scope: types.ScopeLocal}))
	assert.ElementsMatch(t, []string{"concept_deploy"}, search("rollout type:concept", types.SearchFilter{}))
	assert.ElementsMatch(t, []string{"self"}, search("rollout scope:identity", types.SearchFilter{}))
	assert.ElementsMatch(t, []string{"concept_deploy", "concept_cache"}, search("eviction deploy", types.SearchFilter{}))
	assert.ElementsMatch(t, []string{"user_dana"}, search("DANA", types.SearchFilter{}))
	assert.Empty(t, search("nothing-matches-this", types.SearchFilter{}))

	t.Run("secret values are not searchable", func(t *testing.T) {
		assert.Empty(t, search(rawSecret, types.SearchFilter{}))
		assert.Empty(t, search(rawSecret, types.SearchFilter{ActionType: secrets.ActionSpeak}))
	})

	t.Run("matches are revealed for allowed actions", func(t *testing.T) {
		nodes, err := f.svc.Search(ctx, "creds", types.SearchFilter{ActionType: secrets.ActionSpeak})
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, "key "+rawSecret, nodes[0].Attributes.GetString("note"))
	})

	t.Run("empty query lists everything up to the limit", func(t *testing.T) {
		assert.Len(t, search("", types.SearchFilter{Limit: 2}), 2)
		assert.Len(t, search("", types.SearchFilter{}), 5)
	})
}

func TestSearch_PagesPastMaxListLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	total := storage.MaxListLimit + 5
	for i := 0; i < total; i++ {
		attrs := map[string]any{}
		if i%500 == 0 {
			attrs["tag"] = "needle"
		}
		memorize(t, f.svc, fmt.Sprintf("n_%04d", i), types.ScopeLocal, types.NodeTypeObservation, attrs)
	}

	nodes, err := f.svc.Search(ctx, "needle", types.SearchFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"n_0000", "n_0500", "n_1000"}, nodeIDs(nodes))
}

func TestSearch_ReadFailure(t *testing.T) {
	store := newFaultyStore(t)
	store.failReads = true

	nodes, err := newServiceOver(t, store).Search(context.Background(), "x", types.SearchFilter{})
	assert.NoError(t, err)
	assert.Empty(t, nodes)

	_, err = newServiceOver(t, store, WithStrictReads(true)).Search(context.Background(), "x", types.SearchFilter{})
	assert.ErrorIs(t, err, storage.ErrPersistence)
}
