package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memgraph/pkg/types"
)

func TestGraphNode_Validate(t *testing.T) {
	tests := []struct {
		name    string
		node    *types.GraphNode
		wantErr bool
	}{
		{"valid", &types.GraphNode{ID: "alice", Scope: types.ScopeLocal}, false},
		{"nil", nil, true},
		{"missing id", &types.GraphNode{Scope: types.ScopeLocal}, true},
		{"wildcard id", &types.GraphNode{ID: types.WildcardID, Scope: types.ScopeLocal}, true},
		{"missing scope", &types.GraphNode{ID: "alice"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGraphNode_SecretRefs(t *testing.T) {
	n := &types.GraphNode{ID: "a", Scope: types.ScopeLocal, Attributes: types.Attributes{
		types.SecretRefsKey: types.List(types.String("ref_1"), types.Number(2), types.String(""), types.String("ref_2")),
	}}
	assert.Equal(t, []string{"ref_1", "ref_2"}, n.SecretRefs())

	n.Attributes[types.SecretRefsKey] = types.String("ref_1")
	assert.Nil(t, n.SecretRefs())

	assert.Nil(t, (&types.GraphNode{}).SecretRefs())
}

func TestGraphNode_CloneAndKey(t *testing.T) {
	n := &types.GraphNode{ID: "a", Scope: types.ScopeIdentity, Attributes: types.Attributes{"k": types.String("v")}}
	c := n.Clone()
	c.Attributes["k"] = types.String("w")

	assert.Equal(t, "v", n.Attributes.GetString("k"))
	assert.Equal(t, n.Key(), c.Key())
	assert.NotEqual(t, types.NodeKey("a", types.ScopeLocal), n.Key())
	assert.Nil(t, (*types.GraphNode)(nil).Clone())
}

func TestEdgeID(t *testing.T) {
	a := types.EdgeID("alice", "bob", "knows")
	assert.Equal(t, a, types.EdgeID("alice", "bob", "knows"))
	assert.NotEqual(t, a, types.EdgeID("bob", "alice", "knows"))
	assert.NotEqual(t, types.EdgeID("a\x00b", "c", "r"), types.EdgeID("a", "b\x00c", "r"))
	assert.Regexp(t, `^edge_[0-9a-f]{32}$`, a)
}

func TestGraphEdge_Validate(t *testing.T) {
	e := &types.GraphEdge{Source: "a", Target: "b", Relationship: "knows", Scope: types.ScopeLocal}
	require.NoError(t, e.Validate())
	assert.Equal(t, types.EdgeID("a", "b", "knows"), e.ID)
	assert.Equal(t, "b", e.Other("a"))
	assert.Equal(t, "a", e.Other("b"))

	for _, bad := range []*types.GraphEdge{
		nil,
		{Target: "b", Relationship: "r", Scope: types.ScopeLocal},
		{Source: "a", Target: "b", Scope: types.ScopeLocal},
		{Source: "a", Target: "b", Relationship: "r"},
	} {
		assert.Error(t, bad.Validate())
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, in := range []string{
		"2025-03-01T12:00:00Z",
		"2025-03-01T13:00:00+01:00",
		"2025-03-01T12:00:00",
		"2025-03-01 12:00:00",
		" 2025-03-01T12:00 ",
	} {
		got, err := types.ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
		assert.Equal(t, time.UTC, got.Location(), in)
	}

	for _, in := range []string{"", "yesterday", "2025-13-01"} {
		_, err := types.ParseTimestamp(in)
		assert.Error(t, err, in)
	}

	assert.Equal(t, "2025-03-01T12:00:00Z", types.FormatTimestamp(want.In(time.FixedZone("X", 7200))))
}

func TestScopesAndTypes(t *testing.T) {
	assert.True(t, types.IsValidScope(types.ScopeIdentity))
	assert.False(t, types.IsValidScope("global"))
	assert.True(t, types.IsValidNodeType(types.NodeTypeTSDBData))
	assert.False(t, types.IsValidNodeType("widget"))
}
