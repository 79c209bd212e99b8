// Package storage provides composable storage interfaces for the graph memory store.
//
// Backends implement GraphStore. Reads report absence with ErrNotFound and
// failures with errors wrapping ErrPersistence, so callers can tell
// "nothing there" from "something broke".
package storage

import (
	"context"
	"time"

	"github.com/scrypster/memgraph/pkg/types"
)

// NodeStore provides merge-on-write persistence for graph nodes.
type NodeStore interface {
	// PutNode creates the node or merges it into the stored one.
	// On merge the stored attributes are deep-merged with the new ones (new
	// wins per key), Version is incremented and UpdatedBy/UpdatedAt are set.
	// The stored Type is never overwritten. Returns the node id.
	PutNode(ctx context.Context, node *types.GraphNode, now time.Time) (string, error)

	// GetNode returns the node keyed by (id, scope) or ErrNotFound.
	GetNode(ctx context.Context, id string, scope types.GraphScope) (*types.GraphNode, error)

	// DeleteNode hard-deletes the node and returns the number of rows removed.
	// Edges are left untouched.
	DeleteNode(ctx context.Context, id string, scope types.GraphScope) (int, error)

	// ListNodes returns a filtered page ordered by updated_at descending.
	ListNodes(ctx context.Context, opts ListOptions) ([]*types.GraphNode, error)
}

// EdgeStore provides upsert persistence for graph edges.
type EdgeStore interface {
	// PutEdge inserts or replaces the edge keyed by its deterministic id.
	PutEdge(ctx context.Context, edge *types.GraphEdge) (string, error)

	// DeleteEdge removes one edge and returns the number of rows removed.
	DeleteEdge(ctx context.Context, edgeID string) (int, error)

	// EdgesForNode returns every edge in scope where the node is either endpoint.
	EdgesForNode(ctx context.Context, id string, scope types.GraphScope) ([]*types.GraphEdge, error)

	// DeleteEdgesForNode removes every edge touching the node in scope.
	DeleteEdgesForNode(ctx context.Context, id string, scope types.GraphScope) (int, error)
}

// TimeSeriesStore scans tsdb_data nodes by creation time.
type TimeSeriesStore interface {
	// ScanTimeSeries returns tsdb_data nodes in scope whose creation time
	// falls inside [r.Start, r.End].
	ScanTimeSeries(ctx context.Context, scope types.GraphScope, r TimeRange) ([]*types.GraphNode, error)
}

// CorrelationStore keeps the legacy correlation log.
type CorrelationStore interface {
	// AddCorrelation appends one correlation record.
	AddCorrelation(ctx context.Context, c *types.ServiceCorrelation) error

	// ListCorrelations returns the newest records of the given type (all types when empty).
	ListCorrelations(ctx context.Context, correlationType string, limit int) ([]*types.ServiceCorrelation, error)
}

// GraphStore is the full persistence surface used by the memory service.
type GraphStore interface {
	NodeStore
	EdgeStore
	TimeSeriesStore
	CorrelationStore

	// Close releases any resources held by the store.
	Close() error
}
