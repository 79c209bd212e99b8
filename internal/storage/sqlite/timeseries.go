package sqlite

import (
	"context"
	"fmt"

	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/pkg/types"
)

// ScanTimeSeries returns tsdb_data nodes in scope created inside r.
//
// created_at holds whatever encoding the writer used (Z suffix, explicit
// offset, or naive UTC). julianday() normalises all three, so the range
// predicate compares instants rather than strings. Rows whose created_at
// cannot be interpreted evaluate to NULL and drop out of the result.
func (s *GraphStore) ScanTimeSeries(ctx context.Context, scope types.GraphScope, r storage.TimeRange) ([]*types.GraphNode, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: invalid time range %v..%v", storage.ErrInvalidInput, r.Start, r.End)
	}

	query := `
		SELECT node_id, scope, node_type, attributes_json, version, updated_by, updated_at
		FROM graph_nodes
		WHERE node_type = ?
		  AND scope = ?
		  AND julianday(created_at) >= julianday(?)
		  AND julianday(created_at) <= julianday(?)
		ORDER BY julianday(created_at) ASC
	`

	rows, err := s.reader.QueryContext(ctx, query,
		string(types.NodeTypeTSDBData), string(scope), formatTime(r.Start), formatTime(r.End),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan time series: %v", storage.ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	return scanNodes(rows)
}
