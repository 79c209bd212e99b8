package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/pkg/types"
)

// PutEdge inserts or replaces the edge keyed by its deterministic id.
// A second write of the same (source, target, relationship) replaces the
// first one, including its weight and attributes.
func (s *GraphStore) PutEdge(ctx context.Context, edge *types.GraphEdge) (string, error) {
	if err := edge.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	attrsJSON, err := edge.Attributes.Canonical()
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO graph_edges (
			edge_id, source_node_id, target_node_id, scope, relationship, weight, attributes_json
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		edge.ID, edge.Source, edge.Target, string(edge.Scope), edge.Relationship, edge.Weight, attrsJSON,
	)
	if err != nil {
		return "", fmt.Errorf("%w: failed to store edge %s: %v", storage.ErrPersistence, edge.ID, err)
	}

	return edge.ID, nil
}

// DeleteEdge removes a single edge by id.
func (s *GraphStore) DeleteEdge(ctx context.Context, edgeID string) (int, error) {
	if edgeID == "" {
		return 0, fmt.Errorf("%w: edge ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM graph_edges WHERE edge_id = ?", edgeID)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete edge %s: %v", storage.ErrPersistence, edgeID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to check rows affected: %v", storage.ErrPersistence, err)
	}
	return int(n), nil
}

// EdgesForNode returns every edge in scope where the node is source or target.
// There is no join against graph_nodes, so edges of deleted nodes are still returned.
func (s *GraphStore) EdgesForNode(ctx context.Context, id string, scope types.GraphScope) ([]*types.GraphEdge, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: node ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT edge_id, source_node_id, target_node_id, scope, relationship, weight, attributes_json
		FROM graph_edges
		WHERE scope = ? AND (source_node_id = ? OR target_node_id = ?)
		ORDER BY edge_id
	`

	rows, err := s.reader.QueryContext(ctx, query, string(scope), id, id)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get edges for %s: %v", storage.ErrPersistence, id, err)
	}
	defer func() { _ = rows.Close() }()

	var edges []*types.GraphEdge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			log.Warn().Err(err).Str("node_id", id).Msg("sqlite: skipping malformed edge row")
			continue
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating edges: %v", storage.ErrPersistence, err)
	}

	return edges, nil
}

// DeleteEdgesForNode removes every edge in scope touching the node.
func (s *GraphStore) DeleteEdgesForNode(ctx context.Context, id string, scope types.GraphScope) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: node ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM graph_edges WHERE scope = ? AND (source_node_id = ? OR target_node_id = ?)",
		string(scope), id, id,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete edges for %s: %v", storage.ErrPersistence, id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to check rows affected: %v", storage.ErrPersistence, err)
	}
	return int(n), nil
}

func scanEdge(row rowScanner) (*types.GraphEdge, error) {
	var edge types.GraphEdge
	var scope string
	var attrsJSON sql.NullString

	if err := row.Scan(&edge.ID, &edge.Source, &edge.Target, &scope, &edge.Relationship, &edge.Weight, &attrsJSON); err != nil {
		return nil, err
	}

	edge.Scope = types.GraphScope(scope)
	attrs, err := types.ParseAttributes(attrsJSON.String)
	if err != nil {
		return nil, fmt.Errorf("edge %s: %w", edge.ID, err)
	}
	edge.Attributes = attrs

	return &edge, nil
}
