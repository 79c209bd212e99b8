// Package postgres provides a PostgreSQL implementation of storage interfaces.
// This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the graph tables. It is exported so
// the postgres_test package can call it.
func (s *GraphStore) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE graph_nodes, graph_edges, service_correlations")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate graph tables: %w", err)
	}
	return nil
}
