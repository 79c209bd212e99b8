// Package postgres provides PostgreSQL implementations of storage interfaces.
package postgres

// Schema contains the SQL statements to create the graph schema for PostgreSQL.
// All statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS graph_nodes (
    node_id         TEXT NOT NULL,
    scope           TEXT NOT NULL,
    node_type       TEXT NOT NULL,
    attributes_json JSONB NOT NULL DEFAULT '{}'::jsonb,
    version         INTEGER NOT NULL DEFAULT 1,
    updated_by      TEXT,
    updated_at      TIMESTAMPTZ NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (node_id, scope)
);
CREATE INDEX IF NOT EXISTS idx_graph_nodes_scope_type ON graph_nodes(scope, node_type);
CREATE INDEX IF NOT EXISTS idx_graph_nodes_updated_at ON graph_nodes(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_graph_nodes_created_at ON graph_nodes(created_at);

CREATE TABLE IF NOT EXISTS graph_edges (
    edge_id         TEXT PRIMARY KEY,
    source_node_id  TEXT NOT NULL,
    target_node_id  TEXT NOT NULL,
    scope           TEXT NOT NULL,
    relationship    TEXT NOT NULL,
    weight          DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    attributes_json JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges(source_node_id, scope);
CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges(target_node_id, scope);

CREATE TABLE IF NOT EXISTS service_correlations (
    correlation_id   TEXT PRIMARY KEY,
    correlation_type TEXT NOT NULL,
    service_type     TEXT NOT NULL,
    handler_name     TEXT NOT NULL,
    action_type      TEXT NOT NULL,
    request_data     JSONB,
    response_data    JSONB,
    status           TEXT NOT NULL,
    tags             JSONB,
    timestamp        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_service_correlations_type_ts ON service_correlations(correlation_type, timestamp DESC);
`
