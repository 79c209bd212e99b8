package sqlite

// Schema is applied on every open; all statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS graph_nodes (
	node_id         TEXT NOT NULL,
	scope           TEXT NOT NULL,
	node_type       TEXT NOT NULL,
	attributes_json TEXT NOT NULL DEFAULT '{}',
	version         INTEGER NOT NULL DEFAULT 1,
	updated_by      TEXT,
	updated_at      TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	PRIMARY KEY (node_id, scope)
);
CREATE INDEX IF NOT EXISTS idx_graph_nodes_scope_type ON graph_nodes(scope, node_type);
CREATE INDEX IF NOT EXISTS idx_graph_nodes_updated_at ON graph_nodes(updated_at);
CREATE INDEX IF NOT EXISTS idx_graph_nodes_created_at ON graph_nodes(created_at);

CREATE TABLE IF NOT EXISTS graph_edges (
	edge_id         TEXT PRIMARY KEY,
	source_node_id  TEXT NOT NULL,
	target_node_id  TEXT NOT NULL,
	scope           TEXT NOT NULL,
	relationship    TEXT NOT NULL,
	weight          REAL NOT NULL DEFAULT 1.0,
	attributes_json TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges(source_node_id, scope);
CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges(target_node_id, scope);

CREATE TABLE IF NOT EXISTS service_correlations (
	correlation_id   TEXT PRIMARY KEY,
	correlation_type TEXT NOT NULL,
	service_type     TEXT NOT NULL,
	handler_name     TEXT NOT NULL,
	action_type      TEXT NOT NULL,
	request_data     TEXT,
	response_data    TEXT,
	status           TEXT NOT NULL,
	tags             TEXT,
	timestamp        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_service_correlations_type_ts ON service_correlations(correlation_type, timestamp);
`
