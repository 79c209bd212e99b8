// Package sqlite implements storage.GraphStore on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/pkg/types"
)

// Ensure *GraphStore implements storage.GraphStore at compile time.
var _ storage.GraphStore = (*GraphStore)(nil)

// timeLayout is fixed-width so that TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// readPoolSize is the number of concurrent reader connections for file databases.
const readPoolSize = 4

// GraphStore implements storage.GraphStore using SQLite.
//
// Writes go through a single connection, which serialises them and avoids
// SQLITE_BUSY. Reads use a separate query-only pool; with WAL enabled they
// proceed while a write is in flight. In-memory databases use one
// connection for both because every connection would otherwise see its
// own empty database.
type GraphStore struct {
	db     *sql.DB // writer
	reader *sql.DB
	dsn    string
}

// NewGraphStore opens (or creates) the graph database at dsn with WAL
// self-healing. If the first open fails because of stale WAL files left by a
// crashed process, it verifies no other process holds them and retries once
// after removing the stale -shm/-wal files.
func NewGraphStore(dsn string) (*GraphStore, error) {
	store, err := openGraphStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openGraphStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Warn().Str("path", dbPath).Msg("sqlite: recovered from stale WAL files")
	return store, nil
}

// openGraphStore opens the writer connection, configures WAL mode, creates
// the schema and then opens the read pool.
func openGraphStore(dsn string) (*GraphStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	store := &GraphStore{db: db, reader: db, dsn: dsn}
	if isMemoryDSN(dsn) {
		return store, nil
	}

	reader, err := sql.Open("sqlite", withPragmas(dsn, "busy_timeout(5000)", "query_only(1)"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	reader.SetMaxOpenConns(readPoolSize)
	reader.SetMaxIdleConns(readPoolSize)
	store.reader = reader

	return store, nil
}

// PutNode creates the node or merges it into the stored version.
//
// The read and the write are separate statements with no lock in between,
// so two concurrent writers of the same (id, scope) can lose an update.
// Callers that need serialised merges must hold their own per-key lock.
func (s *GraphStore) PutNode(ctx context.Context, node *types.GraphNode, now time.Time) (string, error) {
	if err := node.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	existing, err := s.GetNode(ctx, node.ID, node.Scope)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	attrs := node.Attributes
	version := 1
	nodeType := node.Type
	if existing != nil {
		attrs = types.MergeAttributes(existing.Attributes, node.Attributes)
		version = existing.Version + 1
		nodeType = existing.Type
	}
	if nodeType == "" {
		return "", fmt.Errorf("%w: node type is required on creation", storage.ErrInvalidInput)
	}

	attrsJSON, err := attrs.Canonical()
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO graph_nodes (
			node_id, scope, node_type, attributes_json, version, updated_by, updated_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id, scope) DO UPDATE SET
			attributes_json = excluded.attributes_json,
			version = excluded.version,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		node.ID,
		string(node.Scope),
		string(nodeType),
		attrsJSON,
		version,
		nullableString(node.UpdatedBy),
		formatTime(now),
		creationTime(attrs, now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: failed to store node %s: %v", storage.ErrPersistence, node.ID, err)
	}

	return node.ID, nil
}

// GetNode retrieves a node by (id, scope).
func (s *GraphStore) GetNode(ctx context.Context, id string, scope types.GraphScope) (*types.GraphNode, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: node ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT node_id, scope, node_type, attributes_json, version, updated_by, updated_at
		FROM graph_nodes
		WHERE node_id = ? AND scope = ?
	`

	node, err := scanNode(s.reader.QueryRowContext(ctx, query, id, string(scope)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get node %s: %v", storage.ErrPersistence, id, err)
	}

	return node, nil
}

// DeleteNode hard-deletes a node. Edges referencing it are left in place.
func (s *GraphStore) DeleteNode(ctx context.Context, id string, scope types.GraphScope) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: node ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM graph_nodes WHERE node_id = ? AND scope = ?", id, string(scope))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete node %s: %v", storage.ErrPersistence, id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to check rows affected: %v", storage.ErrPersistence, err)
	}

	return int(rowsAffected), nil
}

// ListNodes returns a filtered page of nodes, newest update first.
// Rows whose attributes cannot be decoded are skipped.
func (s *GraphStore) ListNodes(ctx context.Context, opts storage.ListOptions) ([]*types.GraphNode, error) {
	opts.Normalize()

	query := `
		SELECT node_id, scope, node_type, attributes_json, version, updated_by, updated_at
		FROM graph_nodes
	`

	var conditions []string
	var args []interface{}

	if opts.Scope != "" {
		conditions = append(conditions, "scope = ?")
		args = append(args, string(opts.Scope))
	}

	if opts.Type != "" {
		conditions = append(conditions, "node_type = ?")
		args = append(args, string(opts.Type))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY updated_at DESC, node_id ASC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list nodes: %v", storage.ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	return scanNodes(rows)
}

// Close flushes the WAL into the main database file and releases resources.
func (s *GraphStore) Close() error {
	if s.db == nil {
		return nil
	}

	if s.reader != nil && s.reader != s.db {
		_ = s.reader.Close()
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Warn().Err(err).Msg("sqlite: WAL checkpoint on close failed (non-fatal)")
	}

	return s.db.Close()
}

// GetDB returns the writer connection.
func (s *GraphStore) GetDB() *sql.DB {
	return s.db
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanNode decodes one graph_nodes row.
func scanNode(row rowScanner) (*types.GraphNode, error) {
	var node types.GraphNode
	var scope, nodeType, attrsJSON, updatedAt string
	var updatedBy sql.NullString

	if err := row.Scan(&node.ID, &scope, &nodeType, &attrsJSON, &node.Version, &updatedBy, &updatedAt); err != nil {
		return nil, err
	}

	attrs, err := types.ParseAttributes(attrsJSON)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	node.Scope = types.GraphScope(scope)
	node.Type = types.NodeType(nodeType)
	node.Attributes = attrs
	if updatedBy.Valid {
		node.UpdatedBy = updatedBy.String
	}
	if t, err := types.ParseTimestamp(updatedAt); err == nil {
		node.UpdatedAt = t
	}

	return &node, nil
}

// scanNodes decodes a result set, skipping malformed rows.
func scanNodes(rows *sql.Rows) ([]*types.GraphNode, error) {
	var nodes []*types.GraphNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			log.Warn().Err(err).Msg("sqlite: skipping malformed node row")
			continue
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating nodes: %v", storage.ErrPersistence, err)
	}

	return nodes, nil
}

// creationTime picks the value stored in the created_at column: the node's
// own created_at or timestamp attribute when present, otherwise now.
func creationTime(attrs types.Attributes, now time.Time) string {
	for _, key := range []string{types.AttrCreatedAt, types.AttrTimestamp} {
		if s := attrs.GetString(key); s != "" {
			return s
		}
	}
	return formatTime(now)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// nullableString converts a string to sql.NullString.
// An empty string is treated as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// isMemoryDSN reports whether dsn names an in-memory database.
func isMemoryDSN(dsn string) bool {
	return dsn == "" || dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || dbPathFromDSN(dsn) == ""
}

// withPragmas appends _pragma query parameters to a DSN.
func withPragmas(dsn string, pragmas ...string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN.
// Handles bare paths ("/path/to/db.sqlite") and file: URIs ("file:/path/to/db.sqlite?mode=rwc").
// Returns empty string for in-memory databases or unparseable DSNs.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		return dsn[:i]
	}
	return dsn
}

// isRecoverableWALError returns true if the error matches patterns caused by
// stale WAL files left behind after a crash (SIGKILL, OOM, etc.).
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale checks whether -shm/-wal files exist for the given database path
// and no other process currently holds them open (via lsof).
// Returns false if lsof is unavailable.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		// lsof exits 1 when no process has the files open.
		return true
	}

	return strings.TrimSpace(string(output)) == ""
}

// removeStaleWAL removes -shm and -wal files for the given database path.
func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("sqlite: failed to remove stale WAL file")
		}
	}
}

// fileExists returns true if the path exists on disk.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
