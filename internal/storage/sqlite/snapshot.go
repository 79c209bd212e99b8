package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Snapshot writes a consistent point-in-time copy of the graph database to
// destPath using VACUUM INTO, which handles WAL mode correctly. The
// destination must not exist.
func (s *GraphStore) Snapshot(ctx context.Context, destPath string) error {
	if destPath == "" {
		return fmt.Errorf("sqlite: snapshot destination is required")
	}
	if fileExists(destPath) {
		return fmt.Errorf("sqlite: snapshot destination already exists: %s", destPath)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("sqlite: failed to create snapshot directory: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("sqlite: failed to snapshot database: %w", err)
	}

	return nil
}

// VerifySnapshot opens a snapshot read-only and runs PRAGMA integrity_check.
// It also checks that the graph tables are present.
func VerifySnapshot(path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	for _, table := range []string{"graph_nodes", "graph_edges"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			return fmt.Errorf("snapshot is missing table %s: %w", table, err)
		}
	}

	return nil
}

// RestoreSnapshot verifies snapshotPath and copies it over targetPath.
// The target database must not be open while restoring.
func RestoreSnapshot(snapshotPath, targetPath string) error {
	if err := VerifySnapshot(snapshotPath); err != nil {
		return fmt.Errorf("snapshot verification failed: %w", err)
	}

	src, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy snapshot: %w", err)
	}

	if err := dst.Sync(); err != nil {
		return fmt.Errorf("failed to sync target file: %w", err)
	}

	// A stale WAL from the previous database would be replayed over the restored file.
	removeStaleWAL(targetPath)

	if err := VerifySnapshot(targetPath); err != nil {
		return fmt.Errorf("restored database verification failed: %w", err)
	}

	return nil
}
