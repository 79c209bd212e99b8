package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scrypster/memgraph/internal/clock"
	"github.com/scrypster/memgraph/internal/storage/sqlite"
)

// Source is a store that can write a consistent copy of itself.
type Source interface {
	Snapshot(ctx context.Context, destPath string) error
}

// Config configures a Manager.
type Config struct {
	// Dir is the directory snapshots are written to. Required.
	Dir string

	// Verify runs an integrity check on each new snapshot.
	Verify bool

	// Retention is applied after every successful snapshot.
	// Zero tiers take their DefaultRetention values.
	Retention RetentionPolicy

	// Clock names snapshots and ages them. Default: system clock.
	Clock clock.TimeService
}

// Manager takes and prunes snapshots of one store.
type Manager struct {
	source    Source
	dir       string
	verify    bool
	retention RetentionPolicy
	clock     clock.TimeService
}

// NewManager creates the snapshot directory if needed.
func NewManager(source Source, cfg Config) (*Manager, error) {
	if source == nil {
		return nil, errors.New("snapshot: source store is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("snapshot: directory is required")
	}
	if cfg.Retention.Hourly == 0 {
		cfg.Retention.Hourly = DefaultRetention.Hourly
	}
	if cfg.Retention.Daily == 0 {
		cfg.Retention.Daily = DefaultRetention.Daily
	}
	if cfg.Retention.Weekly == 0 {
		cfg.Retention.Weekly = DefaultRetention.Weekly
	}
	if cfg.Retention.Monthly == 0 {
		cfg.Retention.Monthly = DefaultRetention.Monthly
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: failed to create directory: %w", err)
	}

	return &Manager{
		source:    source,
		dir:       cfg.Dir,
		verify:    cfg.Verify,
		retention: cfg.Retention,
		clock:     cfg.Clock,
	}, nil
}

// Take writes a new snapshot, verifies it when configured, then prunes old
// snapshots. A snapshot that fails verification is removed.
func (m *Manager) Take(ctx context.Context) (*Result, error) {
	start := time.Now()
	now := m.clock.Now()
	path := filepath.Join(m.dir, fileName(now))

	if err := m.source.Snapshot(ctx, path); err != nil {
		return nil, err
	}

	result := &Result{Path: path}
	if m.verify {
		if err := sqlite.VerifySnapshot(path); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("snapshot: verification failed: %w", err)
		}
		result.Verified = true
	}

	if info, err := os.Stat(path); err == nil {
		result.Size = info.Size()
	}
	result.Duration = time.Since(start)

	pruned, err := applyRetention(m.dir, m.retention, now)
	if err != nil {
		log.Warn().Err(err).Str("dir", m.dir).Msg("snapshot: retention incomplete")
	}
	result.Pruned = pruned

	log.Info().Str("path", path).Int64("bytes", result.Size).Bool("verified", result.Verified).
		Int("pruned", len(pruned)).Msg("snapshot: taken")
	return result, nil
}

// List returns the stored snapshots, newest first.
func (m *Manager) List() ([]Info, error) {
	return listSnapshots(m.dir)
}

// Prune applies the retention policy now and returns the removed paths.
func (m *Manager) Prune() ([]string, error) {
	return applyRetention(m.dir, m.retention, m.clock.Now())
}

// DiskUsage returns the total bytes used by all snapshots.
func (m *Manager) DiskUsage() (int64, error) {
	snapshots, err := listSnapshots(m.dir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, s := range snapshots {
		total += s.Size
	}
	return total, nil
}

// Restore verifies snapshotPath and copies it over targetPath. The target
// database must be closed.
func Restore(snapshotPath, targetPath string) error {
	return sqlite.RestoreSnapshot(snapshotPath, targetPath)
}
