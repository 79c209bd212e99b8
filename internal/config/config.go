// Package config provides configuration management for memgraph.
// It starts from sensible defaults, optionally overlays a YAML file, and
// finally applies environment variables with the MEMGRAPH_ prefix, which
// always win.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage engines.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

// DefaultDBFile is the SQLite file created under Storage.DataPath.
const DefaultDBFile = "memgraph.db"

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all configuration settings for memgraph.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Memory   MemoryConfig   `yaml:"memory"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // sqlite or postgres (default: sqlite)
	DataPath    string `yaml:"data_path"`    // Directory holding the SQLite file (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // Required when Engine is postgres
}

// SQLitePath returns the database file path for the sqlite engine.
func (s StorageConfig) SQLitePath() string {
	if s.DataPath == ":memory:" {
		return s.DataPath
	}
	return filepath.Join(s.DataPath, DefaultDBFile)
}

// MemoryConfig contains memory service settings.
type MemoryConfig struct {
	RecallLimit          int     `yaml:"recall_limit"`          // Default wildcard/search page (default: 100)
	MaxTraversalNodes    int     `yaml:"max_traversal_nodes"`   // BFS node budget (default: 1000)
	StrictMerge          bool    `yaml:"strict_merge"`          // Per-node lock around merge-writes
	ReferentialIntegrity bool    `yaml:"referential_integrity"` // Forget removes edges; edges need endpoints
	StrictReads          bool    `yaml:"strict_reads"`          // Return read errors instead of empty results
	IngestRate           float64 `yaml:"ingest_rate"`           // Metric/log events per second, 0 disables
	IngestBurst          int     `yaml:"ingest_burst"`          // Limiter burst (default: 50)
	Actor                string  `yaml:"actor"`                 // updated_by for anonymous writes
}

// SecretsConfig contains the secrets pipeline settings.
type SecretsConfig struct {
	AllowedActions  []string      `yaml:"allowed_actions"`  // Actions that may see decapsulated values
	BreakerFailures uint32        `yaml:"breaker_failures"` // Consecutive failures before the guard opens
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`  // Open-state duration
	VaultKey        string        `yaml:"vault_key"`        // Hex-encoded 32-byte key, empty for ephemeral
}

// VaultKeyBytes decodes VaultKey. An empty key yields nil.
func (s SecretsConfig) VaultKeyBytes() ([]byte, error) {
	if s.VaultKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s.VaultKey)
	if err != nil {
		return nil, fmt.Errorf("%w: vault key is not hex: %v", ErrInvalidConfig, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: vault key must be 32 bytes, got %d", ErrInvalidConfig, len(key))
	}
	return key, nil
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`     // debug, info, warn, error (default: info)
	Pretty    bool   `yaml:"pretty"`    // Human-readable console output
	File      string `yaml:"file"`      // Optional log file
	Redaction bool   `yaml:"redaction"` // Scrub secret-shaped text (default: true)
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TextfilePath string `yaml:"textfile_path"` // Written by the CLI after each command
}

// SnapshotConfig contains snapshot settings.
type SnapshotConfig struct {
	Path             string `yaml:"path"`   // Directory for snapshots (default: ./snapshots)
	Verify           bool   `yaml:"verify"` // Integrity-check snapshots after creation (default: true)
	RetentionHourly  int    `yaml:"retention_hourly"`
	RetentionDaily   int    `yaml:"retention_daily"`
	RetentionWeekly  int    `yaml:"retention_weekly"`
	RetentionMonthly int    `yaml:"retention_monthly"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:   EngineSQLite,
			DataPath: "./data",
		},
		Memory: MemoryConfig{
			RecallLimit:       100,
			MaxTraversalNodes: 1000,
			IngestBurst:       50,
			Actor:             "memory_service",
		},
		Secrets: SecretsConfig{
			AllowedActions:  []string{"speak", "tool"},
			BreakerFailures: 3,
			BreakerTimeout:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		Snapshot: SnapshotConfig{
			Path:             "./snapshots",
			Verify:           true,
			RetentionHourly:  24,
			RetentionDaily:   7,
			RetentionWeekly:  4,
			RetentionMonthly: 12,
		},
	}
}

// LoadConfig loads configuration from environment variables on top of the
// defaults and validates the result.
func LoadConfig() (*Config, error) {
	cfg := Default()
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path on the defaults, then applies
// environment variables. Keys missing from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.Storage.Engine {
	case EngineSQLite:
		if c.Storage.DataPath == "" {
			problems = append(problems, "storage.data_path is required for sqlite")
		}
	case EnginePostgres:
		if c.Storage.PostgresDSN == "" {
			problems = append(problems, "storage.postgres_dsn is required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage engine %q", c.Storage.Engine))
	}

	if c.Memory.RecallLimit < 0 {
		problems = append(problems, "memory.recall_limit must not be negative")
	}
	if c.Memory.MaxTraversalNodes < 0 {
		problems = append(problems, "memory.max_traversal_nodes must not be negative")
	}
	if c.Memory.IngestRate < 0 || c.Memory.IngestBurst < 0 {
		problems = append(problems, "memory ingest rate and burst must not be negative")
	}
	if len(c.Secrets.AllowedActions) == 0 {
		problems = append(problems, "secrets.allowed_actions must not be empty")
	}
	if c.Secrets.BreakerTimeout < 0 {
		problems = append(problems, "secrets.breaker_timeout must not be negative")
	}
	if _, err := c.Secrets.VaultKeyBytes(); err != nil {
		problems = append(problems, strings.TrimPrefix(err.Error(), ErrInvalidConfig.Error()+": "))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// applyEnv overrides cfg with any MEMGRAPH_* variables that are set.
func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("MEMGRAPH_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("MEMGRAPH_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("MEMGRAPH_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Memory.RecallLimit = getEnvInt("MEMGRAPH_RECALL_LIMIT", cfg.Memory.RecallLimit)
	cfg.Memory.MaxTraversalNodes = getEnvInt("MEMGRAPH_MAX_TRAVERSAL_NODES", cfg.Memory.MaxTraversalNodes)
	cfg.Memory.StrictMerge = getEnvBool("MEMGRAPH_STRICT_MERGE", cfg.Memory.StrictMerge)
	cfg.Memory.ReferentialIntegrity = getEnvBool("MEMGRAPH_REFERENTIAL_INTEGRITY", cfg.Memory.ReferentialIntegrity)
	cfg.Memory.StrictReads = getEnvBool("MEMGRAPH_STRICT_READS", cfg.Memory.StrictReads)
	cfg.Memory.IngestRate = getEnvFloat("MEMGRAPH_INGEST_RATE", cfg.Memory.IngestRate)
	cfg.Memory.IngestBurst = getEnvInt("MEMGRAPH_INGEST_BURST", cfg.Memory.IngestBurst)
	cfg.Memory.Actor = getEnv("MEMGRAPH_ACTOR", cfg.Memory.Actor)

	cfg.Secrets.AllowedActions = getEnvList("MEMGRAPH_ALLOWED_ACTIONS", cfg.Secrets.AllowedActions)
	cfg.Secrets.BreakerFailures = uint32(getEnvInt("MEMGRAPH_BREAKER_FAILURES", int(cfg.Secrets.BreakerFailures)))
	cfg.Secrets.BreakerTimeout = getEnvDuration("MEMGRAPH_BREAKER_TIMEOUT", cfg.Secrets.BreakerTimeout)
	cfg.Secrets.VaultKey = getEnv("MEMGRAPH_VAULT_KEY", cfg.Secrets.VaultKey)

	cfg.Logging.Level = getEnv("MEMGRAPH_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Pretty = getEnvBool("MEMGRAPH_LOG_PRETTY", cfg.Logging.Pretty)
	cfg.Logging.File = getEnv("MEMGRAPH_LOG_FILE", cfg.Logging.File)
	cfg.Logging.Redaction = getEnvBool("MEMGRAPH_LOG_REDACTION", cfg.Logging.Redaction)

	cfg.Metrics.Enabled = getEnvBool("MEMGRAPH_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.TextfilePath = getEnv("MEMGRAPH_METRICS_TEXTFILE", cfg.Metrics.TextfilePath)

	cfg.Snapshot.Path = getEnv("MEMGRAPH_SNAPSHOT_PATH", cfg.Snapshot.Path)
	cfg.Snapshot.Verify = getEnvBool("MEMGRAPH_SNAPSHOT_VERIFY", cfg.Snapshot.Verify)
	cfg.Snapshot.RetentionHourly = getEnvInt("MEMGRAPH_SNAPSHOT_RETENTION_HOURLY", cfg.Snapshot.RetentionHourly)
	cfg.Snapshot.RetentionDaily = getEnvInt("MEMGRAPH_SNAPSHOT_RETENTION_DAILY", cfg.Snapshot.RetentionDaily)
	cfg.Snapshot.RetentionWeekly = getEnvInt("MEMGRAPH_SNAPSHOT_RETENTION_WEEKLY", cfg.Snapshot.RetentionWeekly)
	cfg.Snapshot.RetentionMonthly = getEnvInt("MEMGRAPH_SNAPSHOT_RETENTION_MONTHLY", cfg.Snapshot.RetentionMonthly)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration such as "30s" or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated list, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
