package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memgraph/internal/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, config.EngineSQLite, cfg.Storage.Engine)
	assert.Equal(t, filepath.Join("./data", config.DefaultDBFile), cfg.Storage.SQLitePath())
	assert.Equal(t, 100, cfg.Memory.RecallLimit)
	assert.False(t, cfg.Memory.StrictMerge, "lost-update behaviour is the default")
	assert.False(t, cfg.Memory.ReferentialIntegrity)
	assert.False(t, cfg.Memory.StrictReads)
	assert.Equal(t, []string{"speak", "tool"}, cfg.Secrets.AllowedActions)
	assert.Equal(t, 30*time.Second, cfg.Secrets.BreakerTimeout)
	assert.True(t, cfg.Logging.Redaction)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MEMGRAPH_STRICT_MERGE", "YES")
	t.Setenv("MEMGRAPH_REFERENTIAL_INTEGRITY", "1")
	t.Setenv("MEMGRAPH_RECALL_LIMIT", "25")
	t.Setenv("MEMGRAPH_INGEST_RATE", "2.5")
	t.Setenv("MEMGRAPH_ALLOWED_ACTIONS", " speak, ,notify ")
	t.Setenv("MEMGRAPH_BREAKER_TIMEOUT", "1m")
	t.Setenv("MEMGRAPH_LOG_LEVEL", "debug")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.Memory.StrictMerge)
	assert.True(t, cfg.Memory.ReferentialIntegrity)
	assert.Equal(t, 25, cfg.Memory.RecallLimit)
	assert.Equal(t, 2.5, cfg.Memory.IngestRate)
	assert.Equal(t, []string{"speak", "notify"}, cfg.Secrets.AllowedActions)
	assert.Equal(t, time.Minute, cfg.Secrets.BreakerTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_UnparseableEnvKeepsDefault(t *testing.T) {
	t.Setenv("MEMGRAPH_RECALL_LIMIT", "lots")
	t.Setenv("MEMGRAPH_STRICT_READS", "maybe")
	t.Setenv("MEMGRAPH_BREAKER_TIMEOUT", "soon")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Memory.RecallLimit)
	assert.False(t, cfg.Memory.StrictReads)
	assert.Equal(t, 30*time.Second, cfg.Secrets.BreakerTimeout)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
storage:
  engine: postgres
  postgres_dsn: postgres://memgraph@localhost/memgraph?sslmode=disable
memory:
  strict_reads: true
  max_traversal_nodes: 50
secrets:
  allowed_actions: [speak]
  breaker_timeout: 5s
logging:
  pretty: true
`)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, config.EnginePostgres, cfg.Storage.Engine)
	assert.True(t, cfg.Memory.StrictReads)
	assert.Equal(t, 50, cfg.Memory.MaxTraversalNodes)
	assert.Equal(t, 100, cfg.Memory.RecallLimit, "keys missing from the file keep defaults")
	assert.Equal(t, []string{"speak"}, cfg.Secrets.AllowedActions)
	assert.Equal(t, 5*time.Second, cfg.Secrets.BreakerTimeout)
	assert.True(t, cfg.Logging.Pretty)
}

func TestLoadFile_EnvWins(t *testing.T) {
	path := writeFile(t, "memory:\n  recall_limit: 10\n")
	t.Setenv("MEMGRAPH_RECALL_LIMIT", "20")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Memory.RecallLimit)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.LoadFile(writeFile(t, "memory: [not, a, map"))
	assert.Error(t, err)

	_, err = config.LoadFile(writeFile(t, "storage:\n  engine: mongo\n"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"unknown engine", func(c *config.Config) { c.Storage.Engine = "mongo" }, "unknown storage engine"},
		{"postgres without dsn", func(c *config.Config) { c.Storage.Engine = config.EnginePostgres }, "postgres_dsn"},
		{"negative limit", func(c *config.Config) { c.Memory.RecallLimit = -1 }, "recall_limit"},
		{"empty allow-list", func(c *config.Config) { c.Secrets.AllowedActions = nil }, "allowed_actions"},
		{"short vault key", func(c *config.Config) { c.Secrets.VaultKey = "abcd" }, "32 bytes"},
		{"non-hex vault key", func(c *config.Config) { c.Secrets.VaultKey = "zz" }, "not hex"},
		{"valid vault key", func(c *config.Config) { c.Secrets.VaultKey = strings.Repeat("ab", 32) }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, config.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVaultKeyBytes(t *testing.T) {
	key, err := config.SecretsConfig{}.VaultKeyBytes()
	require.NoError(t, err)
	assert.Nil(t, key)

	key, err = config.SecretsConfig{VaultKey: strings.Repeat("01", 32)}.VaultKeyBytes()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}
