package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv points the CLI at a fresh data directory.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MEMGRAPH_DATA_PATH", filepath.Join(dir, "data"))
	t.Setenv("MEMGRAPH_SNAPSHOT_PATH", filepath.Join(dir, "snapshots"))
	t.Setenv("MEMGRAPH_LOG_LEVEL", "error")
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := runCLI(t, args...)
	require.Equal(t, 0, code, "args %v\nstdout: %s\nstderr: %s", args, out, errOut)
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestRun_Usage(t *testing.T) {
	setupEnv(t)

	code, _, errOut := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "usage: memgraph")

	code, _, errOut = runCLI(t, "teleport")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown command "teleport"`)

	code, _, _ = runCLI(t, "-h")
	assert.Equal(t, 0, code)

	code, _, errOut = runCLI(t, "forget")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "-id is required")

	code, _, _ = runCLI(t, "memorize", "-id", "x", "-attrs", "{broken")
	assert.Equal(t, 2, code)

	code, _, _ = runCLI(t, "metric", "-name", "cpu", "-tags", "nokey")
	assert.Equal(t, 2, code)
}

func TestRun_MemorizeRecallForget(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "memorize", "-id", "user_alice", "-type", "user", "-attrs", `{"name":"Alice"}`)
	assert.Equal(t, "ok", decode[map[string]any](t, out)["status"])
	mustRun(t, "memorize", "-id", "user_alice", "-attrs", `{"active":true}`)
	mustRun(t, "memorize", "-id", "channel_general", "-type", "channel")
	mustRun(t, "edge", "-source", "user_alice", "-target", "channel_general", "-rel", "participates_in", "-weight", "0.7")

	nodes := decode[[]map[string]any](t, mustRun(t, "recall", "-id", "user_alice", "-depth", "2", "-edges"))
	require.Len(t, nodes, 2)
	assert.Equal(t, "user_alice", nodes[0]["id"])
	assert.EqualValues(t, 2, nodes[0]["version"])
	attrs := nodes[0]["attributes"].(map[string]any)
	assert.Equal(t, "Alice", attrs["name"])
	assert.Equal(t, true, attrs["active"])
	assert.Len(t, attrs["_edges"], 1)
	assert.Equal(t, "channel_general", nodes[1]["id"])

	page := decode[[]map[string]any](t, mustRun(t, "recall", "-type", "user"))
	assert.Len(t, page, 1)

	found := decode[[]map[string]any](t, mustRun(t, "search", "alice"))
	assert.Len(t, found, 1)

	out = mustRun(t, "forget", "-id", "user_alice")
	assert.EqualValues(t, 1, decode[map[string]any](t, out)["affected"])

	assert.Empty(t, decode[[]map[string]any](t, mustRun(t, "recall", "-id", "user_alice")))
	edges := decode[[]map[string]any](t, mustRun(t, "edges", "-id", "channel_general"))
	assert.Len(t, edges, 1, "edges survive forget by default")
}

func TestRun_FailedWriteExitsNonZero(t *testing.T) {
	setupEnv(t)

	code, out, _ := runCLI(t, "memorize", "-id", "untyped")
	assert.Equal(t, 1, code)
	assert.Equal(t, "invalid", decode[map[string]any](t, out)["status"])
}

func TestRun_TelemetryAndCorrelations(t *testing.T) {
	dir := setupEnv(t)
	metricsFile := filepath.Join(dir, "metrics", "memgraph.prom")

	mustRun(t, "-metrics-file", metricsFile, "metric", "-name", "cpu", "-value", "0.5", "-tags", "host=a")
	mustRun(t, "log", "-message", "agent started", "-tags", "component=runtime")

	points := decode[[]map[string]any](t, mustRun(t, "timeseries", "-hours", "1"))
	require.Len(t, points, 2)

	metricsOnly := decode[[]map[string]any](t, mustRun(t, "timeseries", "-types", "metric"))
	require.Len(t, metricsOnly, 1)
	assert.Equal(t, "cpu", metricsOnly[0]["metric_name"])

	records := decode[[]map[string]any](t, mustRun(t, "correlations", "-type", "log_entry"))
	require.Len(t, records, 1)
	assert.Equal(t, "memorize_log", records[0]["handler_name"])

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `memgraph_operations_total{op="memorize_metric",status="ok"} 1`)
}

func TestRun_Identity(t *testing.T) {
	setupEnv(t)

	mustRun(t, "memorize", "-id", "values", "-scope", "identity", "-type", "identity", "-attrs", `{"core":"be useful"}`)
	mustRun(t, "memorize", "-id", "scratch", "-type", "concept")

	out := mustRun(t, "identity")
	assert.Equal(t, "values: {\"core\":\"be useful\"}\n", out)
}

func TestRun_SnapshotRestoreVerify(t *testing.T) {
	dir := setupEnv(t)

	mustRun(t, "memorize", "-id", "self", "-scope", "identity", "-type", "identity", "-attrs", `{"name":"Ada"}`)

	taken := decode[map[string]any](t, mustRun(t, "snapshot"))
	path, _ := taken["path"].(string)
	require.NotEmpty(t, path)
	assert.Equal(t, true, taken["verified"])

	list := decode[[]map[string]any](t, mustRun(t, "snapshots"))
	require.Len(t, list, 1)
	assert.Equal(t, path, list[0]["path"])

	assert.Equal(t, true, decode[map[string]any](t, mustRun(t, "verify", "-path", path))["ok"])

	target := filepath.Join(dir, "restored", "memgraph.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	mustRun(t, "restore", "-from", path, "-to", target)

	out := mustRun(t, "-data", filepath.Dir(target), "recall", "-id", "self", "-scope", "identity")
	assert.True(t, strings.Contains(out, `"Ada"`), out)

	bad := filepath.Join(dir, "bad.db")
	require.NoError(t, os.WriteFile(bad, []byte("junk"), 0o644))
	code, _, _ := runCLI(t, "verify", "-path", bad)
	assert.Equal(t, 1, code)
}

func TestParseTags(t *testing.T) {
	tags, err := parseTags("host=a, env = prod ,empty=")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"host": "a", "env ": " prod", "empty": ""}, tags)

	tags, err = parseTags("")
	require.NoError(t, err)
	assert.Nil(t, tags)

	_, err = parseTags("=v")
	assert.ErrorIs(t, err, errUsage)
}
