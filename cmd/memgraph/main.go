// Command memgraph is the operator CLI for the graph memory store.
//
// Every subcommand opens the configured store, runs one memory service
// operation and prints the outcome as JSON on stdout. Logs go to stderr.
//
// Configuration comes from MEMGRAPH_* environment variables, optionally on
// top of a YAML file given with -config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/scrypster/memgraph/internal/clock"
	"github.com/scrypster/memgraph/internal/config"
	"github.com/scrypster/memgraph/internal/logger"
	"github.com/scrypster/memgraph/internal/memory"
	"github.com/scrypster/memgraph/internal/metrics"
	"github.com/scrypster/memgraph/internal/secrets"
	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/internal/storage/postgres"
	"github.com/scrypster/memgraph/internal/storage/sqlite"
)

// errUsage marks command-line mistakes; run exits with status 2.
var errUsage = errors.New("usage error")

// errNotOK marks a write whose result status was not ok; the result has
// already been printed.
var errNotOK = errors.New("operation did not succeed")

// app is the wired process state shared by subcommands.
type app struct {
	cfg     *config.Config
	store   storage.GraphStore
	sqlite  *sqlite.GraphStore // nil unless the sqlite engine is in use
	svc     *memory.Service
	guard   *secrets.Guard
	metrics *metrics.Metrics
	log     *logger.Logger
	clock   clock.TimeService
	stdout  io.Writer
	stderr  io.Writer
}

// command is one subcommand. needsStore is false for commands that must run
// with the database closed.
type command struct {
	summary    string
	needsStore bool
	run        func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"memorize":     {"create or merge a node", true, cmdMemorize},
	"recall":       {"fetch a node, its neighbourhood, or a filtered page", true, cmdRecall},
	"search":       {"substring search over ids and attributes", true, cmdSearch},
	"forget":       {"hard-delete a node", true, cmdForget},
	"edge":         {"create or delete an edge", true, cmdEdge},
	"edges":        {"list the edges touching a node", true, cmdEdges},
	"metric":       {"record a metric observation", true, cmdMetric},
	"log":          {"record a log observation", true, cmdLog},
	"timeseries":   {"list metric and log points in a window", true, cmdTimeseries},
	"correlations": {"list correlation records", true, cmdCorrelations},
	"identity":     {"export the identity scope", true, cmdIdentity},
	"snapshot":     {"take a verified snapshot and apply retention", true, cmdSnapshot},
	"snapshots":    {"list snapshots", false, cmdSnapshots},
	"restore":      {"restore the database from a snapshot", false, cmdRestore},
	"verify":       {"integrity-check a snapshot", false, cmdVerify},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one CLI invocation and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("memgraph", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to a YAML config file (env vars still win)")
	dataPath := fs.String("data", "", "Data directory (overrides config)")
	metricsFile := fs.String("metrics-file", "", "Write Prometheus metrics to this file after the command")
	logLevel := fs.String("log-level", "", "Log level (overrides config)")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		usage(fs)
		return 2
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "memgraph: unknown command %q\n\n", name)
		usage(fs)
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "memgraph: %v\n", err)
		return 1
	}
	if *dataPath != "" {
		cfg.Storage.DataPath = *dataPath
	}
	if *metricsFile != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.TextfilePath = *metricsFile
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	a, err := newApp(cfg, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "memgraph: %v\n", err)
		return 1
	}
	defer a.close()

	if cmd.needsStore {
		if err := a.open(); err != nil {
			a.log.Error().Err(err).Msg("memgraph: failed to open store")
			return 1
		}
	}

	err = cmd.run(ctx, a, fs.Args()[1:])
	a.flushMetrics()

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "memgraph %s: %v\n", name, err)
		return 2
	case errors.Is(err, errNotOK):
		return 1
	default:
		a.log.Error().Err(err).Str("command", name).Msg("memgraph: command failed")
		return 1
	}
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "usage: memgraph [global flags] <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-13s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "global flags:")
	fs.PrintDefaults()
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadConfig()
}

// newApp builds the logger, metrics and secrets pipeline. The store is
// opened separately by open.
func newApp(cfg *config.Config, stdout, stderr io.Writer) (*app, error) {
	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		Output:    stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, log: lg, clock: clock.System{}, stdout: stdout, stderr: stderr}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewMetrics()
	}
	return a, nil
}

// open connects the configured store and builds the memory service.
func (a *app) open() error {
	switch a.cfg.Storage.Engine {
	case config.EnginePostgres:
		store, err := postgres.NewGraphStore(a.cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = store
	default:
		if err := os.MkdirAll(a.cfg.Storage.DataPath, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory %q: %w", a.cfg.Storage.DataPath, err)
		}
		store, err := sqlite.NewGraphStore(a.cfg.Storage.SQLitePath())
		if err != nil {
			return err
		}
		a.store = store
		a.sqlite = store
	}

	key, err := a.cfg.Secrets.VaultKeyBytes()
	if err != nil {
		return err
	}
	zl := a.log.Zerolog()
	manager, err := secrets.NewManager(secrets.ManagerConfig{
		AllowedActions: a.cfg.Secrets.AllowedActions,
		VaultKey:       key,
		Clock:          a.clock,
		Logger:         &zl,
	})
	if err != nil {
		return err
	}
	a.guard = secrets.NewGuard(manager, secrets.GuardConfig{
		MaxFailures: a.cfg.Secrets.BreakerFailures,
		Timeout:     a.cfg.Secrets.BreakerTimeout,
		Logger:      &zl,
	})

	mc := a.cfg.Memory
	opts := []memory.Option{
		memory.WithLogger(zl),
		memory.WithMetrics(a.metrics),
		memory.WithRecallLimit(mc.RecallLimit),
		memory.WithMaxTraversalNodes(mc.MaxTraversalNodes),
		memory.WithStrictMerge(mc.StrictMerge),
		memory.WithReferentialIntegrity(mc.ReferentialIntegrity),
		memory.WithStrictReads(mc.StrictReads),
		memory.WithActor(mc.Actor),
	}
	if mc.IngestRate > 0 {
		opts = append(opts, memory.WithIngestRateLimit(rate.Limit(mc.IngestRate), mc.IngestBurst))
	}

	svc, err := memory.New(a.store, a.guard, a.clock, opts...)
	if err != nil {
		return err
	}
	a.svc = svc
	return nil
}

func (a *app) flushMetrics() {
	if a.metrics == nil || a.cfg.Metrics.TextfilePath == "" {
		return
	}
	path := a.cfg.Metrics.TextfilePath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		a.log.Warn().Err(err).Str("path", path).Msg("memgraph: cannot create metrics directory")
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.log.Warn().Err(err).Str("path", path).Msg("memgraph: failed to write metrics")
	}
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("memgraph: failed to close store")
		}
	}
	if a.guard != nil {
		m := a.guard.Metrics()
		a.log.Debug().Str("state", a.guard.State()).Uint64("requests", m.TotalRequests).
			Uint64("failures", m.TotalFailures).Msg("memgraph: secrets guard")
	}
	_ = a.log.Close()
}
