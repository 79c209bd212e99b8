package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/memgraph/internal/config"
	"github.com/scrypster/memgraph/internal/snapshot"
	"github.com/scrypster/memgraph/internal/storage/sqlite"
	"github.com/scrypster/memgraph/pkg/types"
)

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("memgraph "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parse parses args and rejects stray positional arguments.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %q", errUsage, fs.Args())
	}
	return nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult prints a write-path result and maps a failed status to errNotOK.
func (a *app) printResult(r types.MemoryOpResult) error {
	if err := a.print(r); err != nil {
		return err
	}
	if !r.OK() {
		return errNotOK
	}
	return nil
}

func cmdMemorize(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "memorize")
	id := fs.String("id", "", "Node id (required)")
	scope := fs.String("scope", string(types.ScopeLocal), "Scope")
	nodeType := fs.String("type", "", "Node type (required when creating)")
	attrs := fs.String("attrs", "{}", "Attributes as a JSON object")
	by := fs.String("by", "", "Writer recorded as updated_by")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", errUsage)
	}

	parsed, err := types.ParseAttributes(*attrs)
	if err != nil {
		return fmt.Errorf("%w: -attrs: %v", errUsage, err)
	}

	return a.printResult(a.svc.Memorize(ctx, &types.GraphNode{
		ID:         *id,
		Scope:      types.GraphScope(*scope),
		Type:       types.NodeType(*nodeType),
		Attributes: parsed,
		UpdatedBy:  *by,
	}))
}

func cmdRecall(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "recall")
	id := fs.String("id", types.WildcardID, "Node id, or * for a filtered page")
	scope := fs.String("scope", string(types.ScopeLocal), "Scope")
	nodeType := fs.String("type", "", "Type filter for wildcard recall")
	depth := fs.Int("depth", 0, "Traversal depth; >1 expands neighbours")
	edges := fs.Bool("edges", false, "Attach immediate edges under _edges")
	limit := fs.Int("limit", 0, "Wildcard page size")
	action := fs.String("action", "", "Action type used to authorise secret decapsulation")
	if err := parse(fs, args); err != nil {
		return err
	}

	nodes, err := a.svc.Recall(ctx, types.MemoryQuery{
		NodeID:       *id,
		Scope:        types.GraphScope(*scope),
		Type:         types.NodeType(*nodeType),
		IncludeEdges: *edges,
		Depth:        *depth,
		Limit:        *limit,
		ActionType:   *action,
	})
	if err != nil {
		return err
	}
	return a.print(nonNil(nodes))
}

func cmdSearch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "search")
	scope := fs.String("scope", "", "Scope filter (default: all scopes)")
	nodeType := fs.String("type", "", "Type filter")
	limit := fs.Int("limit", 0, "Maximum results")
	action := fs.String("action", "", "Action type used to authorise secret decapsulation")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	nodes, err := a.svc.Search(ctx, strings.Join(fs.Args(), " "), types.SearchFilter{
		Scope:      types.GraphScope(*scope),
		Type:       types.NodeType(*nodeType),
		Limit:      *limit,
		ActionType: *action,
	})
	if err != nil {
		return err
	}
	return a.print(nonNil(nodes))
}

func cmdForget(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "forget")
	id := fs.String("id", "", "Node id (required)")
	scope := fs.String("scope", string(types.ScopeLocal), "Scope")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", errUsage)
	}
	return a.printResult(a.svc.Forget(ctx, *id, types.GraphScope(*scope)))
}

func cmdEdge(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "edge")
	source := fs.String("source", "", "Source node id")
	target := fs.String("target", "", "Target node id")
	rel := fs.String("rel", types.RelRelatesTo, "Relationship label")
	weight := fs.Float64("weight", 1.0, "Edge weight")
	scope := fs.String("scope", string(types.ScopeLocal), "Scope")
	attrs := fs.String("attrs", "{}", "Edge attributes as a JSON object")
	del := fs.String("delete", "", "Delete the edge with this id instead of creating one")
	if err := parse(fs, args); err != nil {
		return err
	}

	if *del != "" {
		return a.printResult(a.svc.DeleteEdge(ctx, *del))
	}
	if *source == "" || *target == "" {
		return fmt.Errorf("%w: -source and -target are required", errUsage)
	}

	parsed, err := types.ParseAttributes(*attrs)
	if err != nil {
		return fmt.Errorf("%w: -attrs: %v", errUsage, err)
	}
	edge := types.NewGraphEdge(*source, *target, *rel, types.GraphScope(*scope), *weight)
	edge.Attributes = parsed
	return a.printResult(a.svc.CreateEdge(ctx, edge))
}

func cmdEdges(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "edges")
	id := fs.String("id", "", "Node id (required)")
	scope := fs.String("scope", string(types.ScopeLocal), "Scope")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", errUsage)
	}

	edges, err := a.svc.GetEdges(ctx, *id, types.GraphScope(*scope))
	if err != nil {
		return err
	}
	return a.print(nonNil(edges))
}

func cmdMetric(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "metric")
	name := fs.String("name", "", "Metric name (required)")
	value := fs.Float64("value", 0, "Metric value")
	tags := fs.String("tags", "", "Tags as k=v,k=v")
	scope := fs.String("scope", string(types.ScopeLocal), "Scope")
	if err := parse(fs, args); err != nil {
		return err
	}

	parsedTags, err := parseTags(*tags)
	if err != nil {
		return err
	}
	return a.printResult(a.svc.MemorizeMetric(ctx, *name, *value, parsedTags, types.GraphScope(*scope)))
}

func cmdLog(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "log")
	message := fs.String("message", "", "Log message (required)")
	level := fs.String("level", "info", "Log level")
	tags := fs.String("tags", "", "Tags as k=v,k=v")
	scope := fs.String("scope", string(types.ScopeLocal), "Scope")
	if err := parse(fs, args); err != nil {
		return err
	}

	parsedTags, err := parseTags(*tags)
	if err != nil {
		return err
	}
	return a.printResult(a.svc.MemorizeLog(ctx, *message, *level, parsedTags, types.GraphScope(*scope)))
}

func cmdTimeseries(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "timeseries")
	scope := fs.String("scope", string(types.ScopeLocal), "Scope")
	hours := fs.Int("hours", 24, "Window size ending now (ignored with -start)")
	start := fs.String("start", "", "Window start timestamp")
	end := fs.String("end", "", "Window end timestamp (default: now)")
	names := fs.String("names", "", "Comma-separated metric names")
	dataTypes := fs.String("types", "", "Comma-separated data types (metric, log_entry)")
	tags := fs.String("tags", "", "Tags as k=v,k=v")
	if err := parse(fs, args); err != nil {
		return err
	}

	q := types.TimeSeriesQuery{
		Scope:       types.GraphScope(*scope),
		Hours:       *hours,
		MetricNames: splitList(*names),
		DataTypes:   splitList(*dataTypes),
	}
	var err error
	if q.Tags, err = parseTags(*tags); err != nil {
		return err
	}
	if q.Start, err = parseTime("-start", *start); err != nil {
		return err
	}
	if q.End, err = parseTime("-end", *end); err != nil {
		return err
	}

	points, err := a.svc.RecallTimeseries(ctx, q)
	if err != nil {
		return err
	}
	return a.print(nonNil(points))
}

func cmdCorrelations(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "correlations")
	kind := fs.String("type", "", "Correlation type (default: all)")
	limit := fs.Int("limit", 0, "Maximum records")
	if err := parse(fs, args); err != nil {
		return err
	}

	records, err := a.svc.ListCorrelations(ctx, *kind, *limit)
	if err != nil {
		return err
	}
	return a.print(nonNil(records))
}

func cmdIdentity(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlagSet(a, "identity"), args); err != nil {
		return err
	}
	out, err := a.svc.ExportIdentityContext(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(a.stdout, out)
	return err
}

func (a *app) snapshotManager() (*snapshot.Manager, error) {
	var source snapshot.Source
	if a.sqlite != nil {
		source = a.sqlite
	} else {
		source = unavailableSource{engine: a.cfg.Storage.Engine}
	}
	sc := a.cfg.Snapshot
	return snapshot.NewManager(source, snapshot.Config{
		Dir:    sc.Path,
		Verify: sc.Verify,
		Retention: snapshot.RetentionPolicy{
			Hourly:  sc.RetentionHourly,
			Daily:   sc.RetentionDaily,
			Weekly:  sc.RetentionWeekly,
			Monthly: sc.RetentionMonthly,
		},
		Clock: a.clock,
	})
}

// unavailableSource stands in for engines that cannot snapshot themselves.
type unavailableSource struct{ engine string }

func (u unavailableSource) Snapshot(context.Context, string) error {
	return fmt.Errorf("snapshots are only supported by the sqlite engine, not %s", u.engine)
}

func cmdSnapshot(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "snapshot")
	dir := fs.String("dir", "", "Snapshot directory (overrides config)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *dir != "" {
		a.cfg.Snapshot.Path = *dir
	}

	m, err := a.snapshotManager()
	if err != nil {
		return err
	}
	res, err := m.Take(ctx)
	if err != nil {
		return err
	}
	return a.print(map[string]any{
		"path":        res.Path,
		"bytes":       res.Size,
		"verified":    res.Verified,
		"duration_ms": res.Duration.Milliseconds(),
		"pruned":      nonNil(res.Pruned),
	})
}

func cmdSnapshots(_ context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "snapshots")
	dir := fs.String("dir", "", "Snapshot directory (overrides config)")
	prune := fs.Bool("prune", false, "Apply the retention policy before listing")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *dir != "" {
		a.cfg.Snapshot.Path = *dir
	}

	m, err := a.snapshotManager()
	if err != nil {
		return err
	}
	if *prune {
		removed, err := m.Prune()
		if err != nil {
			return err
		}
		a.log.Info().Int("removed", len(removed)).Msg("memgraph: pruned snapshots")
	}

	list, err := m.List()
	if err != nil {
		return err
	}
	type entry struct {
		Path      string    `json:"path"`
		Timestamp time.Time `json:"timestamp"`
		Bytes     int64     `json:"bytes"`
	}
	out := make([]entry, len(list))
	for i, s := range list {
		out[i] = entry{Path: s.Path, Timestamp: s.Timestamp, Bytes: s.Size}
	}
	return a.print(out)
}

func cmdRestore(_ context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "restore")
	from := fs.String("from", "", "Snapshot file to restore (required)")
	to := fs.String("to", "", "Database file to overwrite (default: the configured database)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *from == "" {
		return fmt.Errorf("%w: -from is required", errUsage)
	}
	if a.cfg.Storage.Engine != config.EngineSQLite && *to == "" {
		return fmt.Errorf("%w: restore targets a sqlite file; pass -to", errUsage)
	}

	target := *to
	if target == "" {
		target = a.cfg.Storage.SQLitePath()
	}
	if err := snapshot.Restore(*from, target); err != nil {
		return err
	}
	a.log.Info().Str("from", *from).Str("to", target).Msg("memgraph: database restored")
	return a.print(map[string]string{"restored": target})
}

func cmdVerify(_ context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "verify")
	path := fs.String("path", "", "Snapshot file to check (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("%w: -path is required", errUsage)
	}
	if err := sqlite.VerifySnapshot(*path); err != nil {
		return err
	}
	return a.print(map[string]any{"path": *path, "ok": true})
}

// parseTags parses "k=v,k2=v2". An empty string yields nil.
func parseTags(s string) (map[string]string, error) {
	items := splitList(s)
	if len(items) == 0 {
		return nil, nil
	}
	tags := make(map[string]string, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: tag %q is not k=v", errUsage, item)
		}
		tags[k] = v
	}
	return tags, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseTime(flagName, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := types.ParseTimestamp(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", errUsage, flagName, err)
	}
	return t, nil
}

// nonNil makes empty results print as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
