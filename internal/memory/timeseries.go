package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/pkg/types"
)

// DefaultTimeseriesHours is the window used when a query names neither
// Hours nor Start.
const DefaultTimeseriesHours = 24

// RecallTimeseries returns the metric and log points of a scope within a
// window, ascending by timestamp. Explicit Start/End win over Hours and End
// defaults to now; both bounds are inclusive. Rows whose timestamp cannot
// be parsed are skipped with a warning.
func (s *Service) RecallTimeseries(ctx context.Context, q types.TimeSeriesQuery) (points []types.TimeSeriesDataPoint, err error) {
	start := time.Now()
	defer s.observe("recall_timeseries", start, &err)

	q.Scope = scopeOrDefault(q.Scope)
	window := s.resolveWindow(q)
	if !window.Valid() {
		return nil, s.readFailure("recall_timeseries", "", q.Scope,
			fmt.Errorf("%w: window start %s is after end %s", ErrInvalidQuery,
				types.FormatTimestamp(window.Start), types.FormatTimestamp(window.End)))
	}

	nodes, err := s.store.ScanTimeSeries(ctx, q.Scope, window)
	if err != nil {
		return nil, s.readFailure("recall_timeseries", "", q.Scope, err)
	}

	filter := newPointFilter(q)
	skipped := 0
	for _, n := range nodes {
		p, ok := projectPoint(n)
		if !ok {
			skipped++
			s.logger.Warn().Str("op", "recall_timeseries").Str("node_id", n.ID).
				Msg("memory: skipping time-series row with unparseable timestamp")
			continue
		}
		// The store compares instants too; this guards backends whose
		// created_at column fell back to the write time.
		if p.Timestamp.Before(window.Start) || p.Timestamp.After(window.End) {
			continue
		}
		if filter.keep(p) {
			points = append(points, p)
		}
	}
	s.metrics.SkippedRows(skipped)

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}

func (s *Service) resolveWindow(q types.TimeSeriesQuery) storage.TimeRange {
	end := q.End
	if end.IsZero() {
		end = s.clock.Now()
	}
	begin := q.Start
	if begin.IsZero() {
		hours := q.Hours
		if hours <= 0 {
			hours = DefaultTimeseriesHours
		}
		begin = end.Add(-time.Duration(hours) * time.Hour)
	}
	return storage.TimeRange{Start: begin.UTC(), End: end.UTC()}
}

// projectPoint converts a tsdb_data node into a data point.
func projectPoint(n *types.GraphNode) (types.TimeSeriesDataPoint, bool) {
	raw := n.Attributes.GetString(types.AttrCreatedAt)
	if raw == "" {
		raw = n.Attributes.GetString(types.AttrTimestamp)
	}
	ts, err := types.ParseTimestamp(raw)
	if err != nil {
		return types.TimeSeriesDataPoint{}, false
	}

	p := types.TimeSeriesDataPoint{
		Timestamp:  ts,
		MetricName: n.Attributes.GetString(types.AttrMetricName),
		DataType:   n.Attributes.GetString(types.AttrDataType),
		Source:     n.Attributes.GetString(types.AttrCreatedBy),
		Scope:      n.Scope,
		NodeID:     n.ID,
		LogLevel:   n.Attributes.GetString(types.AttrLogLevel),
		LogMessage: n.Attributes.GetString(types.AttrLogMessage),
	}
	if p.DataType == "" {
		p.DataType = types.DataTypeMetric
		if p.LogMessage != "" {
			p.DataType = types.DataTypeLogEntry
		}
	}
	if v, ok := n.Attributes[types.AttrValue].AsNumber(); ok {
		p.Value = v
	}

	tagsKey := types.AttrMetricTags
	if p.DataType == types.DataTypeLogEntry {
		tagsKey = types.AttrLogTags
	}
	if m, ok := n.Attributes[tagsKey].AsMap(); ok && len(m) > 0 {
		p.Tags = make(map[string]string, len(m))
		for k, v := range m {
			p.Tags[k] = v.Text()
		}
	}
	return p, true
}

// pointFilter applies the optional name, tag and data type filters.
type pointFilter struct {
	names     map[string]bool
	dataTypes map[string]bool
	tags      map[string]string
}

func newPointFilter(q types.TimeSeriesQuery) pointFilter {
	f := pointFilter{tags: q.Tags}
	if len(q.MetricNames) > 0 {
		f.names = toSet(q.MetricNames)
	}
	if len(q.DataTypes) > 0 {
		f.dataTypes = toSet(q.DataTypes)
	}
	return f
}

func (f pointFilter) keep(p types.TimeSeriesDataPoint) bool {
	if f.names != nil && !f.names[p.MetricName] {
		return false
	}
	if f.dataTypes != nil && !f.dataTypes[p.DataType] {
		return false
	}
	for k, v := range f.tags {
		if p.Tags[k] != v {
			return false
		}
	}
	return true
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// MemorizeMetric stores one metric observation as a tsdb_data node with id
// metric_<name>_<epoch-micros>. No correlation record is written.
func (s *Service) MemorizeMetric(ctx context.Context, name string, value float64, tags map[string]string, scope types.GraphScope) types.MemoryOpResult {
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return s.invalid("memorize_metric", "", "metric name must be non-empty and contain no whitespace")
	}
	if !s.allowIngest("memorize_metric") {
		return types.MemoryOpResult{Status: types.StatusDenied, Reason: "ingestion rate limit exceeded"}
	}

	now := s.clock.Now()
	node := &types.GraphNode{
		ID:    fmt.Sprintf("metric_%s_%d", name, now.UnixMicro()),
		Type:  types.NodeTypeTSDBData,
		Scope: scopeOrDefault(scope),
		Attributes: types.Attributes{
			types.AttrMetricName: types.String(name),
			types.AttrValue:      types.Number(value),
			types.AttrMetricTags: tagMap(tags),
			types.AttrDataType:   types.String(types.DataTypeMetric),
			types.AttrCreatedAt:  types.Time(now),
			types.AttrCreatedBy:  types.String(s.actor),
		},
	}

	_, result := s.memorize(ctx, "memorize_metric", node)
	return result
}

// MemorizeLog stores one log observation as a tsdb_data node with id
// log_<epoch-seconds>, then records a log_entry correlation. Two logs in
// the same second and scope merge into one node.
//
// If the node is stored but the correlation write fails the result is
// StatusPartial with the node id set. Retrying such a call merges into the
// stored node again and increments its version.
func (s *Service) MemorizeLog(ctx context.Context, message, level string, tags map[string]string, scope types.GraphScope) types.MemoryOpResult {
	if message == "" {
		return s.invalid("memorize_log", "", "log message is required")
	}
	if !s.allowIngest("memorize_log") {
		return types.MemoryOpResult{Status: types.StatusDenied, Reason: "ingestion rate limit exceeded"}
	}
	if level == "" {
		level = "info"
	}

	now := s.clock.Now()
	scope = scopeOrDefault(scope)
	node := &types.GraphNode{
		ID:    fmt.Sprintf("log_%d", now.Unix()),
		Type:  types.NodeTypeTSDBData,
		Scope: scope,
		Attributes: types.Attributes{
			types.AttrLogMessage: types.String(message),
			types.AttrLogLevel:   types.String(level),
			types.AttrLogTags:    tagMap(tags),
			types.AttrDataType:   types.String(types.DataTypeLogEntry),
			types.AttrCreatedAt:  types.Time(now),
			types.AttrCreatedBy:  types.String(s.actor),
		},
	}

	stored, result := s.memorize(ctx, "memorize_log", node)
	if !result.OK() {
		return result
	}

	// The correlation carries the message as stored, after redaction.
	correlation := &types.ServiceCorrelation{
		CorrelationID:   uuid.NewString(),
		CorrelationType: types.DataTypeLogEntry,
		ServiceType:     "memory",
		HandlerName:     "memorize_log",
		ActionType:      "log",
		RequestData: types.Attributes{
			"message": stored[types.AttrLogMessage],
			"level":   types.String(level),
			"node_id": types.String(result.ID),
			"scope":   types.String(string(scope)),
		},
		ResponseData: types.Attributes{"status": types.String(string(result.Status))},
		Status:       string(result.Status),
		Tags:         tags,
		Timestamp:    now,
	}
	if err := s.store.AddCorrelation(ctx, correlation); err != nil {
		s.logger.Error().Err(err).Str("op", "memorize_log").Str("node_id", result.ID).
			Msg("memory: log stored but correlation write failed")
		return types.MemoryOpResult{
			Status: types.StatusPartial,
			Reason: fmt.Sprintf("node stored; correlation: %v", err),
			ID:     result.ID,
		}
	}
	return result
}

// allowIngest applies the optional time-series rate limit.
func (s *Service) allowIngest(op string) bool {
	if s.limiter == nil || s.limiter.Allow() {
		return true
	}
	s.metrics.RateLimited(op)
	s.logger.Warn().Str("op", op).Msg("memory: ingestion rate limit exceeded")
	return false
}

func tagMap(tags map[string]string) types.Value {
	m := make(map[string]types.Value, len(tags))
	for k, v := range tags {
		m[k] = types.String(v)
	}
	return types.Map(m)
}
