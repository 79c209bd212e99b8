package types

import "time"

// MemoryOpStatus is the outcome of a write-path memory operation.
type MemoryOpStatus string

const (
	StatusOK      MemoryOpStatus = "ok"
	StatusInvalid MemoryOpStatus = "invalid" // Malformed node, edge or query
	StatusDenied  MemoryOpStatus = "denied"  // Refused by the secrets guard or ingestion limiter
	StatusError   MemoryOpStatus = "error"   // Persistence or secrets pipeline failure
	StatusPartial MemoryOpStatus = "partial" // Primary write stored, a secondary record failed
)

// MemoryOpResult is returned by write-path operations. Callers must check
// Status; failures are not reported as Go errors.
type MemoryOpResult struct {
	Status   MemoryOpStatus `json:"status"`
	Reason   string         `json:"reason,omitempty"`
	ID       string         `json:"id,omitempty"`       // Node or edge id affected
	Affected int            `json:"affected,omitempty"` // Rows removed by forget/delete
}

// OK reports whether the operation succeeded.
func (r MemoryOpResult) OK() bool { return r.Status == StatusOK }

// MemoryQuery selects nodes for recall.
type MemoryQuery struct {
	NodeID       string     // Node id, or WildcardID for a filtered scan
	Scope        GraphScope // Defaults to local
	Type         NodeType   // Optional type filter (wildcard mode)
	IncludeEdges bool       // Attach immediate edges under _edges
	Depth        int        // >1 expands breadth-first to Depth-1 hops
	Limit        int        // Wildcard page size, default 100
	ActionType   string     // Caller action used to authorise secret decapsulation
}

// SearchFilter narrows a text search. Query tokens of the form type:<T> or
// scope:<S> override these fields.
type SearchFilter struct {
	Scope      GraphScope
	Type       NodeType
	Limit      int
	ActionType string
}

// TimeSeriesQuery selects a window of tsdb_data points. Explicit Start/End
// win over Hours; End defaults to now.
type TimeSeriesQuery struct {
	Scope       GraphScope
	Hours       int
	Start       time.Time
	End         time.Time
	MetricNames []string          // Optional exact-name filter
	Tags        map[string]string // Optional exact tag filter
	DataTypes   []string          // Optional "metric" / "log_entry" filter
}
