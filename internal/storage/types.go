package storage

import (
	"errors"
	"time"

	"github.com/scrypster/memgraph/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPersistence indicates an I/O or SQL failure in the backend.
	ErrPersistence = errors.New("persistence failure")
)

// DefaultListLimit caps wildcard scans when no limit is given.
const DefaultListLimit = 100

// MaxListLimit is the hard ceiling for a single page.
const MaxListLimit = 1000

// ListOptions filters and pages a node scan.
type ListOptions struct {
	// Scope filters by scope. Empty string means all scopes.
	Scope types.GraphScope

	// Type filters by node type. Empty string means all types.
	Type types.NodeType

	// Limit is the page size (default: 100, max: 1000).
	Limit int

	// Offset is the number of rows to skip.
	Offset int
}

// Normalize applies defaults and clamps the ListOptions.
func (o *ListOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = DefaultListLimit
	}

	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}

	if o.Offset < 0 {
		o.Offset = 0
	}
}

// TimeRange is an inclusive creation-time window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the range is non-empty.
func (r TimeRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.End.Before(r.Start)
}
