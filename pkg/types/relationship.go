package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GraphEdge is a directed, weighted, labelled relationship between two nodes.
// Its identity is derived from (Source, Target, Relationship), so writing
// the same triple twice replaces the first edge instead of adding another.
type GraphEdge struct {
	ID           string     `json:"id"`           // Deterministic, see EdgeID
	Source       string     `json:"source"`       // Source node ID
	Target       string     `json:"target"`       // Target node ID
	Relationship string     `json:"relationship"` // Label (e.g. "participates_in")
	Scope        GraphScope `json:"scope"`
	Weight       float64    `json:"weight"`
	Attributes   Attributes `json:"attributes,omitempty"` // created_at and free-form context
}

// Relationship labels used by the built-in components.
const (
	RelParticipatesIn = "participates_in"
	RelRelatesTo      = "relates_to"
	RelObservedBy     = "observed_by"
	RelDerivedFrom    = "derived_from"
)

// EdgeID returns the deterministic edge id for a triple. The components are
// hashed so ids containing separators cannot collide.
func EdgeID(source, target, relationship string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + target + "\x00" + relationship))
	return "edge_" + hex.EncodeToString(sum[:16])
}

// NewGraphEdge builds an edge with its deterministic id set.
func NewGraphEdge(source, target, relationship string, scope GraphScope, weight float64) *GraphEdge {
	return &GraphEdge{
		ID:           EdgeID(source, target, relationship),
		Source:       source,
		Target:       target,
		Relationship: relationship,
		Scope:        scope,
		Weight:       weight,
		Attributes:   Attributes{},
	}
}

// Validate checks the fields required to persist an edge and fills in the id.
func (e *GraphEdge) Validate() error {
	if e == nil {
		return fmt.Errorf("edge is nil")
	}
	if e.Source == "" || e.Target == "" {
		return fmt.Errorf("edge source and target are required")
	}
	if e.Relationship == "" {
		return fmt.Errorf("edge relationship is required")
	}
	if e.Scope == "" {
		return fmt.Errorf("edge scope is required")
	}
	e.ID = EdgeID(e.Source, e.Target, e.Relationship)
	return nil
}

// Other returns the endpoint opposite to nodeID.
func (e *GraphEdge) Other(nodeID string) string {
	if e.Source == nodeID {
		return e.Target
	}
	return e.Source
}

// AsValue flattens the edge into an attribute value for the _edges annotation.
func (e *GraphEdge) AsValue() Value {
	m := map[string]Value{
		"id":           String(e.ID),
		"source":       String(e.Source),
		"target":       String(e.Target),
		"relationship": String(e.Relationship),
		"scope":        String(string(e.Scope)),
		"weight":       Number(e.Weight),
	}
	if len(e.Attributes) > 0 {
		m["attributes"] = Map(map[string]Value(e.Attributes.Clone()))
	}
	return Map(m)
}
