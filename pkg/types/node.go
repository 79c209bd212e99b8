package types

import (
	"fmt"
	"time"
)

// GraphNode is a versioned, typed, attribute-bearing vertex keyed by (ID, Scope).
type GraphNode struct {
	// Core identification fields
	ID    string     `json:"id"`    // Unique within Scope
	Type  NodeType   `json:"type"`  // Fixed at creation; later writes never change it
	Scope GraphScope `json:"scope"` // Namespace partition

	// Payload
	Attributes Attributes `json:"attributes"` // Open attribute bag, merged key-wise on write

	// Versioning and provenance
	Version   int       `json:"version"`              // 1 on creation, +1 per merge-write
	UpdatedBy string    `json:"updated_by,omitempty"` // Writer of the latest version
	UpdatedAt time.Time `json:"updated_at"`           // Time of the latest version
}

// Key returns the (id, scope) identity of the node as a single string.
func (n *GraphNode) Key() string {
	return NodeKey(n.ID, n.Scope)
}

// NodeKey formats an (id, scope) pair for use as a map key.
func NodeKey(id string, scope GraphScope) string {
	return string(scope) + "\x00" + id
}

// Validate checks the fields required to persist a node.
func (n *GraphNode) Validate() error {
	if n == nil {
		return fmt.Errorf("node is nil")
	}
	if n.ID == "" {
		return fmt.Errorf("node ID is required")
	}
	if n.ID == WildcardID {
		return fmt.Errorf("node ID %q is reserved", WildcardID)
	}
	if n.Scope == "" {
		return fmt.Errorf("node scope is required")
	}
	return nil
}

// Clone returns a deep copy of n.
func (n *GraphNode) Clone() *GraphNode {
	if n == nil {
		return nil
	}
	c := *n
	c.Attributes = n.Attributes.Clone()
	return &c
}

// SecretRefs returns the secret reference ids recorded on the node.
func (n *GraphNode) SecretRefs() []string {
	v, ok := n.Attributes[SecretRefsKey]
	if !ok {
		return nil
	}
	items, ok := v.AsList()
	if !ok {
		return nil
	}
	refs := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.AsString(); ok && s != "" {
			refs = append(refs, s)
		}
	}
	return refs
}
