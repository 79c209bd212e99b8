// Package types defines the core data structures of the graph memory store.
// Nodes, edges, attribute values and the time-series read model live here so
// that storage backends and the memory service share one vocabulary.
package types

// GraphScope partitions the graph into namespaces. Identity data is kept
// apart from ephemeral local observations.
type GraphScope string

// NodeType classifies a node. It is fixed when the node is first created.
type NodeType string

// Scope constants
const (
	ScopeLocal       GraphScope = "local"
	ScopeIdentity    GraphScope = "identity"
	ScopeEnvironment GraphScope = "environment"
	ScopeCommunity   GraphScope = "community"
)

// ValidScopes is a slice of all valid scopes for validation
var ValidScopes = []GraphScope{
	ScopeLocal,
	ScopeIdentity,
	ScopeEnvironment,
	ScopeCommunity,
}

// Node type constants
const (
	// Agent and self-model types
	NodeTypeAgent      NodeType = "agent"
	NodeTypeIdentity   NodeType = "identity"
	NodeTypeBehavioral NodeType = "behavioral"
	NodeTypeConfig     NodeType = "config"

	// Knowledge types
	NodeTypeConcept     NodeType = "concept"
	NodeTypeObservation NodeType = "observation"

	// Social types
	NodeTypeSocial  NodeType = "social"
	NodeTypeUser    NodeType = "user"
	NodeTypeChannel NodeType = "channel"

	// Telemetry
	NodeTypeTSDBData NodeType = "tsdb_data"
)

// ValidNodeTypes is a slice of all built-in node types.
var ValidNodeTypes = []NodeType{
	NodeTypeAgent,
	NodeTypeIdentity,
	NodeTypeBehavioral,
	NodeTypeConfig,
	NodeTypeConcept,
	NodeTypeObservation,
	NodeTypeSocial,
	NodeTypeUser,
	NodeTypeChannel,
	NodeTypeTSDBData,
}

// WildcardID selects a filtered page of nodes instead of a single node.
const WildcardID = "*"

// SecretRefsKey is the reserved attribute holding secret reference ids.
const SecretRefsKey = "_secret_refs"

// EdgesKey is the attribute under which recall attaches a node's edges.
const EdgesKey = "_edges"

// IsValidScope checks if the given scope is one of the known scopes.
func IsValidScope(scope GraphScope) bool {
	for _, s := range ValidScopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IsValidNodeType checks if the given node type is a built-in type.
func IsValidNodeType(nodeType NodeType) bool {
	for _, t := range ValidNodeTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}
