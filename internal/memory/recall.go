package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/memgraph/internal/secrets"
	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/pkg/types"
)

// Recall retrieves nodes in one of two modes.
//
// With q.NodeID set to types.WildcardID it returns a scope and type
// filtered page (q.Limit, default 100), optionally annotated with each
// node's immediate edges under "_edges". Wildcard results are never expanded.
//
// Otherwise it fetches the node (q.NodeID, q.Scope). With IncludeEdges and
// Depth > 0 the node's immediate edges are attached. With Depth > 1 the
// graph is expanded breadth-first up to Depth-1 hops and every reached
// neighbour is appended, with its own immediate edges attached. The start
// node is always first.
//
// Secret references are decapsulated only when q.ActionType is allowed by
// the secrets service. A missing node yields an empty result.
func (s *Service) Recall(ctx context.Context, q types.MemoryQuery) (nodes []*types.GraphNode, err error) {
	start := time.Now()
	defer s.observe("recall", start, &err)

	q.Scope = scopeOrDefault(q.Scope)
	if q.NodeID == "" {
		return nil, s.readFailure("recall", "", q.Scope, fmt.Errorf("%w: node id is required", ErrInvalidQuery))
	}

	if q.NodeID == types.WildcardID {
		nodes, err = s.recallWildcard(ctx, q)
	} else {
		nodes, err = s.recallNode(ctx, q)
	}
	if err != nil {
		return nil, s.readFailure("recall", q.NodeID, q.Scope, err)
	}
	return nodes, nil
}

func (s *Service) recallWildcard(ctx context.Context, q types.MemoryQuery) ([]*types.GraphNode, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = s.recallLimit
	}

	nodes, err := s.store.ListNodes(ctx, storage.ListOptions{Scope: q.Scope, Type: q.Type, Limit: limit})
	if err != nil {
		return nil, err
	}

	for _, n := range nodes {
		if err := s.reveal(ctx, n, q.ActionType); err != nil {
			return nil, err
		}
		if q.IncludeEdges {
			edges, err := s.store.EdgesForNode(ctx, n.ID, n.Scope)
			if err != nil {
				return nil, err
			}
			attachEdges(n, edges)
		}
	}
	return nodes, nil
}

func (s *Service) recallNode(ctx context.Context, q types.MemoryQuery) ([]*types.GraphNode, error) {
	root, err := s.store.GetNode(ctx, q.NodeID, q.Scope)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.reveal(ctx, root, q.ActionType); err != nil {
		return nil, err
	}

	result := []*types.GraphNode{root}
	if q.Depth <= 0 || (!q.IncludeEdges && q.Depth <= 1) {
		return result, nil
	}

	t := &traversal{s: s, ctx: ctx, scope: q.Scope, edges: make(map[string][]*types.GraphEdge)}
	rootEdges, err := t.edgesOf(root.ID)
	if err != nil {
		return nil, err
	}
	if q.IncludeEdges {
		attachEdges(root, rootEdges)
	}
	if q.Depth <= 1 {
		return result, nil
	}

	neighbours, err := t.expand(root, q.Depth, q.ActionType)
	if err != nil {
		return nil, err
	}
	return append(result, neighbours...), nil
}

// traversal holds per-recall state so each node's edges are fetched once.
type traversal struct {
	s     *Service
	ctx   context.Context
	scope types.GraphScope
	edges map[string][]*types.GraphEdge
}

func (t *traversal) edgesOf(id string) ([]*types.GraphEdge, error) {
	if edges, ok := t.edges[id]; ok {
		return edges, nil
	}
	edges, err := t.s.store.EdgesForNode(t.ctx, id, t.scope)
	if err != nil {
		return nil, err
	}
	t.edges[id] = edges
	return edges, nil
}

// expand runs a breadth-first search from root. A node at distance d is
// expanded while d < depth-1. The visited set is keyed by (id, scope) so
// cycles terminate; edges pointing at deleted nodes are skipped.
func (t *traversal) expand(root *types.GraphNode, depth int, actionType string) ([]*types.GraphNode, error) {
	type queueItem struct {
		node  *types.GraphNode
		depth int
	}

	visited := map[string]bool{root.Key(): true}
	queue := []queueItem{{root, 0}}
	var reached []*types.GraphNode

	for len(queue) > 0 {
		if err := t.ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]
		if current.depth >= depth-1 {
			continue
		}

		edges, err := t.edgesOf(current.node.ID)
		if err != nil {
			return nil, err
		}

		for _, edge := range edges {
			neighbourID := edge.Other(current.node.ID)
			key := types.NodeKey(neighbourID, t.scope)
			if visited[key] {
				continue
			}
			visited[key] = true

			if len(reached) >= t.s.maxTraversalNodes {
				t.s.logger.Warn().Str("node_id", root.ID).Int("limit", t.s.maxTraversalNodes).
					Msg("memory: traversal truncated at node limit")
				t.s.metrics.ObserveTraversal(len(reached))
				return reached, nil
			}

			neighbour, err := t.s.store.GetNode(t.ctx, neighbourID, t.scope)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if err := t.s.reveal(t.ctx, neighbour, actionType); err != nil {
				return nil, err
			}

			neighbourEdges, err := t.edgesOf(neighbour.ID)
			if err != nil {
				return nil, err
			}
			attachEdges(neighbour, neighbourEdges)

			reached = append(reached, neighbour)
			queue = append(queue, queueItem{neighbour, current.depth + 1})
		}
	}

	t.s.metrics.ObserveTraversal(len(reached))
	return reached, nil
}

// GetEdges returns every edge in scope where the node is either endpoint,
// including edges whose other endpoint has been forgotten.
func (s *Service) GetEdges(ctx context.Context, id string, scope types.GraphScope) (edges []*types.GraphEdge, err error) {
	start := time.Now()
	defer s.observe("get_edges", start, &err)

	scope = scopeOrDefault(scope)
	if id == "" {
		return nil, s.readFailure("get_edges", id, scope, fmt.Errorf("%w: node id is required", ErrInvalidQuery))
	}

	edges, err = s.store.EdgesForNode(ctx, id, scope)
	if err != nil {
		return nil, s.readFailure("get_edges", id, scope, err)
	}
	return edges, nil
}

// reveal decapsulates the node's secret references in place when the
// caller's action type is allowed. Failures leave the redacted form and
// are only reported in strict-read mode.
func (s *Service) reveal(ctx context.Context, n *types.GraphNode, actionType string) error {
	if len(n.SecretRefs()) == 0 || !secrets.IsAllowed(s.secrets, actionType) {
		return nil
	}

	attrs, err := s.secrets.Decapsulate(ctx, actionType, n.Attributes, n.ID)
	if err != nil {
		if s.strictReads {
			return err
		}
		s.logger.Error().Err(err).Str("op", "decapsulate").Str("node_id", n.ID).Str("scope", string(n.Scope)).
			Msg("memory: decapsulation failed, returning redacted node")
		return nil
	}
	n.Attributes = attrs
	return nil
}

// attachEdges flattens edges into the node's _edges attribute.
func attachEdges(n *types.GraphNode, edges []*types.GraphEdge) {
	values := make([]types.Value, len(edges))
	for i, e := range edges {
		values[i] = e.AsValue()
	}
	if n.Attributes == nil {
		n.Attributes = types.Attributes{}
	}
	n.Attributes[types.EdgesKey] = types.List(values...)
}
