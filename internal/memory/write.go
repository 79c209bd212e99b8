package memory

import (
	"context"
	"errors"
	"time"

	"github.com/scrypster/memgraph/internal/secrets"
	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/pkg/types"
)

// Memorize creates the node or merges it into the stored one after passing
// its attributes through the secrets pipeline. An empty scope means local.
// The node's Type is required on creation and ignored afterwards.
func (s *Service) Memorize(ctx context.Context, node *types.GraphNode) types.MemoryOpResult {
	_, result := s.memorize(ctx, "memorize", node)
	return result
}

// memorize is Memorize that also returns the attributes as persisted.
func (s *Service) memorize(ctx context.Context, op string, node *types.GraphNode) (attrs types.Attributes, result types.MemoryOpResult) {
	start := time.Now()
	defer s.observeResult(op, start, &result)

	if node == nil {
		return nil, s.invalid(op, "", "node is nil")
	}
	n := node.Clone()
	n.Scope = scopeOrDefault(n.Scope)
	if err := n.Validate(); err != nil {
		return nil, s.invalid(op, n.ID, err.Error())
	}
	if err := validateScope(n.Scope); err != nil {
		return nil, s.invalid(op, n.ID, err.Error())
	}
	if n.Type != "" && !types.IsValidNodeType(n.Type) {
		return nil, s.invalid(op, n.ID, "unknown node type "+string(n.Type))
	}
	if n.UpdatedBy == "" {
		n.UpdatedBy = s.actor
	}

	if s.strictMerge {
		unlock := s.locks.Lock(n.Key())
		defer unlock()
	}

	attrs, err := s.redact(ctx, n)
	if err != nil {
		return nil, s.failed(op, n.ID, err)
	}
	n.Attributes = attrs

	id, err := s.store.PutNode(ctx, n, s.clock.Now())
	if err != nil {
		return nil, s.failed(op, n.ID, err)
	}

	s.logger.Debug().Str("op", op).Str("node_id", id).Str("scope", string(n.Scope)).Msg("memory: stored node")
	return attrs, types.MemoryOpResult{Status: types.StatusOK, ID: id}
}

// redact passes every string and number in the node's attributes through
// the secrets collaborator and records any new references under
// _secret_refs. Values are redacted in place, so the attribute structure
// never has to be re-parsed.
func (s *Service) redact(ctx context.Context, n *types.GraphNode) (types.Attributes, error) {
	var refs []secrets.Reference
	attrs := make(types.Attributes, len(n.Attributes))
	for _, k := range n.Attributes.Keys() {
		v := n.Attributes[k]
		if k == types.SecretRefsKey {
			attrs[k] = v
			continue
		}
		rv, err := s.redactValue(ctx, k, v, n.ID, &refs)
		if err != nil {
			return nil, err
		}
		attrs[k] = rv
	}
	if len(refs) == 0 {
		return attrs, nil
	}

	// A list attribute replaces the stored one on merge, so carry the
	// references already recorded on the node forward.
	var ids []string
	if prev, err := s.store.GetNode(ctx, n.ID, n.Scope); err == nil {
		ids = append(ids, prev.SecretRefs()...)
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn().Err(err).Str("node_id", n.ID).Msg("memory: could not load existing secret refs")
	}
	ids = append(ids, (&types.GraphNode{Attributes: attrs}).SecretRefs()...)
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}

	attrs[types.SecretRefsKey] = stringList(dedupe(ids))
	s.metrics.AddSecretRefs(len(refs))
	return attrs, nil
}

// redactValue walks v. List items are redacted under their list's key.
// A number that turns out to be a secret is stored as its placeholder text.
func (s *Service) redactValue(ctx context.Context, key string, v types.Value, contextID string, refs *[]secrets.Reference) (types.Value, error) {
	switch v.Kind() {
	case types.KindString, types.KindNumber:
		text := v.Text()
		out, found, err := s.redactField(ctx, key, text, contextID)
		if err != nil {
			return types.Null(), err
		}
		if len(found) == 0 || out == text {
			return v, nil
		}
		*refs = append(*refs, found...)
		return types.String(out), nil
	case types.KindList:
		items, _ := v.AsList()
		out := make([]types.Value, len(items))
		for i, item := range items {
			rv, err := s.redactValue(ctx, key, item, contextID, refs)
			if err != nil {
				return types.Null(), err
			}
			out[i] = rv
		}
		return types.List(out...), nil
	case types.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]types.Value, len(m))
		for _, k := range types.Attributes(m).Keys() {
			rv, err := s.redactValue(ctx, k, m[k], contextID, refs)
			if err != nil {
				return types.Null(), err
			}
			out[k] = rv
		}
		return types.Map(out), nil
	}
	return v, nil
}

func (s *Service) redactField(ctx context.Context, key, value, contextID string) (string, []secrets.Reference, error) {
	if fr, ok := s.secrets.(secrets.FieldRedactor); ok {
		return fr.RedactField(ctx, key, value, contextID)
	}
	return s.secrets.DetectAndRedact(ctx, value, contextID)
}

// Forget hard-deletes the node. Secret references carried by the node are
// logged, not revoked. With referential integrity the node's edges are
// removed as well.
func (s *Service) Forget(ctx context.Context, id string, scope types.GraphScope) (result types.MemoryOpResult) {
	start := time.Now()
	defer s.observeResult("forget", start, &result)

	scope = scopeOrDefault(scope)
	if id == "" || id == types.WildcardID {
		return s.invalid("forget", id, "a concrete node id is required")
	}

	existing, err := s.store.GetNode(ctx, id, scope)
	switch {
	case err == nil:
		if refs := existing.SecretRefs(); len(refs) > 0 {
			s.logger.Info().Str("node_id", id).Str("scope", string(scope)).Int("secret_refs", len(refs)).
				Msg("memory: forgetting node that carries secret references")
		}
	case !errors.Is(err, storage.ErrNotFound):
		s.logger.Warn().Err(err).Str("node_id", id).Msg("memory: could not inspect node before forget")
	}

	n, err := s.store.DeleteNode(ctx, id, scope)
	if err != nil {
		return s.failed("forget", id, err)
	}

	if s.referentialIntegrity {
		removed, err := s.store.DeleteEdgesForNode(ctx, id, scope)
		if err != nil {
			return s.failed("forget", id, err)
		}
		s.logger.Debug().Str("node_id", id).Int("edges", removed).Msg("memory: removed edges of forgotten node")
	}

	return types.MemoryOpResult{Status: types.StatusOK, ID: id, Affected: n}
}

// CreateEdge upserts a directed edge. Writing the same (source, target,
// relationship) again replaces the edge. A created_at attribute is added
// when missing.
func (s *Service) CreateEdge(ctx context.Context, edge *types.GraphEdge) (result types.MemoryOpResult) {
	start := time.Now()
	defer s.observeResult("create_edge", start, &result)

	if edge == nil {
		return s.invalid("create_edge", "", "edge is nil")
	}
	e := *edge
	e.Attributes = edge.Attributes.Clone()
	if e.Attributes == nil {
		e.Attributes = types.Attributes{}
	}
	e.Scope = scopeOrDefault(e.Scope)
	if err := e.Validate(); err != nil {
		return s.invalid("create_edge", e.ID, err.Error())
	}
	if err := validateScope(e.Scope); err != nil {
		return s.invalid("create_edge", e.ID, err.Error())
	}
	if _, ok := e.Attributes[types.AttrCreatedAt]; !ok {
		e.Attributes[types.AttrCreatedAt] = types.Time(s.clock.Now())
	}

	if s.referentialIntegrity {
		for _, endpoint := range []string{e.Source, e.Target} {
			if _, err := s.store.GetNode(ctx, endpoint, e.Scope); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return s.invalid("create_edge", e.ID, "endpoint "+endpoint+" does not exist")
				}
				return s.failed("create_edge", e.ID, err)
			}
		}
	}

	id, err := s.store.PutEdge(ctx, &e)
	if err != nil {
		return s.failed("create_edge", e.ID, err)
	}

	return types.MemoryOpResult{Status: types.StatusOK, ID: id}
}

// DeleteEdge removes one edge by id.
func (s *Service) DeleteEdge(ctx context.Context, edgeID string) (result types.MemoryOpResult) {
	start := time.Now()
	defer s.observeResult("delete_edge", start, &result)

	if edgeID == "" {
		return s.invalid("delete_edge", "", "edge id is required")
	}

	n, err := s.store.DeleteEdge(ctx, edgeID)
	if err != nil {
		return s.failed("delete_edge", edgeID, err)
	}

	return types.MemoryOpResult{Status: types.StatusOK, ID: edgeID, Affected: n}
}

func stringList(items []string) types.Value {
	values := make([]types.Value, len(items))
	for i, item := range items {
		values[i] = types.String(item)
	}
	return types.List(values...)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
