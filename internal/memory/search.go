package memory

import (
	"context"
	"strings"
	"time"

	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/pkg/types"
)

// searchQuery is a tokenised search string.
type searchQuery struct {
	scope types.GraphScope
	typ   types.NodeType
	terms []string
}

// parseSearch splits text on whitespace. "type:<T>" and "scope:<S>" tokens
// override the filter; every other token becomes a lower-cased term.
func parseSearch(text string, filter types.SearchFilter) searchQuery {
	q := searchQuery{scope: filter.Scope, typ: filter.Type}
	for _, tok := range strings.Fields(text) {
		lower := strings.ToLower(tok)
		switch {
		case strings.HasPrefix(lower, "type:") && len(tok) > len("type:"):
			q.typ = types.NodeType(tok[len("type:"):])
		case strings.HasPrefix(lower, "scope:") && len(tok) > len("scope:"):
			q.scope = types.GraphScope(tok[len("scope:"):])
		default:
			q.terms = append(q.terms, lower)
		}
	}
	return q
}

// matches reports whether any term is a substring of the node id or of its
// serialised attributes. A query without terms matches every node.
func (q searchQuery) matches(n *types.GraphNode) bool {
	if len(q.terms) == 0 {
		return true
	}
	id := strings.ToLower(n.ID)
	var attrs string
	for _, term := range q.terms {
		if strings.Contains(id, term) {
			return true
		}
		if attrs == "" {
			text, err := n.Attributes.Canonical()
			if err != nil {
				return false
			}
			attrs = strings.ToLower(text)
		}
		if strings.Contains(attrs, term) {
			return true
		}
	}
	return false
}

// Search scans every node matching the scope and type filters and returns
// those whose id or serialised attributes contain any query term, case
// insensitively. Matching runs against the stored (redacted) form, so
// secret values are never searchable. An empty filter scope searches all
// scopes. Results are ordered by most recent update and capped at
// filter.Limit (default 100).
func (s *Service) Search(ctx context.Context, text string, filter types.SearchFilter) (nodes []*types.GraphNode, err error) {
	start := time.Now()
	defer s.observe("search", start, &err)

	q := parseSearch(text, filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = s.recallLimit
	}

	opts := storage.ListOptions{Scope: q.scope, Type: q.typ, Limit: storage.MaxListLimit}
	for len(nodes) < limit {
		page, err := s.store.ListNodes(ctx, opts)
		if err != nil {
			return nil, s.readFailure("search", "", q.scope, err)
		}
		if len(page) == 0 {
			break
		}

		for _, n := range page {
			if !q.matches(n) {
				continue
			}
			if err := s.reveal(ctx, n, filter.ActionType); err != nil {
				return nil, s.readFailure("search", n.ID, n.Scope, err)
			}
			nodes = append(nodes, n)
			if len(nodes) == limit {
				break
			}
		}

		opts.Offset += opts.Limit
	}

	return nodes, nil
}
