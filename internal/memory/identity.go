package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/pkg/types"
)

// ExportIdentityContext renders every identity-scope node as one
// "<id>: <canonical attributes>" line, sorted by id. Secret references stay
// redacted. The identity-drift monitor diffs successive exports.
func (s *Service) ExportIdentityContext(ctx context.Context) (out string, err error) {
	start := time.Now()
	defer s.observe("export_identity", start, &err)

	var nodes []*types.GraphNode
	opts := storage.ListOptions{Scope: types.ScopeIdentity, Limit: storage.MaxListLimit}
	for {
		page, err := s.store.ListNodes(ctx, opts)
		if err != nil {
			return "", s.readFailure("export_identity", "", types.ScopeIdentity, err)
		}
		if len(page) == 0 {
			break
		}
		nodes = append(nodes, page...)
		opts.Offset += opts.Limit
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	var b strings.Builder
	for _, n := range nodes {
		text, err := n.Attributes.Canonical()
		if err != nil {
			s.logger.Warn().Err(err).Str("node_id", n.ID).Msg("memory: skipping unserialisable identity node")
			continue
		}
		b.WriteString(n.ID)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// ListCorrelations returns the newest correlation records of the given
// type, or of every type when correlationType is empty.
func (s *Service) ListCorrelations(ctx context.Context, correlationType string, limit int) (records []*types.ServiceCorrelation, err error) {
	start := time.Now()
	defer s.observe("list_correlations", start, &err)

	if limit <= 0 {
		limit = s.recallLimit
	}
	records, err = s.store.ListCorrelations(ctx, correlationType, limit)
	if err != nil {
		return nil, s.readFailure("list_correlations", "", "", err)
	}
	return records, nil
}
