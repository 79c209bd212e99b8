package secrets

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scrypster/memgraph/internal/clock"
	"github.com/scrypster/memgraph/pkg/types"
)

// Ensure *Manager implements Service and FieldRedactor at compile time.
var (
	_ Service       = (*Manager)(nil)
	_ FieldRedactor = (*Manager)(nil)
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// AllowedActions may see decapsulated values. Default: speak, tool.
	AllowedActions []string

	// VaultKey is the 32-byte vault key. Nil generates an ephemeral key.
	VaultKey []byte

	// Clock stamps new references. Default: system clock.
	Clock clock.TimeService

	// Logger receives pipeline events. Default: the global zerolog logger.
	Logger *zerolog.Logger
}

// Manager is the in-process Service: a Detector in front of a Vault.
type Manager struct {
	detector *Detector
	vault    *Vault
	allowed  []string
	clock    clock.TimeService
	logger   zerolog.Logger
}

// NewManager creates a Manager with the default detector patterns.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	vault, err := NewVault(cfg.VaultKey)
	if err != nil {
		return nil, err
	}

	allowed := cfg.AllowedActions
	if len(allowed) == 0 {
		allowed = DefaultAllowedActions
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Manager{
		detector: NewDetector(),
		vault:    vault,
		allowed:  append([]string(nil), allowed...),
		clock:    clk,
		logger:   logger,
	}, nil
}

// Detector returns the manager's detector so callers can add patterns.
func (m *Manager) Detector() *Detector { return m.detector }

// Vault returns the manager's vault.
func (m *Manager) Vault() *Vault { return m.vault }

// DetectAndRedact implements Service.
func (m *Manager) DetectAndRedact(ctx context.Context, text, contextID string) (string, []Reference, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	return m.seal(text, m.detector.Find(text), contextID)
}

// RedactField implements FieldRedactor.
func (m *Manager) RedactField(ctx context.Context, key, value, contextID string) (string, []Reference, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	return m.seal(value, m.detector.FindField(key, value), contextID)
}

// seal vaults every matched span of text and replaces it with a placeholder.
func (m *Manager) seal(text string, matches []Match, contextID string) (string, []Reference, error) {
	if len(matches) == 0 {
		return text, nil, nil
	}

	refs := make([]Reference, 0, len(matches))
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, match := range matches {
		ref := Reference{
			ID:          uuid.NewString(),
			Description: match.Kind,
			ContextID:   contextID,
			CreatedAt:   m.clock.Now(),
		}
		if err := m.vault.Put(ref, text[match.Start:match.End]); err != nil {
			return "", nil, err
		}
		refs = append(refs, ref)

		b.WriteString(text[last:match.Start])
		b.WriteString(FormatPlaceholder(ref.ID, ref.Description))
		last = match.End
	}
	b.WriteString(text[last:])

	m.logger.Debug().Int("refs", len(refs)).Str("context_id", contextID).Msg("secrets: redacted values")
	return b.String(), refs, nil
}

// Decapsulate implements Service. Attributes are returned unchanged when
// actionType is not allowed. Placeholders whose id is unknown to the vault
// are left as they are.
func (m *Manager) Decapsulate(ctx context.Context, actionType string, attrs types.Attributes, contextID string) (types.Attributes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !IsAllowed(m, actionType) {
		return attrs, nil
	}

	var openErr error
	resolve := func(id string) (string, bool) {
		value, err := m.vault.Open(id)
		if errors.Is(err, ErrUnknownReference) {
			m.logger.Warn().Str("ref", id).Str("context_id", contextID).Msg("secrets: unresolvable reference")
			return "", false
		}
		if err != nil {
			openErr = err
			return "", false
		}
		return value, true
	}

	out := make(types.Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = substitute(v, resolve)
	}
	if openErr != nil {
		return nil, openErr
	}
	return out, nil
}

// AllowedActions implements Service.
func (m *Manager) AllowedActions() []string {
	return append([]string(nil), m.allowed...)
}

// substitute walks v and resolves placeholders inside every string.
func substitute(v types.Value, resolve func(string) (string, bool)) types.Value {
	switch v.Kind() {
	case types.KindString:
		s, _ := v.AsString()
		if !strings.Contains(s, "{SECRET:") {
			return v
		}
		return types.String(replacePlaceholders(s, resolve))
	case types.KindList:
		items, _ := v.AsList()
		out := make([]types.Value, len(items))
		for i, item := range items {
			out[i] = substitute(item, resolve)
		}
		return types.List(out...)
	case types.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]types.Value, len(m))
		for k, item := range m {
			out[k] = substitute(item, resolve)
		}
		return types.Map(out)
	}
	return v
}
