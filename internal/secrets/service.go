// Package secrets implements the secrets collaborator used by the memory
// service: detection of secret-shaped values, substitution with opaque
// references, an encrypted in-process vault and authorised decapsulation.
package secrets

import (
	"context"
	"errors"
	"time"

	"github.com/scrypster/memgraph/pkg/types"
)

var (
	// ErrPipeline indicates a detection, sealing or decapsulation failure.
	ErrPipeline = errors.New("secrets pipeline failure")

	// ErrCircuitOpen is returned by Guard while the breaker rejects calls.
	ErrCircuitOpen = errors.New("secrets circuit breaker is open")

	// ErrUnknownReference indicates that a reference id is not in the vault.
	ErrUnknownReference = errors.New("unknown secret reference")
)

// Action types permitted to see decapsulated values unless configured otherwise.
const (
	ActionSpeak = "speak"
	ActionTool  = "tool"
)

// DefaultAllowedActions is the default decapsulation allow-list.
var DefaultAllowedActions = []string{ActionSpeak, ActionTool}

// Reference describes one detected secret. Only the id and description
// appear in stored text; the value stays in the vault.
type Reference struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	ContextID   string    `json:"context_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Service is the secrets collaborator consumed by the memory service.
type Service interface {
	// DetectAndRedact replaces secret-shaped substrings of text with
	// reference placeholders and returns the references it created.
	DetectAndRedact(ctx context.Context, text, contextID string) (string, []Reference, error)

	// Decapsulate substitutes vaulted values back into attrs when actionType
	// is allowed. The input is never modified.
	Decapsulate(ctx context.Context, actionType string, attrs types.Attributes, contextID string) (types.Attributes, error)

	// AllowedActions returns the decapsulation allow-list.
	AllowedActions() []string
}

// FieldRedactor is implemented by services that can redact a single
// attribute value knowing the key it is stored under. Values under
// secret-named keys (password, token, api_key, ...) are redacted whole.
type FieldRedactor interface {
	RedactField(ctx context.Context, key, value, contextID string) (string, []Reference, error)
}

// IsAllowed reports whether svc permits decapsulation for actionType.
func IsAllowed(svc Service, actionType string) bool {
	if svc == nil || actionType == "" {
		return false
	}
	for _, a := range svc.AllowedActions() {
		if a == actionType {
			return true
		}
	}
	return false
}

// Noop is a Service that detects nothing and never decapsulates.
type Noop struct{}

// DetectAndRedact implements Service.
func (Noop) DetectAndRedact(_ context.Context, text, _ string) (string, []Reference, error) {
	return text, nil, nil
}

// Decapsulate implements Service.
func (Noop) Decapsulate(_ context.Context, _ string, attrs types.Attributes, _ string) (types.Attributes, error) {
	return attrs, nil
}

// AllowedActions implements Service.
func (Noop) AllowedActions() []string { return nil }
