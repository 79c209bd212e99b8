package secrets

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/scrypster/memgraph/pkg/types"
)

// Ensure *Guard implements Service and FieldRedactor at compile time.
var (
	_ Service       = (*Guard)(nil)
	_ FieldRedactor = (*Guard)(nil)
)

// GuardConfig holds the configuration for the circuit breaker.
type GuardConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 3
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning to half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required in half-open
	// state to close the circuit again.
	// Default: 2
	HalfOpenMaxSuccesses uint32

	// Logger receives breaker state changes. Default: the global zerolog logger.
	Logger *zerolog.Logger
}

// GuardMetrics holds counters about guarded calls.
type GuardMetrics struct {
	TotalRequests        uint64
	TotalSuccesses       uint64
	TotalFailures        uint64
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Guard wraps a Service with a circuit breaker so that a failing secrets
// backend is rejected quickly instead of stalling every memory write.
//
// When closed, calls pass through. After MaxFailures consecutive failures
// the circuit opens and calls fail with ErrCircuitOpen. After Timeout it
// half-opens and lets HalfOpenMaxSuccesses probe calls through.
type Guard struct {
	inner   Service
	breaker *gobreaker.CircuitBreaker
	mu      sync.RWMutex
	metrics GuardMetrics
}

// NewGuard wraps inner. Zero config fields take their defaults.
func NewGuard(inner Service, config GuardConfig) *Guard {
	if config.MaxFailures == 0 {
		config.MaxFailures = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxSuccesses == 0 {
		config.HalfOpenMaxSuccesses = 2
	}
	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}

	settings := gobreaker.Settings{
		Name:        "SecretsCircuitBreaker",
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0, // Don't clear counts periodically
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is the caller's doing, not a backend failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("secrets: circuit breaker state changed")
		},
	}

	return &Guard{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// DetectAndRedact implements Service.
func (g *Guard) DetectAndRedact(ctx context.Context, text, contextID string) (string, []Reference, error) {
	type result struct {
		text string
		refs []Reference
	}
	out, err := g.execute(ctx, func() (interface{}, error) {
		t, refs, err := g.inner.DetectAndRedact(ctx, text, contextID)
		return result{t, refs}, err
	})
	if err != nil {
		return "", nil, err
	}
	r := out.(result)
	return r.text, r.refs, nil
}

// RedactField implements FieldRedactor. Inner services without field
// support scan the value with DetectAndRedact.
func (g *Guard) RedactField(ctx context.Context, key, value, contextID string) (string, []Reference, error) {
	type result struct {
		text string
		refs []Reference
	}
	out, err := g.execute(ctx, func() (interface{}, error) {
		var (
			t    string
			refs []Reference
			err  error
		)
		if fr, ok := g.inner.(FieldRedactor); ok {
			t, refs, err = fr.RedactField(ctx, key, value, contextID)
		} else {
			t, refs, err = g.inner.DetectAndRedact(ctx, value, contextID)
		}
		return result{t, refs}, err
	})
	if err != nil {
		return "", nil, err
	}
	r := out.(result)
	return r.text, r.refs, nil
}

// Decapsulate implements Service.
func (g *Guard) Decapsulate(ctx context.Context, actionType string, attrs types.Attributes, contextID string) (types.Attributes, error) {
	out, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.Decapsulate(ctx, actionType, attrs, contextID)
	})
	if err != nil {
		return nil, err
	}
	return out.(types.Attributes), nil
}

// AllowedActions implements Service. It does not pass through the breaker.
func (g *Guard) AllowedActions() []string {
	return g.inner.AllowedActions()
}

// State returns the current breaker state: "closed", "open" or "half-open".
func (g *Guard) State() string {
	switch g.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Metrics returns the current counters.
func (g *Guard) Metrics() GuardMetrics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts := g.breaker.Counts()
	m := g.metrics
	m.ConsecutiveSuccesses = counts.ConsecutiveSuccesses
	m.ConsecutiveFailures = counts.ConsecutiveFailures
	return m
}

func (g *Guard) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := g.breaker.Execute(fn)

	g.mu.Lock()
	g.metrics.TotalRequests++
	if err != nil {
		g.metrics.TotalFailures++
	} else {
		g.metrics.TotalSuccesses++
	}
	g.mu.Unlock()

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}
