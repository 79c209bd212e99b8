// Package memory implements the memory service: the secrets-aware write
// pipeline, recall and traversal over the graph, text search, and the
// time-series projection used by telemetry.
//
// Write-path operations report failure through types.MemoryOpResult.
// Read-path operations degrade to an empty result and log the cause,
// unless the service was built WithStrictReads.
package memory

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/scrypster/memgraph/internal/clock"
	"github.com/scrypster/memgraph/internal/metrics"
	"github.com/scrypster/memgraph/internal/secrets"
	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/pkg/types"
)

var (
	// ErrMissingTimeService is returned by New when no clock is supplied.
	ErrMissingTimeService = errors.New("memory: time service is required")

	// ErrMissingStore is returned by New when no graph store is supplied.
	ErrMissingStore = errors.New("memory: graph store is required")

	// ErrInvalidQuery is returned in strict-read mode for malformed queries.
	ErrInvalidQuery = errors.New("memory: invalid query")
)

// DefaultActor is recorded as updated_by when a write names no writer.
const DefaultActor = "memory_service"

// DefaultMaxTraversalNodes bounds the nodes a single recall may expand.
const DefaultMaxTraversalNodes = 1000

// Service is the memory service. It is safe for concurrent use.
type Service struct {
	store   storage.GraphStore
	secrets secrets.Service
	clock   clock.TimeService
	logger  zerolog.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter
	locks   *keyedMutex

	actor                string
	recallLimit          int
	maxTraversalNodes    int
	strictMerge          bool
	referentialIntegrity bool
	strictReads          bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithStrictMerge serialises read-merge-write per (id, scope) so concurrent
// writers of the same node cannot lose an update.
func WithStrictMerge(enabled bool) Option {
	return func(s *Service) { s.strictMerge = enabled }
}

// WithReferentialIntegrity makes Forget remove the node's edges and makes
// CreateEdge require both endpoints to exist.
func WithReferentialIntegrity(enabled bool) Option {
	return func(s *Service) { s.referentialIntegrity = enabled }
}

// WithStrictReads makes read-path operations return errors instead of
// degrading to empty results.
func WithStrictReads(enabled bool) Option {
	return func(s *Service) { s.strictReads = enabled }
}

// WithRecallLimit sets the default page size for wildcard recall and search.
func WithRecallLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recallLimit = n
		}
	}
}

// WithMaxTraversalNodes bounds breadth-first expansion.
func WithMaxTraversalNodes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTraversalNodes = n
		}
	}
}

// WithIngestRateLimit limits MemorizeMetric and MemorizeLog to r events per
// second with the given burst. Writes over the limit are denied.
func WithIngestRateLimit(r rate.Limit, burst int) Option {
	return func(s *Service) {
		if r > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(r, burst)
		}
	}
}

// WithActor sets the updated_by value used when a write names no writer.
func WithActor(actor string) Option {
	return func(s *Service) {
		if actor != "" {
			s.actor = actor
		}
	}
}

// New creates a memory service. store and clk are required; a nil secrets
// service disables detection and decapsulation.
func New(store storage.GraphStore, secretsSvc secrets.Service, clk clock.TimeService, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrMissingStore
	}
	if clk == nil {
		return nil, ErrMissingTimeService
	}
	if secretsSvc == nil {
		secretsSvc = secrets.Noop{}
	}

	s := &Service{
		store:             store,
		secrets:           secretsSvc,
		clock:             clk,
		logger:            log.Logger,
		locks:             newKeyedMutex(),
		actor:             DefaultActor,
		recallLimit:       storage.DefaultListLimit,
		maxTraversalNodes: DefaultMaxTraversalNodes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// observe records a read-path operation for metrics. Use with defer.
func (s *Service) observe(op string, start time.Time, err *error) {
	status := "ok"
	if *err != nil {
		status = "error"
	}
	s.metrics.ObserveOp(op, status, time.Since(start))
}

// observeResult records a write-path operation for metrics. Use with defer.
func (s *Service) observeResult(op string, start time.Time, r *types.MemoryOpResult) {
	s.metrics.ObserveOp(op, string(r.Status), time.Since(start))
}

// readFailure applies the read-path error policy: in strict mode the error
// is returned, otherwise it is logged and swallowed.
func (s *Service) readFailure(op, nodeID string, scope types.GraphScope, err error) error {
	if s.strictReads {
		return fmt.Errorf("memory: %s: %w", op, err)
	}
	s.metrics.ReadDegraded(op)
	s.logger.Error().Err(err).
		Str("op", op).
		Str("node_id", nodeID).
		Str("scope", string(scope)).
		Msg("memory: read failed, returning empty result")
	return nil
}

// invalid builds an invalid-input result and logs it.
func (s *Service) invalid(op, id, reason string) types.MemoryOpResult {
	s.logger.Warn().Str("op", op).Str("node_id", id).Str("reason", reason).Msg("memory: rejected input")
	return types.MemoryOpResult{Status: types.StatusInvalid, Reason: reason, ID: id}
}

// failed builds an error result from a persistence or pipeline failure.
func (s *Service) failed(op, id string, err error) types.MemoryOpResult {
	status := types.StatusError
	if errors.Is(err, secrets.ErrCircuitOpen) {
		status = types.StatusDenied
	}
	if errors.Is(err, storage.ErrInvalidInput) {
		status = types.StatusInvalid
	}
	s.logger.Error().Err(err).Str("op", op).Str("node_id", id).Msg("memory: write failed")
	return types.MemoryOpResult{Status: status, Reason: err.Error(), ID: id}
}

func scopeOrDefault(scope types.GraphScope) types.GraphScope {
	if scope == "" {
		return types.ScopeLocal
	}
	return scope
}

func validateScope(scope types.GraphScope) error {
	if !types.IsValidScope(scope) {
		return fmt.Errorf("unknown scope %q", scope)
	}
	return nil
}
