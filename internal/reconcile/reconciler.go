// Package reconcile converges remote connection state with the desired
// state announced by inbound lifecycle signals.
package reconcile

//go:generate mockgen -destination=mocks/mock_reconciler.go -package=mocks -source=reconciler.go

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mooring-labs/searchlink/internal/index"
	"github.com/mooring-labs/searchlink/internal/logger"
	"github.com/mooring-labs/searchlink/internal/telemetry"
)

// ErrSignalDiscarded marks payloads dropped before any remote call was made:
// malformed bodies and deliveries whose proof tokens fail validation.
// Handlers log it and still acknowledge the delivery.
var ErrSignalDiscarded = errors.New("lifecycle signal discarded")

// Result is the outcome of reconciling one signal against the observed
// remote state.
type Result string

const (
	// ResultCreated means the connection was created and its schema registered.
	ResultCreated Result = "created"
	// ResultAlreadyExists means the connection was already present, so the
	// enable signal required no action.
	ResultAlreadyExists Result = "already-exists-noop"
	// ResultDeleted means the connection was removed.
	ResultDeleted Result = "deleted"
	// ResultAlreadyAbsent means there was nothing to delete.
	ResultAlreadyAbsent Result = "already-absent-noop"
)

// connectionService is the slice of the index API the reconciler drives.
type connectionService interface {
	CreateConnection(ctx context.Context, conn index.Connection, ticket string) error
	ListConnections(ctx context.Context) ([]index.Connection, error)
	DeleteConnection(ctx context.Context, id string) error
	RegisterSchema(ctx context.Context, connectionID string, schema index.Schema) error
}

// tokenValidator verifies one proof token and returns its claims.
type tokenValidator interface {
	ValidateToken(ctx context.Context, token string) (jwt.MapClaims, error)
}

// SignalResult pairs one notification with its reconciliation outcome.
// Err is set when a remote call failed mid-reconciliation; Result is then
// empty.
type SignalResult struct {
	ResourceID string
	Result     Result
	Err        error
}

// maxConcurrentSignals bounds the fan-out when a single delivery carries
// several notifications.
const maxConcurrentSignals = 4

// Reconciler applies lifecycle signals to the index service.
type Reconciler struct {
	connections    connectionService
	validator      tokenValidator
	schema         index.Schema
	connectionName string
	metrics        *telemetry.ReconcileMetrics
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithSchema overrides the schema registered for newly created connections.
func WithSchema(schema index.Schema) Option {
	return func(r *Reconciler) {
		r.schema = schema
	}
}

// WithConnectionName sets the display name used for created connections.
func WithConnectionName(name string) Option {
	return func(r *Reconciler) {
		if name != "" {
			r.connectionName = name
		}
	}
}

// WithMetrics attaches reconciliation instruments.
func WithMetrics(metrics *telemetry.ReconcileMetrics) Option {
	return func(r *Reconciler) {
		r.metrics = metrics
	}
}

// NewReconciler builds a reconciler over the given index service and proof
// validator.
func NewReconciler(connections connectionService, validator tokenValidator, opts ...Option) *Reconciler {
	r := &Reconciler{
		connections:    connections,
		validator:      validator,
		schema:         index.DefaultSchema(),
		connectionName: "Searchlink connector",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessPayload parses and authenticates one webhook delivery, then
// reconciles every notification in it. Authentication happens before any
// remote call: a payload that cannot be parsed, or whose tokens do not all
// validate, returns ErrSignalDiscarded with nothing else done.
func (r *Reconciler) ProcessPayload(ctx context.Context, payload []byte) ([]SignalResult, error) {
	envelope, err := parseEnvelope(payload)
	if err != nil {
		logger.Warnf("Discarding lifecycle payload: %v", err)
		r.metrics.RecordDiscardedSignal(ctx, "malformed")
		return nil, fmt.Errorf("%w: %v", ErrSignalDiscarded, err)
	}

	for _, token := range envelope.ValidationTokens {
		if _, err := r.validator.ValidateToken(ctx, token); err != nil {
			logger.Warnf("Discarding lifecycle payload: proof token rejected: %v", err)
			r.metrics.RecordDiscardedSignal(ctx, "invalid-token")
			return nil, fmt.Errorf("%w: proof token rejected", ErrSignalDiscarded)
		}
	}

	results := make([]SignalResult, len(envelope.Notifications))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentSignals)
	for i, signal := range envelope.Notifications {
		group.Go(func() error {
			result, err := r.Reconcile(groupCtx, signal)
			results[i] = SignalResult{ResourceID: signal.ResourceID, Result: result, Err: err}
			return nil
		})
	}
	_ = group.Wait()
	return results, nil
}

// Reconcile converges one signal. Each run lists connections fresh; state
// observed by previous runs is never reused.
func (r *Reconciler) Reconcile(ctx context.Context, signal Signal) (Result, error) {
	runID := uuid.NewString()
	logger.Infof("Reconciling connection %s: desired state %s (run %s)",
		signal.ResourceID, signal.DesiredState, runID)

	connections, err := r.connections.ListConnections(ctx)
	if err != nil {
		r.metrics.RecordRun(ctx, signal.DesiredState, "error")
		return "", fmt.Errorf("list connections: %w", err)
	}
	exists := false
	for _, conn := range connections {
		if conn.ID == signal.ResourceID {
			exists = true
			break
		}
	}

	result, err := r.converge(ctx, signal, exists)
	if err != nil {
		r.metrics.RecordRun(ctx, signal.DesiredState, "error")
		return "", err
	}
	r.metrics.RecordRun(ctx, signal.DesiredState, string(result))
	logger.Infof("Reconciled connection %s: %s (run %s)", signal.ResourceID, result, runID)
	return result, nil
}

func (r *Reconciler) converge(ctx context.Context, signal Signal, exists bool) (Result, error) {
	if signal.DesiredState == StateDisabled {
		if !exists {
			return ResultAlreadyAbsent, nil
		}
		if err := r.connections.DeleteConnection(ctx, signal.ResourceID); err != nil {
			return "", fmt.Errorf("delete connection %s: %w", signal.ResourceID, err)
		}
		return ResultDeleted, nil
	}

	if exists {
		return ResultAlreadyExists, nil
	}
	conn := index.Connection{
		ID:   signal.ResourceID,
		Name: r.connectionName,
	}
	if err := r.connections.CreateConnection(ctx, conn, signal.Ticket); err != nil {
		return "", fmt.Errorf("create connection %s: %w", signal.ResourceID, err)
	}
	if err := r.connections.RegisterSchema(ctx, signal.ResourceID, r.schema); err != nil {
		return "", fmt.Errorf("register schema for connection %s: %w", signal.ResourceID, err)
	}
	return ResultCreated, nil
}
