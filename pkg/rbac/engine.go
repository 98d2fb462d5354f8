package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantguard/pkg/async"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/notify"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

const tracerName = "github.com/platinummonkey/tenantguard/pkg/rbac"

// Engine performs authorized role, permission and membership mutations.
// Every invariant is re-checked inside the transaction that commits the write.
type Engine struct {
	store     *Store
	resolver  Resolver
	policy    *Policy
	config    Config
	audit     audit.Logger
	notifier  notify.Notifier
	metrics   *observability.Metrics
	log       logrus.FieldLogger
	tracer    trace.Tracer
	readDB    *sql.DB
	centralID atomic.Int64
}

// Option customizes an Engine
type Option func(*Engine)

// WithPolicy replaces the built-in policy
func WithPolicy(p *Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithAuditLogger sets the audit sink
func WithAuditLogger(l audit.Logger) Option {
	return func(e *Engine) { e.audit = l }
}

// WithNotifier sets the membership notification sink
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithReadDB routes permission resolution to a read replica
func WithReadDB(db *sql.DB) Option {
	return func(e *Engine) { e.readDB = db }
}

// WithResolver replaces the default resolver
func WithResolver(r Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// NewEngine creates an engine over the store
func NewEngine(store *Store, config Config, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		policy:   DefaultPolicy(),
		config:   config,
		audit:    audit.NewNoOpLogger(),
		notifier: notify.NoOp{},
		log:      logrus.StandardLogger(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.resolver == nil {
		db := e.readDB
		if db == nil {
			db = store.db
		}
		r := NewPermissionResolver(db, e.CentralTenantID, config.CacheSize, config.CacheTTL)
		if e.metrics != nil {
			r.SetCacheHooks(e.metrics.ResolverCacheHit, e.metrics.ResolverCacheMiss)
		}
		e.resolver = r
	}
	return e
}

// Policy returns the policy in force
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Store returns the backing store
func (e *Engine) Store() *Store {
	return e.store
}

// CentralTenantID returns the id of the central tenant, loading it on first use
func (e *Engine) CentralTenantID(ctx context.Context) (int64, error) {
	if id := e.centralID.Load(); id != 0 {
		return id, nil
	}
	id, err := e.store.tenantIDBySlug(ctx, e.store.db, e.config.CentralTenantSlug)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("central tenant %q is not provisioned", e.config.CentralTenantSlug)
	}
	e.centralID.Store(id)
	return id, nil
}

// ResolveEffectivePermissions returns the sorted permission keys the user holds in the scope
func (e *Engine) ResolveEffectivePermissions(ctx context.Context, userID int64, tenantID *int64) ([]string, error) {
	set, err := e.resolver.Resolve(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	return set.Keys(), nil
}

// HasAny resolves the actor's permissions and checks them against the required keys
func (e *Engine) HasAny(ctx context.Context, actor Actor, required ...string) (bool, error) {
	set, err := e.resolver.Resolve(ctx, actor.UserID, actor.TenantID)
	if err != nil {
		return false, err
	}
	return e.policy.HasAny(set, required...), nil
}

// operatingScope is the tenant a request acts on
type operatingScope struct {
	TenantID int64
	Central  bool
}

// roleTenantID is the tenant_id roles owned by this scope carry
func (sc operatingScope) roleTenantID() *int64 {
	if sc.Central {
		return nil
	}
	id := sc.TenantID
	return &id
}

func (sc operatingScope) roleScope() RoleScope {
	if sc.Central {
		return ScopeCentral
	}
	return ScopeTenant
}

// checkRole returns the mismatch code when the role is not owned by this scope
func (sc operatingScope) checkRole(scope RoleScope, tenantID *int64) Code {
	if sc.Central {
		if scope != ScopeCentral || tenantID != nil {
			return CodeRoleScopeMismatch
		}
		return ""
	}
	if scope != ScopeTenant || tenantID == nil {
		return CodeRoleScopeMismatch
	}
	if *tenantID != sc.TenantID {
		return CodeRoleTenantMismatch
	}
	return ""
}

func (e *Engine) scopeFor(ctx context.Context, actor Actor) (operatingScope, error) {
	centralID, err := e.CentralTenantID(ctx)
	if err != nil {
		return operatingScope{}, err
	}
	if actor.TenantID == nil || *actor.TenantID == centralID {
		return operatingScope{TenantID: centralID, Central: true}, nil
	}
	return operatingScope{TenantID: *actor.TenantID}, nil
}

// authorize resolves the operating scope and requires any of the given keys.
// It must run before a transaction is opened.
func (e *Engine) authorize(ctx context.Context, actor Actor, required ...string) (operatingScope, PermissionSet, error) {
	if actor.UserID <= 0 {
		return operatingScope{}, nil, NewError(CodeUnauthenticated)
	}
	sc, err := e.scopeFor(ctx, actor)
	if err != nil {
		return operatingScope{}, nil, err
	}
	set, err := e.resolver.Resolve(ctx, actor.UserID, actor.TenantID)
	if err != nil {
		return operatingScope{}, nil, err
	}
	if !e.policy.HasAny(set, required...) {
		return operatingScope{}, nil, NewError(CodeForbidden)
	}
	return sc, set, nil
}

// begin starts a span for an engine operation
func (e *Engine) begin(ctx context.Context, op string, actor Actor) (context.Context, trace.Span, time.Time) {
	ctx, span := e.tracer.Start(ctx, "rbac."+op, trace.WithAttributes(
		attribute.Int64("rbac.actor_id", actor.UserID),
		attribute.Int64("rbac.tenant_id", tenantKey(actor.TenantID)),
	))
	return ctx, span, time.Now()
}

// end closes the span and records the outcome
func (e *Engine) end(span trace.Span, op string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(CodeOf(err))
		if outcome == "" {
			outcome = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
	e.metrics.RecordMutation(op, outcome, time.Since(start))
}

// committed runs the post-commit side effects shared by every mutation
func (e *Engine) committed(ctx context.Context, actor Actor, eventType audit.EventType, resource audit.ResourceType, resourceID int64, message string, metadata map[string]interface{}) {
	e.resolver.Invalidate()

	actorID := actor.UserID
	event := &audit.Event{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		TenantID:     actor.TenantID,
		ResourceType: resource,
		ResourceID:   strconv.FormatInt(resourceID, 10),
		RequestID:    contextkeys.GetRequestID(ctx),
		Message:      message,
		Metadata:     metadata,
	}
	if err := e.audit.Log(ctx, event); err != nil {
		e.log.WithError(err).WithField("event_type", eventType).Warn("failed to write audit event")
	}

	e.log.WithFields(logrus.Fields{
		"actor_id":    actor.UserID,
		"event_type":  eventType,
		"resource_id": resourceID,
		"request_id":  event.RequestID,
	}).Info(message)
}

// dispatch sends a notification without blocking or failing the caller
func (e *Engine) dispatch(ctx context.Context, event notify.Event) {
	timeout := e.config.NotifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	async.SafeGo(context.WithoutCancel(ctx), timeout, "notify "+event.Type, e.log, func(ctx context.Context) error {
		return e.notifier.Notify(ctx, event)
	})
}

// dedupeIDs drops duplicates while keeping first-seen order
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortIDs(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
