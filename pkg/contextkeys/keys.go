// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/tenantguard/pkg/contextkeys"
//	ctx = contextkeys.WithActorID(ctx, 42)
//	actorID, ok := contextkeys.GetActorID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ActorIDKey contains the authenticated user's id
	// Set by: middleware.IdentityMiddleware (pkg/middleware/identity.go)
	// Required by: every /rbac endpoint
	// Type: int64
	ActorIDKey Key = "actor_id"

	// TenantKey contains *tenants.Tenant
	// Set by: middleware.TenantMiddleware (pkg/middleware/tenant.go)
	// Used by: handlers that report the tenant being acted on
	// Type: *tenants.Tenant
	TenantKey Key = "tenant"

	// TenantIDKey contains the id of the tenant the request acts on.
	// Absent when the request targets the central scope.
	// Set by: middleware.TenantMiddleware
	// Type: int64
	TenantIDKey Key = "tenant_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, audit trail, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains a logrus.FieldLogger scoped to the request
	// Set by: middleware.RequestID
	// Type: logrus.FieldLogger
	LoggerKey Key = "logger"
)

// WithActorID adds the authenticated user id to the context
func WithActorID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ActorIDKey, userID)
}

// GetActorID retrieves the authenticated user id from context
func GetActorID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ActorIDKey).(int64)
	return id, ok
}

// WithTenant adds the resolved tenant to the context
func WithTenant(ctx context.Context, tenant interface{}) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}

// WithTenantID adds the operating tenant id to the context
func WithTenantID(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// GetTenantID returns the operating tenant id, or nil for the central scope
func GetTenantID(ctx context.Context) *int64 {
	if id, ok := ctx.Value(TenantIDKey).(int64); ok {
		return &id
	}
	return nil
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
