// Package middleware provides the HTTP middleware that establishes who is
// acting and in which tenant before a request reaches the RBAC handlers.
//
// # Middleware Components
//
// RequestID: assigns or propagates X-Request-ID and stores a request-scoped
// logger in the context
//
//	router.Use(middleware.RequestID(logger))
//
// IdentityMiddleware: reads the acting user id written by the authenticating
// gateway. Requests without one continue anonymously.
//
//	router.Use(middleware.IdentityMiddleware(middleware.HeaderIdentityProvider{}))
//
// TenantMiddleware: resolves the tenant from the Host header. The central
// tenant is stored without a tenant id so the request runs in the central scope.
//
//	router.Use(middleware.TenantMiddleware(tenants.NewStore(db), middleware.TenantConfig{
//		CentralSlug:      "central",
//		DefaultToCentral: false,
//	}))
//
// MutationRateLimit: limits POST, PUT, PATCH and DELETE requests per actor
//
//	limiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimitConfig(600))
//	router.Use(middleware.MutationRateLimit(limiter))
//
// With Redis configured, NewDistributedRateLimiter shares the counters across
// instances. Limiter errors never block a request.
//
// # Related Packages
//
//   - pkg/contextkeys: context keys written here
//   - pkg/rbac: permission checks that consume the actor and tenant
//   - pkg/tenants: host lookup
package middleware
