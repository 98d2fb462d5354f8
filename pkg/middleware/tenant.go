package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/tenants"
)

// TenantResolver looks up the tenant served on a host
type TenantResolver interface {
	GetByHost(ctx context.Context, host string) (*tenants.Tenant, error)
}

// TenantConfig configures TenantMiddleware
type TenantConfig struct {
	// CentralSlug identifies the central tenant; requests to it carry no tenant id
	CentralSlug string
	// DefaultToCentral routes unknown hosts to the central scope instead of failing
	DefaultToCentral bool
}

// TenantMiddleware resolves the tenant of the request from its Host header
func TenantMiddleware(resolver TenantResolver, cfg TenantConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tenant, err := resolver.GetByHost(ctx, r.Host)
			switch {
			case errors.Is(err, tenants.ErrNotFound):
				if !cfg.DefaultToCentral {
					httputil.WriteCodedError(w, http.StatusNotFound, "TENANT_NOT_FOUND", "no tenant is served on this host")
					return
				}
				next.ServeHTTP(w, r)
				return
			case err != nil:
				observability.FromContext(ctx).WithError(err).WithField("host", r.Host).Error("failed to resolve tenant")
				httputil.WriteCodedError(w, http.StatusInternalServerError, "INTERNAL", "failed to resolve tenant")
				return
			}

			ctx = contextkeys.WithTenant(ctx, tenant)
			if tenant.Slug != cfg.CentralSlug {
				ctx = contextkeys.WithTenantID(ctx, tenant.ID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
