package rbac

import (
	"net/http"
)

// PermissionMiddleware provides middleware for permission checking
type PermissionMiddleware struct {
	engine *Engine
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(engine *Engine) *PermissionMiddleware {
	return &PermissionMiddleware{engine: engine}
}

// RequireAuthenticated rejects requests without an acting user
func (pm *PermissionMiddleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorFromRequest(r).UserID <= 0 {
			writeError(w, r, NewError(CodeUnauthenticated))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission creates middleware that requires any of the given
// permission keys, honouring override keys
func (pm *PermissionMiddleware) RequirePermission(keys ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := actorFromRequest(r)
			if actor.UserID <= 0 {
				writeError(w, r, NewError(CodeUnauthenticated))
				return
			}

			allowed, err := pm.engine.HasAny(r.Context(), actor, keys...)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !allowed {
				writeError(w, r, NewError(CodeForbidden))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
