package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
)

// ActorHeader carries the authenticated user id set by the upstream gateway
const ActorHeader = "X-Actor-ID"

// ErrNoIdentity is returned by an IdentityProvider when the request carries no identity
var ErrNoIdentity = errors.New("no identity on request")

// IdentityProvider extracts the acting user id from a request
type IdentityProvider interface {
	Identify(r *http.Request) (int64, error)
}

// HeaderIdentityProvider trusts a header written by an authenticating proxy
type HeaderIdentityProvider struct {
	Header string
}

// Identify parses the configured header as a positive user id
func (p HeaderIdentityProvider) Identify(r *http.Request) (int64, error) {
	header := p.Header
	if header == "" {
		header = ActorHeader
	}

	raw := strings.TrimSpace(r.Header.Get(header))
	if raw == "" {
		return 0, ErrNoIdentity
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid actor id")
	}
	return id, nil
}

// IdentityMiddleware adds the acting user to the request context. Requests
// without an identity pass through anonymously; the handlers reject them
// where an actor is required.
func IdentityMiddleware(provider IdentityProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := provider.Identify(r)
			if errors.Is(err, ErrNoIdentity) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				httputil.WriteCodedError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid identity")
				return
			}

			ctx := contextkeys.WithActorID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
