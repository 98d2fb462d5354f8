// Package tenants stores the tenants that roles and memberships are scoped to.
//
// A tenant can be addressed by id, slug or host. The HTTP layer resolves the
// request host to a tenant with GetByHost; the central tenant is found by its
// configured slug.
package tenants
