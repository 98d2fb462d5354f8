package rbac

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/tenants"
)

func sortedCopy(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}

func builtinKeys() []string {
	keys := make([]string, 0, len(builtinPermissions))
	for _, p := range builtinPermissions {
		keys = append(keys, p.Key)
	}
	return sortedCopy(keys)
}

func TestResolve_CentralSuperadmin(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, builtinKeys(), f.permissions(f.rootID, nil))
	assert.Equal(t, builtinKeys(), f.permissions(f.rootID, int64Ptr(f.centralID)))
}

func TestResolve_TenantScope(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant("acme")

	assert.Equal(t, sortedCopy(tenantSuperadminKeys), f.permissions(acme.AdminID, &acme.ID))

	// no membership in the central tenant
	assert.Empty(t, f.permissions(acme.AdminID, nil))

	// no membership in another tenant
	globex := f.tenant("globex")
	assert.Empty(t, f.permissions(acme.AdminID, &globex.ID))
}

func TestResolve_CentralOverride(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant("acme")

	// the central membership wins over the absence of a tenant membership
	assert.Equal(t, builtinKeys(), f.permissions(f.rootID, &acme.ID))
}

func TestResolve_UnknownUserIsEmpty(t *testing.T) {
	f := newFixture(t)

	keys, err := f.engine.ResolveEffectivePermissions(f.ctx, 9999, nil)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestResolve_DisabledMembershipContributesNothing(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant("acme")
	viewer := f.role(acme.actor(), "viewer", PermRolesView, PermUsersView)
	userID := f.member(acme.actor(), acme.ID, "viewer@acme.test", viewer)

	assert.Equal(t, []string{PermRolesView, PermUsersView}, f.permissions(userID, &acme.ID))

	_, err := f.engine.ToggleActive(f.ctx, acme.actor(), userID, false)
	require.NoError(t, err)
	assert.Empty(t, f.permissions(userID, &acme.ID))
}

func TestResolve_MembershipWithoutRole(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant("acme")
	viewer := f.role(acme.actor(), "viewer", PermRolesView)
	userID := f.member(acme.actor(), acme.ID, "viewer@acme.test", viewer)

	require.NoError(t, f.engine.DeleteRole(f.ctx, acme.actor(), viewer))

	assert.Nil(t, f.membership(acme.ID, userID).RoleID)
	assert.Empty(t, f.permissions(userID, &acme.ID))
}

func TestResolve_SuspendedTenant(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant("acme")

	require.NoError(t, f.prov.SetTenantStatus(f.ctx, acme.ID, tenants.StatusSuspended))
	assert.Empty(t, f.permissions(acme.AdminID, &acme.ID))

	require.NoError(t, f.prov.SetTenantStatus(f.ctx, acme.ID, tenants.StatusActive))
	assert.NotEmpty(t, f.permissions(acme.AdminID, &acme.ID))
}

func TestResolve_CacheIsInvalidatedByMutations(t *testing.T) {
	cfg := testConfig()
	cfg.CacheSize = 16
	f := newFixtureWithConfig(t, cfg)

	resolver, ok := f.engine.resolver.(*PermissionResolver)
	require.True(t, ok)

	var hits, misses atomic.Int32
	resolver.SetCacheHooks(func() { hits.Add(1) }, func() { misses.Add(1) })

	acme := f.tenant("acme")
	viewer := f.role(acme.actor(), "viewer", PermRolesView)
	userID := f.member(acme.actor(), acme.ID, "viewer@acme.test", viewer)

	hits.Store(0)
	misses.Store(0)

	assert.Equal(t, []string{PermRolesView}, f.permissions(userID, &acme.ID))
	assert.Equal(t, []string{PermRolesView}, f.permissions(userID, &acme.ID))
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int32(1), misses.Load())
	assert.Equal(t, 1, resolver.Len())

	_, err := f.engine.CreateOrUpdateRole(f.ctx, acme.actor(), RoleInput{
		ID:            &viewer,
		Key:           "viewer",
		Name:          "Viewer",
		Scope:         ScopeTenant,
		TenantID:      &acme.ID,
		PermissionIDs: f.permIDs(PermRolesView, PermUsersView),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, resolver.Len())

	assert.Equal(t, []string{PermRolesView, PermUsersView}, f.permissions(userID, &acme.ID))
}

func TestResolver_DisabledCache(t *testing.T) {
	f := newFixture(t)
	r := NewPermissionResolver(f.db, f.engine.CentralTenantID, 0, 0)

	set, err := r.Resolve(f.ctx, f.rootID, nil)
	require.NoError(t, err)
	assert.True(t, set.Has(PermManageSecurity))
	assert.Equal(t, 0, r.Len())
	r.Invalidate()
}

func TestResolver_InvalidateDuringResolveSkipsCache(t *testing.T) {
	f := newFixture(t)

	var r *PermissionResolver
	var interleave atomic.Bool
	interleave.Store(true)
	centralID := func(ctx context.Context) (int64, error) {
		// a mutation commits while the sets are being read
		if interleave.Load() {
			r.Invalidate()
		}
		return f.engine.CentralTenantID(ctx)
	}
	r = NewPermissionResolver(f.db, centralID, 16, time.Minute)

	set, err := r.Resolve(f.ctx, f.rootID, nil)
	require.NoError(t, err)
	assert.True(t, set.Has(PermManageSecurity))
	assert.Equal(t, 0, r.Len())

	interleave.Store(false)
	_, err = r.Resolve(f.ctx, f.rootID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
}
