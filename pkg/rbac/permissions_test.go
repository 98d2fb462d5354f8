package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/audit"
)

func TestCreatePermission(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.CreateOrUpdatePermission(f.ctx, f.root(), PermissionInput{Key: " reports.view ", Name: "View reports"})
	require.NoError(t, err)
	assert.Equal(t, ModeCreated, res.Mode)
	assert.Equal(t, res.ID, f.permID("reports.view"))

	_, err = f.engine.CreateOrUpdatePermission(f.ctx, f.root(), PermissionInput{Key: "reports.view", Name: "Again"})
	requireCode(t, err, CodePermissionKeyInUse)

	assert.Contains(t, f.audit.types(), audit.EventTypePermissionCreate)
}

func TestCreatePermission_ReservedKeys(t *testing.T) {
	f := newFixture(t)

	for _, key := range []string{PermManageUsers, "roles.archive", "system.debug", "users.impersonate"} {
		t.Run(key, func(t *testing.T) {
			_, err := f.engine.CreateOrUpdatePermission(f.ctx, f.root(), PermissionInput{Key: key, Name: key})
			requireCode(t, err, CodeKeyReservedForSystem)
		})
	}
}

func TestUpdatePermission(t *testing.T) {
	f := newFixture(t)
	id := f.customPermission("reports.view")
	other := f.customPermission("reports.export")

	res, err := f.engine.CreateOrUpdatePermission(f.ctx, f.root(), PermissionInput{ID: &id, Key: "reports.read", Name: "Read reports"})
	require.NoError(t, err)
	assert.Equal(t, ModeUpdated, res.Mode)
	assert.Equal(t, id, f.permID("reports.read"))

	// same input twice ends in the same state
	_, err = f.engine.CreateOrUpdatePermission(f.ctx, f.root(), PermissionInput{ID: &id, Key: "reports.read", Name: "Read reports"})
	require.NoError(t, err)

	_, err = f.engine.CreateOrUpdatePermission(f.ctx, f.root(), PermissionInput{ID: &other, Key: "reports.read", Name: "Clash"})
	requireCode(t, err, CodePermissionKeyInUse)

	system := f.permID(PermRolesView)
	_, err = f.engine.CreateOrUpdatePermission(f.ctx, f.root(), PermissionInput{ID: &system, Key: "reports.roles", Name: "Renamed"})
	requireCode(t, err, CodeKeyReservedForSystem)

	missing := int64(31337)
	_, err = f.engine.CreateOrUpdatePermission(f.ctx, f.root(), PermissionInput{ID: &missing, Key: "reports.ghost", Name: "Ghost"})
	requireCode(t, err, CodePermissionNotFound)
}

func TestPermissionMutations_CentralScopeOnly(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant("acme")
	id := f.customPermission("reports.view")

	// tenant superadmins lack the permission keys entirely
	_, err := f.engine.CreateOrUpdatePermission(f.ctx, acme.actor(), PermissionInput{Key: "reports.export", Name: "Export"})
	requireCode(t, err, CodeForbidden)

	// central admins acting against a tenant are in the wrong scope
	_, err = f.engine.CreateOrUpdatePermission(f.ctx, f.rootIn(acme.ID), PermissionInput{Key: "reports.export", Name: "Export"})
	requireCode(t, err, CodeScopeMismatch)
	requireCode(t, f.engine.DeletePermission(f.ctx, f.rootIn(acme.ID), id), CodeScopeMismatch)

	// everyone with permissions.view may list
	perms, err := f.engine.ListPermissions(f.ctx, acme.actor())
	require.NoError(t, err)
	assert.Len(t, perms, len(builtinPermissions)+1)
}

func TestDeletePermission(t *testing.T) {
	f := newFixture(t)
	free := f.customPermission("reports.view")
	used := f.customPermission("reports.export")
	f.role(f.root(), "exporter", "reports.export")

	require.NoError(t, f.engine.DeletePermission(f.ctx, f.root(), free))
	p, err := f.engine.store.getPermission(f.ctx, f.db, free, false)
	require.NoError(t, err)
	assert.Nil(t, p)

	err = f.engine.DeletePermission(f.ctx, f.root(), used)
	requireCode(t, err, CodePermissionInUse)
	assert.ErrorIs(t, err, ErrInUse)

	requireCode(t, f.engine.DeletePermission(f.ctx, f.root(), f.permID(PermRolesView)), CodeCannotDeleteSystemPermission)
	requireCode(t, f.engine.DeletePermission(f.ctx, f.root(), free), CodePermissionNotFound)
}

func TestDeletePermissions_Partition(t *testing.T) {
	f := newFixture(t)
	a := f.customPermission("reports.a")
	b := f.customPermission("reports.b")
	used := f.customPermission("reports.used")
	f.role(f.root(), "user_of", "reports.used")
	system := f.permID(PermManageTenants)

	res, err := f.engine.DeletePermissions(f.ctx, f.root(), []int64{a, used, system, 4040, b})
	require.NoError(t, err)

	assert.Equal(t, []int64{a, b}, res.DeletedIDs)
	assert.Equal(t, 2, res.DeletedCount)
	assert.Equal(t, 3, res.BlockedCount)
	assert.Equal(t, []BlockedItem{
		{ID: used, Reason: CodePermissionInUse},
		{ID: system, Reason: CodeCannotDeleteSystemPermission},
		{ID: 4040, Reason: CodeNotFound},
	}, res.Blocked)

	perms, err := f.engine.ListPermissions(f.ctx, f.root())
	require.NoError(t, err)
	assert.Len(t, perms, len(builtinPermissions)+1)
}
