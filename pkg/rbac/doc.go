// Package rbac provides multi-tenant role-based access control: permission
// resolution, the protected-entity policy and the mutation engine for roles,
// permissions and memberships.
//
// # Overview
//
// Every installation has one central tenant and any number of customer
// tenants. Roles are owned either by the central tenant (TenantID nil, scope
// CENTRAL) or by exactly one customer tenant (scope TENANT). Permissions are
// global keys such as "roles.view" or "users.delete". A membership binds a
// user to a tenant with at most one role and an ACTIVE, INVITED or DISABLED
// status.
//
// # Permission Resolution
//
// A user's effective permissions in a tenant are the keys granted by the role
// of their ACTIVE membership there. An ACTIVE central membership always wins,
// so central administrators carry their central permissions into every tenant:
//
//	keys, err := engine.ResolveEffectivePermissions(ctx, userID, &tenantID)
//
// Members of a suspended tenant resolve to an empty set in it. Resolved sets
// are cached in a bounded LRU with a TTL and the whole cache is dropped after
// every committed mutation.
//
// # Policy
//
// The Policy names the protected role keys (central_superadmin and
// tenant_superadmin), the reserved permission keys and prefixes, and the
// coarse override keys:
//
//	manage_roles     grants every roles.* key
//	manage_users     grants every users.* key
//	manage_security  grants every roles.*, permissions.* and users.* key
//
// LoadPolicy reads a YAML document; sections it omits keep their defaults.
//
// # Mutations
//
// Engine methods take the acting user and run in a single transaction with
// row locks on PostgreSQL. Failures are *Error values carrying a stable Code
// (ROLE_KEY_IN_USE, CANNOT_DELETE_LAST_USER, ...) and a safe message:
//
//	res, err := engine.CreateOrUpdateRole(ctx, actor, rbac.RoleInput{
//		Key:           "editor",
//		Name:          "Editor",
//		Scope:         rbac.ScopeTenant,
//		TenantID:      &tenantID,
//		PermissionIDs: ids,
//	})
//	if rbac.CodeOf(err) == rbac.CodeRoleKeyInUse {
//		...
//	}
//
// Protected roles are never created, renamed or deleted through the engine,
// and each keeps at most one ACTIVE holder. Nobody may delete or deactivate
// themselves, and the last active holder of a protected role (or the last
// active member of a tenant) cannot be removed, disabled or reassigned.
//
// # Bulk Deletes
//
// DeleteRoles, DeletePermissions and DeleteMemberships partition the requested
// ids into deleted and blocked items. Blocked items carry a reason code; the
// deletable ones are removed in one transaction, so either all of them go or
// none do.
//
// # Provisioning
//
// Provisioner bootstraps the central tenant, the built-in permissions and the
// superadmin roles, and creates customer tenants. It performs no permission
// checks and is meant for operator tooling only.
//
// # HTTP
//
// Handlers exposes the engine under /rbac. The acting user and tenant are read
// from the request context (see pkg/contextkeys), and errors are written as
// {"code": ..., "message": ...} with a status derived from the error kind.
package rbac
