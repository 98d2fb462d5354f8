package rbac

import (
	"context"
	"database/sql"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/audit"
)

// CreateOrUpdateRole creates a role when input.ID is nil and updates it otherwise.
// The role's permission set is replaced with input.PermissionIDs.
func (e *Engine) CreateOrUpdateRole(ctx context.Context, actor Actor, input RoleInput) (res *SaveResult, err error) {
	ctx, span, start := e.begin(ctx, "save_role", actor)
	defer func() { e.end(span, "save_role", start, err) }()

	input.Key = strings.TrimSpace(input.Key)
	input.Name = strings.TrimSpace(input.Name)
	if input.Key == "" || input.Name == "" || !input.Scope.Valid() {
		return nil, NewError(CodeInvalidInput)
	}

	required := PermRolesCreate
	if input.ID != nil {
		required = PermRolesUpdate
	}
	sc, _, err := e.authorize(ctx, actor, required)
	if err != nil {
		return nil, err
	}

	if code := sc.checkRole(input.Scope, input.TenantID); code != "" {
		return nil, NewError(code)
	}
	if input.ID == nil && e.policy.IsProtectedRoleKey(input.Key) {
		return nil, NewError(CodeCannotCreateProtectedRole)
	}

	permissionIDs := dedupeIDs(input.PermissionIDs)
	role := &Role{
		TenantID: sc.roleTenantID(),
		Key:      input.Key,
		Name:     input.Name,
		Scope:    sc.roleScope(),
	}
	mode := ModeCreated

	err = e.store.WithTx(ctx, e.config.RoleSyncTimeout, func(ctx context.Context, tx *sql.Tx) error {
		if input.ID != nil {
			mode = ModeUpdated
			existing, err := e.store.getRole(ctx, tx, *input.ID, true)
			if err != nil {
				return err
			}
			if existing == nil {
				return NewError(CodeRoleNotFound)
			}
			if code := sc.checkRole(existing.Scope, existing.TenantID); code != "" {
				return NewError(code)
			}
			protected := e.policy.IsProtectedRoleKey(existing.Key)
			if protected && input.Key != existing.Key {
				return NewError(CodeCannotChangeProtectedKey)
			}
			if !protected && e.policy.IsProtectedRoleKey(input.Key) {
				return NewError(CodeCannotCreateProtectedRole)
			}
			role.ID = existing.ID
			role.CreatedAt = existing.CreatedAt
		}

		other, err := e.store.getRoleByKey(ctx, tx, role.TenantID, role.Key)
		if err != nil {
			return err
		}
		if other != nil && other.ID != role.ID {
			return NewError(CodeRoleKeyInUse)
		}

		if err := e.requirePermissions(ctx, tx, permissionIDs); err != nil {
			return err
		}

		if mode == ModeCreated {
			err = e.store.insertRole(ctx, tx, role)
		} else {
			err = e.store.updateRole(ctx, tx, role)
		}
		if err != nil {
			if isUniqueViolation(err) {
				return wrapError(CodeRoleKeyInUse, err)
			}
			return err
		}

		return e.store.replaceRolePermissions(ctx, tx, role.ID, permissionIDs)
	})
	if err != nil {
		// A concurrent writer can win the race after our re-check; the unique
		// index then fails at commit and means the same thing.
		if CodeOf(err) == "" && isUniqueViolation(err) {
			return nil, wrapError(CodeRoleKeyInUse, err)
		}
		return nil, err
	}

	eventType := audit.EventTypeRoleCreate
	if mode == ModeUpdated {
		eventType = audit.EventTypeRoleUpdate
	}
	e.committed(ctx, actor, eventType, audit.ResourceTypeRole, role.ID, "role "+string(mode), map[string]interface{}{
		"key":            role.Key,
		"permission_ids": permissionIDs,
	})

	return &SaveResult{Mode: mode, ID: role.ID}, nil
}

// requirePermissions fails with PERMISSION_NOT_FOUND unless every id exists
func (e *Engine) requirePermissions(ctx context.Context, tx *sql.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := e.store.permissionsByIDs(ctx, tx, ids)
	if err != nil {
		return err
	}
	if len(found) != len(ids) {
		return NewError(CodePermissionNotFound)
	}
	return nil
}

// roleBlockReason returns why a role cannot be deleted from the scope, or ""
func (e *Engine) roleBlockReason(sc operatingScope, role *Role) Code {
	if code := sc.checkRole(role.Scope, role.TenantID); code != "" {
		return code
	}
	if e.policy.IsProtectedRoleKey(role.Key) {
		return CodeCannotDeleteProtectedRole
	}
	return ""
}

// DeleteRole deletes one role. Memberships holding it are left without a role.
func (e *Engine) DeleteRole(ctx context.Context, actor Actor, id int64) (err error) {
	ctx, span, start := e.begin(ctx, "delete_role", actor)
	defer func() { e.end(span, "delete_role", start, err) }()

	sc, _, err := e.authorize(ctx, actor, PermRolesDelete)
	if err != nil {
		return err
	}

	var key string
	err = e.store.WithTx(ctx, e.config.MutationTimeout, func(ctx context.Context, tx *sql.Tx) error {
		role, err := e.store.getRole(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if role == nil {
			return NewError(CodeRoleNotFound)
		}
		if code := e.roleBlockReason(sc, role); code != "" {
			return NewError(code)
		}
		key = role.Key
		return e.store.deleteRoles(ctx, tx, []int64{id})
	})
	if err != nil {
		return err
	}

	e.committed(ctx, actor, audit.EventTypeRoleDelete, audit.ResourceTypeRole, id, "role deleted", map[string]interface{}{
		"key": key,
	})
	return nil
}

// DeleteRoles deletes every deletable role in ids and reports the rest as blocked
func (e *Engine) DeleteRoles(ctx context.Context, actor Actor, ids []int64) (res *BulkResult, err error) {
	ctx, span, start := e.begin(ctx, "bulk_delete_roles", actor)
	defer func() { e.end(span, "bulk_delete_roles", start, err) }()

	sc, _, err := e.authorize(ctx, actor, PermRolesDelete)
	if err != nil {
		return nil, err
	}

	res, err = runBulk(ctx, e.store, e.config.BulkTimeout, ids, bulkPlan[*Role]{
		load: func(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*Role, error) {
			return e.store.rolesByIDs(ctx, tx, ids)
		},
		check: func(_ context.Context, _ *sql.Tx, _ int64, role *Role, _ []int64) (Code, error) {
			return e.roleBlockReason(sc, role), nil
		},
		execute: func(ctx context.Context, tx *sql.Tx, ids []int64) error {
			return e.store.deleteRoles(ctx, tx, ids)
		},
	})
	if err != nil {
		return nil, err
	}

	e.recordBulk(ctx, actor, "roles", audit.EventTypeRoleDelete, audit.ResourceTypeRole, res)
	return res, nil
}

// GetRolePermissionIDs returns the permission ids of a role visible in the actor's scope
func (e *Engine) GetRolePermissionIDs(ctx context.Context, actor Actor, roleID int64) ([]int64, error) {
	sc, _, err := e.authorize(ctx, actor, PermRolesView)
	if err != nil {
		return nil, err
	}

	role, err := e.store.getRole(ctx, e.store.db, roleID, false)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, NewError(CodeRoleNotFound)
	}
	if code := sc.checkRole(role.Scope, role.TenantID); code != "" {
		return nil, NewError(code)
	}
	return e.store.rolePermissionIDs(ctx, e.store.db, roleID)
}

// ListRoles lists the roles owned by the actor's scope
func (e *Engine) ListRoles(ctx context.Context, actor Actor) ([]Role, error) {
	sc, _, err := e.authorize(ctx, actor, PermRolesView)
	if err != nil {
		return nil, err
	}
	return e.store.ListRoles(ctx, sc.roleTenantID())
}

// recordBulk runs the post-commit side effects of a bulk delete
func (e *Engine) recordBulk(ctx context.Context, actor Actor, kind string, eventType audit.EventType, resource audit.ResourceType, res *BulkResult) {
	e.metrics.RecordBulk(kind, res.DeletedCount, res.BlockedCount)
	for _, b := range res.Blocked {
		e.log.WithField("id", b.ID).WithField("reason", b.Reason).Debugf("bulk delete of %s blocked", kind)
	}
	if res.DeletedCount == 0 {
		return
	}
	e.committed(ctx, actor, eventType, resource, 0, "bulk delete of "+kind, map[string]interface{}{
		"deleted_ids":   res.DeletedIDs,
		"blocked_count": res.BlockedCount,
	})
}
