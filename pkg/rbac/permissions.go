package rbac

import (
	"context"
	"database/sql"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/audit"
)

// authorizeCentral authorizes a permission mutation. Permissions are global,
// so they can only be managed from the central scope.
func (e *Engine) authorizeCentral(ctx context.Context, actor Actor, required string) error {
	sc, _, err := e.authorize(ctx, actor, required)
	if err != nil {
		return err
	}
	if !sc.Central {
		return NewError(CodeScopeMismatch)
	}
	return nil
}

// CreateOrUpdatePermission creates a permission when input.ID is nil and updates it otherwise
func (e *Engine) CreateOrUpdatePermission(ctx context.Context, actor Actor, input PermissionInput) (res *SaveResult, err error) {
	ctx, span, start := e.begin(ctx, "save_permission", actor)
	defer func() { e.end(span, "save_permission", start, err) }()

	input.Key = strings.TrimSpace(input.Key)
	input.Name = strings.TrimSpace(input.Name)
	if input.Key == "" || input.Name == "" {
		return nil, NewError(CodeInvalidInput)
	}

	required := PermPermissionsCreate
	if input.ID != nil {
		required = PermPermissionsUpdate
	}
	if err := e.authorizeCentral(ctx, actor, required); err != nil {
		return nil, err
	}

	if e.policy.IsSystemPermissionKey(input.Key) {
		return nil, NewError(CodeKeyReservedForSystem)
	}

	perm := &Permission{Key: input.Key, Name: input.Name}
	mode := ModeCreated

	err = e.store.WithTx(ctx, e.config.MutationTimeout, func(ctx context.Context, tx *sql.Tx) error {
		if input.ID != nil {
			mode = ModeUpdated
			existing, err := e.store.getPermission(ctx, tx, *input.ID, true)
			if err != nil {
				return err
			}
			if existing == nil {
				return NewError(CodePermissionNotFound)
			}
			if e.policy.IsSystemPermissionKey(existing.Key) {
				return NewError(CodeKeyReservedForSystem)
			}
			perm.ID = existing.ID
			perm.CreatedAt = existing.CreatedAt
		}

		other, err := e.store.getPermissionByKey(ctx, tx, perm.Key)
		if err != nil {
			return err
		}
		if other != nil && other.ID != perm.ID {
			return NewError(CodePermissionKeyInUse)
		}

		if mode == ModeCreated {
			err = e.store.insertPermission(ctx, tx, perm)
		} else {
			err = e.store.updatePermission(ctx, tx, perm)
		}
		if err != nil && isUniqueViolation(err) {
			return wrapError(CodePermissionKeyInUse, err)
		}
		return err
	})
	if err != nil {
		if CodeOf(err) == "" && isUniqueViolation(err) {
			return nil, wrapError(CodePermissionKeyInUse, err)
		}
		return nil, err
	}

	eventType := audit.EventTypePermissionCreate
	if mode == ModeUpdated {
		eventType = audit.EventTypePermissionUpdate
	}
	e.committed(ctx, actor, eventType, audit.ResourceTypePermission, perm.ID, "permission "+string(mode), map[string]interface{}{
		"key": perm.Key,
	})

	return &SaveResult{Mode: mode, ID: perm.ID}, nil
}

// permissionBlockReason returns why a permission cannot be deleted, or ""
func (e *Engine) permissionBlockReason(p *Permission, refs int) Code {
	if e.policy.IsSystemPermissionKey(p.Key) {
		return CodeCannotDeleteSystemPermission
	}
	if refs > 0 {
		return CodePermissionInUse
	}
	return ""
}

// DeletePermission deletes one permission that is neither a system key nor referenced by a role
func (e *Engine) DeletePermission(ctx context.Context, actor Actor, id int64) (err error) {
	ctx, span, start := e.begin(ctx, "delete_permission", actor)
	defer func() { e.end(span, "delete_permission", start, err) }()

	if err := e.authorizeCentral(ctx, actor, PermPermissionsDelete); err != nil {
		return err
	}

	var key string
	err = e.store.WithTx(ctx, e.config.MutationTimeout, func(ctx context.Context, tx *sql.Tx) error {
		p, err := e.store.getPermission(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if p == nil {
			return NewError(CodePermissionNotFound)
		}
		refs, err := e.store.permissionRefCounts(ctx, tx, []int64{id})
		if err != nil {
			return err
		}
		if code := e.permissionBlockReason(p, refs[id]); code != "" {
			return NewError(code)
		}
		key = p.Key
		return e.store.deletePermissions(ctx, tx, []int64{id})
	})
	if err != nil {
		return err
	}

	e.committed(ctx, actor, audit.EventTypePermissionDelete, audit.ResourceTypePermission, id, "permission deleted", map[string]interface{}{
		"key": key,
	})
	return nil
}

// DeletePermissions deletes every deletable permission in ids and reports the rest as blocked
func (e *Engine) DeletePermissions(ctx context.Context, actor Actor, ids []int64) (res *BulkResult, err error) {
	ctx, span, start := e.begin(ctx, "bulk_delete_permissions", actor)
	defer func() { e.end(span, "bulk_delete_permissions", start, err) }()

	if err := e.authorizeCentral(ctx, actor, PermPermissionsDelete); err != nil {
		return nil, err
	}

	var refs map[int64]int
	res, err = runBulk(ctx, e.store, e.config.BulkTimeout, ids, bulkPlan[*Permission]{
		load: func(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*Permission, error) {
			perms, err := e.store.permissionsByIDs(ctx, tx, ids)
			if err != nil {
				return nil, err
			}
			refs, err = e.store.permissionRefCounts(ctx, tx, ids)
			if err != nil {
				return nil, err
			}
			return perms, nil
		},
		check: func(_ context.Context, _ *sql.Tx, id int64, p *Permission, _ []int64) (Code, error) {
			return e.permissionBlockReason(p, refs[id]), nil
		},
		execute: func(ctx context.Context, tx *sql.Tx, ids []int64) error {
			return e.store.deletePermissions(ctx, tx, ids)
		},
	})
	if err != nil {
		return nil, err
	}

	e.recordBulk(ctx, actor, "permissions", audit.EventTypePermissionDelete, audit.ResourceTypePermission, res)
	return res, nil
}

// ListPermissions lists every permission. Any scope may read them.
func (e *Engine) ListPermissions(ctx context.Context, actor Actor) ([]Permission, error) {
	if _, _, err := e.authorize(ctx, actor, PermPermissionsView, PermRolesView); err != nil {
		return nil, err
	}
	return e.store.ListPermissions(ctx)
}
