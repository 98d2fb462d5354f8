package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/notify"
)

// CreateOrUpdateMembership onboards a user into the actor's tenant or reassigns
// their role there. Unknown emails create a new user. The membership always ends ACTIVE.
func (e *Engine) CreateOrUpdateMembership(ctx context.Context, actor Actor, input MembershipInput) (res *MembershipResult, err error) {
	ctx, span, start := e.begin(ctx, "save_membership", actor)
	defer func() { e.end(span, "save_membership", start, err) }()

	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.RoleID <= 0 || input.TenantID <= 0 || (input.UserID == nil && input.Email == "") {
		return nil, NewError(CodeInvalidInput)
	}

	sc, perms, err := e.authorize(ctx, actor, PermUsersCreate, PermUsersUpdate)
	if err != nil {
		return nil, err
	}
	if input.TenantID != sc.TenantID {
		return nil, NewError(CodeTenantMismatch)
	}

	var (
		user    *User
		role    *Role
		mode    = ModeCreated
		oldRole *int64
	)

	err = e.store.WithTx(ctx, e.config.MutationTimeout, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		role, err = e.store.getRole(ctx, tx, input.RoleID, true)
		if err != nil {
			return err
		}
		if role == nil {
			return NewError(CodeRoleNotFound)
		}
		if code := sc.checkRole(role.Scope, role.TenantID); code != "" {
			return NewError(code)
		}

		user, err = e.resolveUser(ctx, tx, sc, input)
		if err != nil {
			return err
		}

		var existing *Membership
		if user.ID != 0 {
			existing, err = e.store.getMembership(ctx, tx, sc.TenantID, user.ID, true)
			if err != nil {
				return err
			}
		}

		required := PermUsersCreate
		if existing != nil {
			required = PermUsersUpdate
			mode = ModeUpdated
		}
		if !e.policy.HasAny(perms, required) {
			return NewError(CodeForbidden)
		}

		if e.policy.IsProtectedRoleKey(role.Key) {
			holders, err := e.store.countActiveHolders(ctx, tx, role.ID, excludeUser(user.ID))
			if err != nil {
				return err
			}
			if holders > 0 {
				return NewError(CodeProtectedRoleAlreadyAssigned)
			}
		}

		if existing != nil && existing.Status == MembershipActive && existing.RoleID != nil && *existing.RoleID != role.ID {
			code, err := e.lastHolderCheck(ctx, tx, *existing.RoleID, []int64{user.ID}, CodeCannotReassignLastUser)
			if err != nil {
				return err
			}
			if code != "" {
				return NewError(code)
			}
		}

		if user.ID == 0 {
			user.IsActive = true
			if err := e.store.insertUser(ctx, tx, user); err != nil {
				if isUniqueViolation(err) {
					return wrapError(CodeEmailInUse, err)
				}
				return err
			}
		}

		roleID := role.ID
		if existing == nil {
			m := &Membership{TenantID: sc.TenantID, UserID: user.ID, RoleID: &roleID, Status: MembershipActive}
			if err := e.store.insertMembership(ctx, tx, m); err != nil {
				if isUniqueViolation(err) {
					return wrapError(CodeMembershipExists, err)
				}
				return fmt.Errorf("failed to insert membership: %w", err)
			}
		} else {
			oldRole = existing.RoleID
			existing.RoleID = &roleID
			existing.Status = MembershipActive
			if err := e.store.updateMembership(ctx, tx, existing); err != nil {
				return err
			}
		}

		return e.store.setUserActive(ctx, tx, user.ID, true)
	})
	if err != nil {
		return nil, err
	}

	eventType := audit.EventTypeMembershipCreate
	notifyType := notify.EventMembershipCreated
	if mode == ModeUpdated {
		eventType = audit.EventTypeMembershipUpdate
		notifyType = notify.EventMembershipUpdated
	}
	e.committed(ctx, actor, eventType, audit.ResourceTypeMembership, user.ID, "membership "+string(mode), map[string]interface{}{
		"tenant_id":     sc.TenantID,
		"role_id":       role.ID,
		"previous_role": oldRole,
	})
	e.dispatch(ctx, notify.Event{
		Type:       notifyType,
		TenantID:   sc.TenantID,
		UserID:     user.ID,
		Email:      user.Email,
		RoleKey:    role.Key,
		OccurredAt: time.Now().UTC(),
	})

	return &MembershipResult{UserID: user.ID, Mode: mode}, nil
}

// resolveUser finds the target user by id or email. A user that does not
// exist yet is returned with a zero ID and is inserted by the caller.
// Outside the central scope the email of a user who also belongs to other
// tenants cannot be changed.
func (e *Engine) resolveUser(ctx context.Context, tx *sql.Tx, sc operatingScope, input MembershipInput) (*User, error) {
	if input.UserID != nil {
		user, err := e.store.getUser(ctx, tx, *input.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, NewError(CodeUserNotFound)
		}
		if input.Email != "" && input.Email != user.Email {
			if !sc.Central {
				elsewhere, err := e.store.countUserMemberships(ctx, tx, user.ID, sc.TenantID)
				if err != nil {
					return nil, err
				}
				if elsewhere > 0 {
					return nil, NewError(CodeForbidden)
				}
			}
			other, err := e.store.getUserByEmail(ctx, tx, input.Email)
			if err != nil {
				return nil, err
			}
			if other != nil {
				return nil, NewError(CodeEmailInUse)
			}
			if err := e.store.updateUserEmail(ctx, tx, user.ID, input.Email); err != nil {
				if isUniqueViolation(err) {
					return nil, wrapError(CodeEmailInUse, err)
				}
				return nil, err
			}
			user.Email = input.Email
		}
		return user, nil
	}

	user, err := e.store.getUserByEmail(ctx, tx, input.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return &User{Email: input.Email}, nil
	}
	return user, nil
}

func excludeUser(userID int64) []int64 {
	if userID == 0 {
		return nil
	}
	return []int64{userID}
}

// lastHolderCheck returns code when roleID is protected and nobody outside
// excluded would still actively hold it
func (e *Engine) lastHolderCheck(ctx context.Context, tx *sql.Tx, roleID int64, excluded []int64, code Code) (Code, error) {
	role, err := e.store.getRole(ctx, tx, roleID, false)
	if err != nil {
		return "", err
	}
	if role == nil || !e.policy.IsProtectedRoleKey(role.Key) {
		return "", nil
	}
	holders, err := e.store.countActiveHolders(ctx, tx, roleID, excluded)
	if err != nil {
		return "", err
	}
	if holders == 0 {
		return code, nil
	}
	return "", nil
}

// lastAdminCheck applies last-admin-standing to an ACTIVE membership that is
// about to be removed or disabled along with every membership in excluded.
func (e *Engine) lastAdminCheck(ctx context.Context, tx *sql.Tx, m *Membership, excluded []int64, code Code) (Code, error) {
	if m.Status != MembershipActive {
		return "", nil
	}
	if m.RoleID != nil {
		c, err := e.lastHolderCheck(ctx, tx, *m.RoleID, excluded, code)
		if err != nil || c != "" {
			return c, err
		}
	}
	members, err := e.store.countActiveMembers(ctx, tx, m.TenantID, excluded)
	if err != nil {
		return "", err
	}
	if members == 0 {
		return code, nil
	}
	return "", nil
}

// removeMembership deletes the membership. The user goes with it when no
// membership is left, or when an ACTIVE membership was removed and no other
// ACTIVE one remains. It reports whether the user was deleted.
func (e *Engine) removeMembership(ctx context.Context, tx *sql.Tx, m *Membership) (bool, error) {
	if err := e.store.deleteMembershipRow(ctx, tx, m.ID); err != nil {
		return false, err
	}
	active, err := e.store.countUserActiveMemberships(ctx, tx, m.UserID)
	if err != nil {
		return false, err
	}
	left, err := e.store.countUserMemberships(ctx, tx, m.UserID, 0)
	if err != nil {
		return false, err
	}
	if left > 0 && (active > 0 || m.Status != MembershipActive) {
		return false, e.store.setUserActive(ctx, tx, m.UserID, active > 0)
	}
	if err := e.store.deleteUser(ctx, tx, m.UserID); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteMembership removes a user from the tenant
func (e *Engine) DeleteMembership(ctx context.Context, actor Actor, userID, tenantID int64) (res *DeleteMembershipResult, err error) {
	ctx, span, start := e.begin(ctx, "delete_membership", actor)
	defer func() { e.end(span, "delete_membership", start, err) }()

	if actor.UserID > 0 && userID == actor.UserID {
		return nil, NewError(CodeCannotDeleteSelf)
	}
	sc, _, err := e.authorize(ctx, actor, PermUsersDelete)
	if err != nil {
		return nil, err
	}
	if tenantID != sc.TenantID {
		return nil, NewError(CodeTenantMismatch)
	}

	res = &DeleteMembershipResult{UserID: userID}
	err = e.store.WithTx(ctx, e.config.MutationTimeout, func(ctx context.Context, tx *sql.Tx) error {
		m, err := e.store.getMembership(ctx, tx, tenantID, userID, true)
		if err != nil {
			return err
		}
		if m == nil {
			return NewError(CodeMembershipNotFound)
		}
		code, err := e.lastAdminCheck(ctx, tx, m, []int64{userID}, CodeCannotDeleteLastUser)
		if err != nil {
			return err
		}
		if code != "" {
			return NewError(code)
		}
		res.UserDeleted, err = e.removeMembership(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.committed(ctx, actor, audit.EventTypeMembershipDelete, audit.ResourceTypeMembership, userID, "membership deleted", map[string]interface{}{
		"tenant_id":    tenantID,
		"user_deleted": res.UserDeleted,
	})
	return res, nil
}

// DeleteMemberships removes several users from the actor's tenant. Each
// candidate is checked against the memberships already accepted in the batch.
func (e *Engine) DeleteMemberships(ctx context.Context, actor Actor, userIDs []int64) (res *BulkResult, err error) {
	ctx, span, start := e.begin(ctx, "bulk_delete_memberships", actor)
	defer func() { e.end(span, "bulk_delete_memberships", start, err) }()

	sc, _, err := e.authorize(ctx, actor, PermUsersDelete)
	if err != nil {
		return nil, err
	}

	var memberships map[int64]*Membership
	res, err = runBulk(ctx, e.store, e.config.BulkTimeout, userIDs, bulkPlan[*Membership]{
		load: func(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*Membership, error) {
			var err error
			memberships, err = e.store.membershipsByUsers(ctx, tx, sc.TenantID, ids)
			return memberships, err
		},
		check: func(ctx context.Context, tx *sql.Tx, id int64, m *Membership, accepted []int64) (Code, error) {
			if id == actor.UserID {
				return CodeCannotDeleteSelf, nil
			}
			excluded := append(append([]int64{}, accepted...), id)
			return e.lastAdminCheck(ctx, tx, m, excluded, CodeCannotDeleteLastUser)
		},
		execute: func(ctx context.Context, tx *sql.Tx, ids []int64) error {
			for _, id := range ids {
				if _, err := e.removeMembership(ctx, tx, memberships[id]); err != nil {
					return err
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	e.recordBulk(ctx, actor, "memberships", audit.EventTypeMembershipDelete, audit.ResourceTypeMembership, res)
	return res, nil
}

// ToggleActive activates or disables the user's membership in the actor's tenant
func (e *Engine) ToggleActive(ctx context.Context, actor Actor, userID int64, active bool) (res *ToggleResult, err error) {
	ctx, span, start := e.begin(ctx, "toggle_membership", actor)
	defer func() { e.end(span, "toggle_membership", start, err) }()

	if !active && actor.UserID > 0 && userID == actor.UserID {
		return nil, NewError(CodeCannotDeactivateSelf)
	}
	sc, _, err := e.authorize(ctx, actor, PermUsersUpdate)
	if err != nil {
		return nil, err
	}

	changed := false
	err = e.store.WithTx(ctx, e.config.MutationTimeout, func(ctx context.Context, tx *sql.Tx) error {
		m, err := e.store.getMembership(ctx, tx, sc.TenantID, userID, true)
		if err != nil {
			return err
		}
		if m == nil {
			return NewError(CodeMembershipNotFound)
		}

		if active {
			if m.Status == MembershipActive {
				return nil
			}
			if m.RoleID != nil {
				role, err := e.store.getRole(ctx, tx, *m.RoleID, true)
				if err != nil {
					return err
				}
				if role != nil && e.policy.IsProtectedRoleKey(role.Key) {
					holders, err := e.store.countActiveHolders(ctx, tx, role.ID, []int64{userID})
					if err != nil {
						return err
					}
					if holders > 0 {
						return NewError(CodeProtectedRoleAlreadyAssigned)
					}
				}
			}
			m.Status = MembershipActive
		} else {
			if m.Status == MembershipDisabled {
				return nil
			}
			code, err := e.lastAdminCheck(ctx, tx, m, []int64{userID}, CodeCannotDeactivateLastUser)
			if err != nil {
				return err
			}
			if code != "" {
				return NewError(code)
			}
			m.Status = MembershipDisabled
		}

		if err := e.store.updateMembership(ctx, tx, m); err != nil {
			return err
		}
		changed = true

		remaining, err := e.store.countUserActiveMemberships(ctx, tx, userID)
		if err != nil {
			return err
		}
		return e.store.setUserActive(ctx, tx, userID, remaining > 0)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		eventType := audit.EventTypeMembershipDisable
		if active {
			eventType = audit.EventTypeMembershipActivate
		}
		e.committed(ctx, actor, eventType, audit.ResourceTypeMembership, userID, "membership status changed", map[string]interface{}{
			"tenant_id": sc.TenantID,
			"active":    active,
		})
	}
	return &ToggleResult{UserID: userID, IsActive: active}, nil
}

// ListMemberships lists the memberships of the actor's tenant
func (e *Engine) ListMemberships(ctx context.Context, actor Actor) ([]MemberView, error) {
	sc, _, err := e.authorize(ctx, actor, PermUsersView)
	if err != nil {
		return nil, err
	}
	return e.store.ListMemberships(ctx, sc.TenantID)
}
