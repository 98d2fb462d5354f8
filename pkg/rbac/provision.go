package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/tenants"
)

// builtinPermissions is the catalogue every installation starts with
var builtinPermissions = []Permission{
	{Key: PermRolesView, Name: "View roles"},
	{Key: PermRolesCreate, Name: "Create roles"},
	{Key: PermRolesUpdate, Name: "Update roles"},
	{Key: PermRolesDelete, Name: "Delete roles"},
	{Key: PermPermissionsView, Name: "View permissions"},
	{Key: PermPermissionsCreate, Name: "Create permissions"},
	{Key: PermPermissionsUpdate, Name: "Update permissions"},
	{Key: PermPermissionsDelete, Name: "Delete permissions"},
	{Key: PermUsersView, Name: "View users"},
	{Key: PermUsersCreate, Name: "Create users"},
	{Key: PermUsersUpdate, Name: "Update users"},
	{Key: PermUsersDelete, Name: "Delete users"},
	{Key: PermManageSecurity, Name: "Manage security"},
	{Key: PermManageRoles, Name: "Manage roles"},
	{Key: PermManageUsers, Name: "Manage users"},
	{Key: PermManageTenants, Name: "Manage tenants"},
	{Key: PermAccessAdminPanel, Name: "Access admin panel"},
}

// tenantSuperadminKeys are granted to the superadmin role of every customer tenant
var tenantSuperadminKeys = []string{
	PermRolesView, PermRolesCreate, PermRolesUpdate, PermRolesDelete,
	PermPermissionsView,
	PermUsersView, PermUsersCreate, PermUsersUpdate, PermUsersDelete,
	PermManageRoles, PermManageUsers, PermAccessAdminPanel,
}

// ErrTenantExists is returned when provisioning a slug that is already taken
var ErrTenantExists = errors.New("tenant already exists")

// Provisioner creates the central tenant, the built-in permissions and the
// protected superadmin roles. It is the only writer allowed to create
// protected roles and it performs no permission checks, so it must only be
// reachable from operator tooling.
type Provisioner struct {
	engine *Engine
}

// NewProvisioner creates a provisioner that shares the engine's store and side effects
func NewProvisioner(e *Engine) *Provisioner {
	return &Provisioner{engine: e}
}

// BootstrapOptions controls Bootstrap
type BootstrapOptions struct {
	CentralName string
	AdminEmail  string
}

// BootstrapResult describes the provisioned central scope
type BootstrapResult struct {
	CentralTenantID int64   `json:"central_tenant_id"`
	RoleID          int64   `json:"role_id"`
	PermissionIDs   []int64 `json:"permission_ids"`
	AdminUserID     int64   `json:"admin_user_id,omitempty"`
}

// Bootstrap makes sure the central tenant, every built-in permission and the
// central_superadmin role exist, and optionally assigns that role to AdminEmail.
// Running it again is safe: missing rows are added, existing ones are kept.
func (p *Provisioner) Bootstrap(ctx context.Context, opts BootstrapOptions) (*BootstrapResult, error) {
	e := p.engine
	slug := e.config.CentralTenantSlug
	name := strings.TrimSpace(opts.CentralName)
	if name == "" {
		name = "Central"
	}

	res := &BootstrapResult{}
	err := e.store.WithTx(ctx, e.config.RoleSyncTimeout, func(ctx context.Context, tx *sql.Tx) error {
		ts := tenants.NewStore(e.store.db).WithTx(tx)
		central, err := ts.GetBySlug(ctx, slug)
		if errors.Is(err, tenants.ErrNotFound) {
			central = &tenants.Tenant{Slug: slug, Name: name}
			err = ts.Create(ctx, central)
		}
		if err != nil {
			return err
		}
		res.CentralTenantID = central.ID

		res.PermissionIDs, err = p.ensurePermissions(ctx, tx, builtinPermissions)
		if err != nil {
			return err
		}

		role, err := p.ensureRole(ctx, tx, nil, ScopeCentral, RoleCentralSuperadmin, "Central Superadmin")
		if err != nil {
			return err
		}
		res.RoleID = role.ID
		if err := p.grant(ctx, tx, role.ID, res.PermissionIDs); err != nil {
			return err
		}

		if opts.AdminEmail != "" {
			res.AdminUserID, err = p.assignProtected(ctx, tx, central.ID, opts.AdminEmail, role.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap: %w", err)
	}

	e.centralID.Store(res.CentralTenantID)
	p.record(ctx, audit.EventTypeProvision, audit.ResourceTypeTenant, res.CentralTenantID, "central scope provisioned", map[string]interface{}{
		"slug":          slug,
		"role_id":       res.RoleID,
		"admin_user_id": res.AdminUserID,
	})
	return res, nil
}

// TenantOptions describes a customer tenant to provision
type TenantOptions struct {
	Slug       string
	Name       string
	Host       string
	AdminEmail string
}

// TenantResult describes a provisioned customer tenant
type TenantResult struct {
	Tenant      *tenants.Tenant `json:"tenant"`
	RoleID      int64           `json:"role_id"`
	AdminUserID int64           `json:"admin_user_id,omitempty"`
}

// ProvisionTenant creates a customer tenant together with its tenant_superadmin
// role and, when AdminEmail is set, the tenant's first administrator.
func (p *Provisioner) ProvisionTenant(ctx context.Context, opts TenantOptions) (*TenantResult, error) {
	e := p.engine
	t := &tenants.Tenant{
		Slug: strings.ToLower(strings.TrimSpace(opts.Slug)),
		Name: strings.TrimSpace(opts.Name),
		Host: strings.TrimSpace(opts.Host),
	}
	if t.Slug == "" {
		t.Slug = tenants.GenerateSlug(t.Name)
	}
	if t.Slug == "" || t.Name == "" {
		return nil, NewError(CodeInvalidInput)
	}
	if t.Slug == e.config.CentralTenantSlug {
		return nil, fmt.Errorf("%w: %s is the central tenant", ErrTenantExists, t.Slug)
	}

	res := &TenantResult{Tenant: t}
	err := e.store.WithTx(ctx, e.config.RoleSyncTimeout, func(ctx context.Context, tx *sql.Tx) error {
		ts := tenants.NewStore(e.store.db).WithTx(tx)
		if _, err := ts.GetBySlug(ctx, t.Slug); err == nil {
			return fmt.Errorf("%w: %s", ErrTenantExists, t.Slug)
		} else if !errors.Is(err, tenants.ErrNotFound) {
			return err
		}
		if err := ts.Create(ctx, t); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrTenantExists, t.Slug)
			}
			return err
		}

		perms, err := p.ensurePermissions(ctx, tx, permissionsByKey(tenantSuperadminKeys))
		if err != nil {
			return err
		}
		tenantID := t.ID
		role, err := p.ensureRole(ctx, tx, &tenantID, ScopeTenant, RoleTenantSuperadmin, "Tenant Superadmin")
		if err != nil {
			return err
		}
		res.RoleID = role.ID
		if err := p.grant(ctx, tx, role.ID, perms); err != nil {
			return err
		}

		if opts.AdminEmail != "" {
			res.AdminUserID, err = p.assignProtected(ctx, tx, t.ID, opts.AdminEmail, role.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.record(ctx, audit.EventTypeTenantCreate, audit.ResourceTypeTenant, t.ID, "tenant provisioned", map[string]interface{}{
		"slug":          t.Slug,
		"role_id":       res.RoleID,
		"admin_user_id": res.AdminUserID,
	})
	return res, nil
}

// SetTenantStatus suspends or reactivates a customer tenant. Members of a
// suspended tenant resolve to no permissions in it. The central tenant
// cannot be suspended.
func (p *Provisioner) SetTenantStatus(ctx context.Context, tenantID int64, status tenants.Status) error {
	e := p.engine
	if status != tenants.StatusActive && status != tenants.StatusSuspended {
		return NewError(CodeInvalidInput)
	}
	centralID, err := e.CentralTenantID(ctx)
	if err != nil {
		return err
	}
	if tenantID == centralID {
		return NewError(CodeScopeMismatch)
	}

	if err := tenants.NewStore(e.store.db).SetStatus(ctx, tenantID, status); err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return NewError(CodeNotFound)
		}
		return err
	}

	eventType := audit.EventTypeTenantSuspend
	if status == tenants.StatusActive {
		eventType = audit.EventTypeTenantActivate
	}
	p.record(ctx, eventType, audit.ResourceTypeTenant, tenantID, "tenant status changed", map[string]interface{}{
		"status": string(status),
	})
	return nil
}

func permissionsByKey(keys []string) []Permission {
	out := make([]Permission, 0, len(keys))
	for _, key := range keys {
		for _, p := range builtinPermissions {
			if p.Key == key {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// ensurePermissions returns the ids of the given permissions, inserting the missing ones
func (p *Provisioner) ensurePermissions(ctx context.Context, tx *sql.Tx, perms []Permission) ([]int64, error) {
	ids := make([]int64, 0, len(perms))
	for _, want := range perms {
		existing, err := p.engine.store.getPermissionByKey(ctx, tx, want.Key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			ids = append(ids, existing.ID)
			continue
		}
		perm := want
		if err := p.engine.store.insertPermission(ctx, tx, &perm); err != nil {
			return nil, fmt.Errorf("failed to create permission %s: %w", want.Key, err)
		}
		ids = append(ids, perm.ID)
	}
	return ids, nil
}

func (p *Provisioner) ensureRole(ctx context.Context, tx *sql.Tx, tenantID *int64, scope RoleScope, key, name string) (*Role, error) {
	role, err := p.engine.store.getRoleByKey(ctx, tx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if role != nil {
		return role, nil
	}
	role = &Role{TenantID: tenantID, Key: key, Name: name, Scope: scope}
	if err := p.engine.store.insertRole(ctx, tx, role); err != nil {
		return nil, fmt.Errorf("failed to create role %s: %w", key, err)
	}
	return role, nil
}

// grant adds permissionIDs to the role's set without removing anything already granted
func (p *Provisioner) grant(ctx context.Context, tx *sql.Tx, roleID int64, permissionIDs []int64) error {
	current, err := p.engine.store.rolePermissionIDs(ctx, tx, roleID)
	if err != nil {
		return err
	}
	merged := sortIDs(dedupeIDs(append(current, permissionIDs...)))
	if len(merged) == len(current) {
		return nil
	}
	return p.engine.store.replaceRolePermissions(ctx, tx, roleID, merged)
}

// assignProtected gives the user with email an ACTIVE membership holding roleID,
// creating the user when needed. The role keeps at most one active holder.
func (p *Provisioner) assignProtected(ctx context.Context, tx *sql.Tx, tenantID int64, email string, roleID int64) (int64, error) {
	store := p.engine.store
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := store.getUserByEmail(ctx, tx, email)
	if err != nil {
		return 0, err
	}
	if user == nil {
		user = &User{Email: email, IsActive: true}
		if err := store.insertUser(ctx, tx, user); err != nil {
			return 0, fmt.Errorf("failed to create user: %w", err)
		}
	}

	holders, err := store.countActiveHolders(ctx, tx, roleID, []int64{user.ID})
	if err != nil {
		return 0, err
	}
	if holders > 0 {
		return 0, NewError(CodeProtectedRoleAlreadyAssigned)
	}

	m, err := store.getMembership(ctx, tx, tenantID, user.ID, true)
	if err != nil {
		return 0, err
	}
	if m == nil {
		m = &Membership{TenantID: tenantID, UserID: user.ID, RoleID: &roleID, Status: MembershipActive}
		if err := store.insertMembership(ctx, tx, m); err != nil {
			return 0, fmt.Errorf("failed to create membership: %w", err)
		}
	} else {
		m.RoleID = &roleID
		m.Status = MembershipActive
		if err := store.updateMembership(ctx, tx, m); err != nil {
			return 0, err
		}
	}

	if err := store.setUserActive(ctx, tx, user.ID, true); err != nil {
		return 0, err
	}
	return user.ID, nil
}

// record writes the audit trail of a provisioning step. Provisioning has no
// acting user, so the event carries no actor.
func (p *Provisioner) record(ctx context.Context, eventType audit.EventType, resource audit.ResourceType, resourceID int64, message string, metadata map[string]interface{}) {
	e := p.engine
	e.resolver.Invalidate()

	event := &audit.Event{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Status:       audit.EventStatusSuccess,
		ResourceType: resource,
		ResourceID:   strconv.FormatInt(resourceID, 10),
		RequestID:    contextkeys.GetRequestID(ctx),
		Message:      message,
		Metadata:     metadata,
	}
	if err := e.audit.Log(ctx, event); err != nil {
		e.log.WithError(err).WithField("event_type", eventType).Warn("failed to write audit event")
	}
	e.log.WithField("event_type", eventType).WithField("resource_id", resourceID).Info(message)
}
