package rbac

import (
	"time"
)

// RoleScope identifies whether a role belongs to the central tenant or to a customer tenant
type RoleScope string

const (
	ScopeCentral RoleScope = "CENTRAL"
	ScopeTenant  RoleScope = "TENANT"
)

// Valid reports whether the scope is one of the known values
func (s RoleScope) Valid() bool {
	return s == ScopeCentral || s == ScopeTenant
}

// MembershipStatus is the activation state of a membership
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "ACTIVE"
	MembershipInvited  MembershipStatus = "INVITED"
	MembershipDisabled MembershipStatus = "DISABLED"
)

// Fine-grained permission keys checked by the mutation engine
const (
	PermRolesView         = "roles.view"
	PermRolesCreate       = "roles.create"
	PermRolesUpdate       = "roles.update"
	PermRolesDelete       = "roles.delete"
	PermPermissionsView   = "permissions.view"
	PermPermissionsCreate = "permissions.create"
	PermPermissionsUpdate = "permissions.update"
	PermPermissionsDelete = "permissions.delete"
	PermUsersView         = "users.view"
	PermUsersCreate       = "users.create"
	PermUsersUpdate       = "users.update"
	PermUsersDelete       = "users.delete"
)

// Coarse override keys
const (
	PermManageSecurity   = "manage_security"
	PermManageRoles      = "manage_roles"
	PermManageUsers      = "manage_users"
	PermManageTenants    = "manage_tenants"
	PermAccessAdminPanel = "access_admin_panel"
)

// Built-in protected role keys
const (
	RoleCentralSuperadmin = "central_superadmin"
	RoleTenantSuperadmin  = "tenant_superadmin"
)

// Role is a named set of permissions owned by the central tenant (TenantID nil) or by one tenant
type Role struct {
	ID        int64     `json:"id"`
	TenantID  *int64    `json:"tenant_id,omitempty"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Scope     RoleScope `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Permission is a global capability key
type Permission struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a platform account. IsActive mirrors whether the user holds any active membership.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership grants a user a role within a tenant
type Membership struct {
	ID        int64            `json:"id"`
	TenantID  int64            `json:"tenant_id"`
	UserID    int64            `json:"user_id"`
	RoleID    *int64           `json:"role_id,omitempty"`
	Status    MembershipStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// MemberView is a membership joined with its user for listings
type MemberView struct {
	Membership
	Email   string `json:"email"`
	RoleKey string `json:"role_key,omitempty"`
}

// Actor is the authenticated caller together with the tenant the request was made against.
// A nil TenantID means the central scope.
type Actor struct {
	UserID   int64
	TenantID *int64
}

// RoleInput is the payload for creating or updating a role
type RoleInput struct {
	ID            *int64    `json:"id,omitempty"`
	Name          string    `json:"name"`
	Key           string    `json:"key"`
	Scope         RoleScope `json:"scope"`
	TenantID      *int64    `json:"tenant_id,omitempty"`
	PermissionIDs []int64   `json:"permission_ids"`
}

// PermissionInput is the payload for creating or updating a permission
type PermissionInput struct {
	ID   *int64 `json:"id,omitempty"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

// MembershipInput is the payload for onboarding a user into a tenant or reassigning their role
type MembershipInput struct {
	UserID   *int64 `json:"user_id,omitempty"`
	Email    string `json:"email"`
	RoleID   int64  `json:"role_id"`
	TenantID int64  `json:"tenant_id"`
}

// Mode tells whether a save created or updated the target
type Mode string

const (
	ModeCreated Mode = "created"
	ModeUpdated Mode = "updated"
)

// SaveResult is returned by role and permission saves
type SaveResult struct {
	Mode Mode  `json:"mode"`
	ID   int64 `json:"id"`
}

// MembershipResult is returned by membership saves
type MembershipResult struct {
	UserID int64 `json:"user_id"`
	Mode   Mode  `json:"mode"`
}

// DeleteMembershipResult reports whether removing the membership also removed the user
type DeleteMembershipResult struct {
	UserID      int64 `json:"user_id"`
	UserDeleted bool  `json:"user_deleted"`
}

// ToggleResult is returned by ToggleActive
type ToggleResult struct {
	UserID   int64 `json:"user_id"`
	IsActive bool  `json:"is_active"`
}

// BlockedItem is a bulk target that was not deleted
type BlockedItem struct {
	ID     int64 `json:"id"`
	Reason Code  `json:"reason"`
}

// BulkResult reports the outcome of a bulk delete
type BulkResult struct {
	DeletedCount int           `json:"deleted_count"`
	BlockedCount int           `json:"blocked_count"`
	DeletedIDs   []int64       `json:"deleted_ids"`
	Blocked      []BlockedItem `json:"blocked,omitempty"`
}
