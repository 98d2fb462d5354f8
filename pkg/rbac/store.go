package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect names the SQL backend the store talks to
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// lockClause returns the row lock suffix for reads that gate a write.
// SQLite has no row locks; writers are serialized by opening transactions
// with _txlock=immediate.
func (d Dialect) lockClause() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store handles RBAC data persistence
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB returns the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction bounded by timeout. The transaction is
// rolled back when fn returns an error, panics, or the deadline passes.
func (s *Store) WithTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a unique constraint failure in either backend
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// placeholders renders $start..$start+n-1 as a comma separated list
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

// tenantKey maps a nullable tenant id onto the value used by the roles unique index
func tenantKey(tenantID *int64) int64 {
	if tenantID == nil {
		return 0
	}
	return *tenantID
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// Roles

const roleColumns = "id, tenant_id, role_key, name, scope, created_at, updated_at"

func scanRole(row scanner) (*Role, error) {
	var role Role
	var tenantID sql.NullInt64
	if err := row.Scan(&role.ID, &tenantID, &role.Key, &role.Name, &role.Scope, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	role.TenantID = nullInt64Ptr(tenantID)
	return &role, nil
}

// getRole returns nil, nil when the role does not exist
func (s *Store) getRole(ctx context.Context, q querier, id int64, lock bool) (*Role, error) {
	query := "SELECT " + roleColumns + " FROM roles WHERE id = $1"
	if lock {
		query += s.dialect.lockClause()
	}
	role, err := scanRole(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

func (s *Store) getRoleByKey(ctx context.Context, q querier, tenantID *int64, key string) (*Role, error) {
	query := "SELECT " + roleColumns + " FROM roles WHERE COALESCE(tenant_id, 0) = $1 AND role_key = $2"
	role, err := scanRole(q.QueryRowContext(ctx, query, tenantKey(tenantID), key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role by key: %w", err)
	}
	return role, nil
}

func (s *Store) rolesByIDs(ctx context.Context, q querier, ids []int64) (map[int64]*Role, error) {
	out := make(map[int64]*Role, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := "SELECT " + roleColumns + " FROM roles WHERE id IN (" + placeholders(1, len(ids)) + ")" + s.dialect.lockClause()
	rows, err := q.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		out[role.ID] = role
	}
	return out, rows.Err()
}

func (s *Store) insertRole(ctx context.Context, q querier, role *Role) error {
	now := time.Now().UTC()
	err := q.QueryRowContext(ctx, `
		INSERT INTO roles (tenant_id, role_key, name, scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, role.TenantID, role.Key, role.Name, role.Scope, now, now).Scan(&role.ID)
	if err != nil {
		return err
	}
	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

func (s *Store) updateRole(ctx context.Context, q querier, role *Role) error {
	role.UpdatedAt = time.Now().UTC()
	_, err := q.ExecContext(ctx, `
		UPDATE roles SET role_key = $1, name = $2, updated_at = $3
		WHERE id = $4
	`, role.Key, role.Name, role.UpdatedAt, role.ID)
	return err
}

// replaceRolePermissions deletes every join row for the role and inserts the given set
func (s *Store) replaceRolePermissions(ctx context.Context, q querier, roleID int64, permissionIDs []int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id = $1", roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	for _, pid := range permissionIDs {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)",
			roleID, pid,
		); err != nil {
			return fmt.Errorf("failed to insert role permission: %w", err)
		}
	}
	return nil
}

func (s *Store) rolePermissionIDs(ctx context.Context, q querier, roleID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id",
		roleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// deleteRoles nullifies membership references, drops join rows and deletes the roles
func (s *Store) deleteRoles(ctx context.Context, q querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	in := placeholders(2, len(ids))
	args := append([]interface{}{time.Now().UTC()}, int64Args(ids)...)

	if _, err := q.ExecContext(ctx,
		"UPDATE memberships SET role_id = NULL, updated_at = $1 WHERE role_id IN ("+in+")",
		args...,
	); err != nil {
		return fmt.Errorf("failed to detach memberships: %w", err)
	}

	in = placeholders(1, len(ids))
	if _, err := q.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id IN ("+in+")", int64Args(ids)...); err != nil {
		return fmt.Errorf("failed to delete role permissions: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM roles WHERE id IN ("+in+")", int64Args(ids)...); err != nil {
		return fmt.Errorf("failed to delete roles: %w", err)
	}
	return nil
}

// ListRoles lists roles owned by a tenant, or central roles when tenantID is nil
func (s *Store) ListRoles(ctx context.Context, tenantID *int64) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+roleColumns+" FROM roles WHERE COALESCE(tenant_id, 0) = $1 ORDER BY role_key",
		tenantKey(tenantID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// Permissions

const permissionColumns = "id, permission_key, name, created_at, updated_at"

func scanPermission(row scanner) (*Permission, error) {
	var p Permission
	if err := row.Scan(&p.ID, &p.Key, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) getPermission(ctx context.Context, q querier, id int64, lock bool) (*Permission, error) {
	query := "SELECT " + permissionColumns + " FROM permissions WHERE id = $1"
	if lock {
		query += s.dialect.lockClause()
	}
	p, err := scanPermission(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return p, nil
}

func (s *Store) getPermissionByKey(ctx context.Context, q querier, key string) (*Permission, error) {
	p, err := scanPermission(q.QueryRowContext(ctx,
		"SELECT "+permissionColumns+" FROM permissions WHERE permission_key = $1", key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission by key: %w", err)
	}
	return p, nil
}

func (s *Store) permissionsByIDs(ctx context.Context, q querier, ids []int64) (map[int64]*Permission, error) {
	out := make(map[int64]*Permission, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := "SELECT " + permissionColumns + " FROM permissions WHERE id IN (" + placeholders(1, len(ids)) + ")" + s.dialect.lockClause()
	rows, err := q.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// permissionRefCounts returns the number of roles referencing each permission id
func (s *Store) permissionRefCounts(ctx context.Context, q querier, ids []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx,
		"SELECT permission_id, COUNT(*) FROM role_permissions WHERE permission_id IN ("+placeholders(1, len(ids))+") GROUP BY permission_id",
		int64Args(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count permission references: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan permission reference: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (s *Store) insertPermission(ctx context.Context, q querier, p *Permission) error {
	now := time.Now().UTC()
	err := q.QueryRowContext(ctx, `
		INSERT INTO permissions (permission_key, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, p.Key, p.Name, now, now).Scan(&p.ID)
	if err != nil {
		return err
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (s *Store) updatePermission(ctx context.Context, q querier, p *Permission) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := q.ExecContext(ctx,
		"UPDATE permissions SET permission_key = $1, name = $2, updated_at = $3 WHERE id = $4",
		p.Key, p.Name, p.UpdatedAt, p.ID,
	)
	return err
}

func (s *Store) deletePermissions(ctx context.Context, q querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := q.ExecContext(ctx,
		"DELETE FROM permissions WHERE id IN ("+placeholders(1, len(ids))+")",
		int64Args(ids)...,
	); err != nil {
		return fmt.Errorf("failed to delete permissions: %w", err)
	}
	return nil
}

// ListPermissions lists every permission ordered by key
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+permissionColumns+" FROM permissions ORDER BY permission_key")
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, *p)
	}
	return perms, rows.Err()
}

// Users

const userColumns = "id, email, is_active, created_at, updated_at"

func scanUser(row scanner) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) getUser(ctx context.Context, q querier, id int64) (*User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *Store) getUserByEmail(ctx context.Context, q querier, email string) (*User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

func (s *Store) insertUser(ctx context.Context, q querier, u *User) error {
	now := time.Now().UTC()
	err := q.QueryRowContext(ctx, `
		INSERT INTO users (email, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, u.Email, u.IsActive, now, now).Scan(&u.ID)
	if err != nil {
		return err
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (s *Store) updateUserEmail(ctx context.Context, q querier, userID int64, email string) error {
	_, err := q.ExecContext(ctx, "UPDATE users SET email = $1, updated_at = $2 WHERE id = $3", email, time.Now().UTC(), userID)
	return err
}

func (s *Store) setUserActive(ctx context.Context, q querier, userID int64, active bool) error {
	if _, err := q.ExecContext(ctx,
		"UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3",
		active, time.Now().UTC(), userID,
	); err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	return nil
}

// deleteUser removes the user together with any memberships left behind
func (s *Store) deleteUser(ctx context.Context, q querier, userID int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM memberships WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("failed to delete user memberships: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM users WHERE id = $1", userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// Memberships

const membershipColumns = "id, tenant_id, user_id, role_id, status, created_at, updated_at"

func scanMembership(row scanner) (*Membership, error) {
	var m Membership
	var roleID sql.NullInt64
	if err := row.Scan(&m.ID, &m.TenantID, &m.UserID, &roleID, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.RoleID = nullInt64Ptr(roleID)
	return &m, nil
}

func (s *Store) getMembership(ctx context.Context, q querier, tenantID, userID int64, lock bool) (*Membership, error) {
	query := "SELECT " + membershipColumns + " FROM memberships WHERE tenant_id = $1 AND user_id = $2"
	if lock {
		query += s.dialect.lockClause()
	}
	m, err := scanMembership(q.QueryRowContext(ctx, query, tenantID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// membershipsByUsers loads the memberships of several users in one tenant, keyed by user id
func (s *Store) membershipsByUsers(ctx context.Context, q querier, tenantID int64, userIDs []int64) (map[int64]*Membership, error) {
	out := make(map[int64]*Membership, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	args := append([]interface{}{tenantID}, int64Args(userIDs)...)
	query := "SELECT " + membershipColumns + " FROM memberships WHERE tenant_id = $1 AND user_id IN (" +
		placeholders(2, len(userIDs)) + ")" + s.dialect.lockClause()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out[m.UserID] = m
	}
	return out, rows.Err()
}

func (s *Store) insertMembership(ctx context.Context, q querier, m *Membership) error {
	now := time.Now().UTC()
	err := q.QueryRowContext(ctx, `
		INSERT INTO memberships (tenant_id, user_id, role_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, m.TenantID, m.UserID, m.RoleID, m.Status, now, now).Scan(&m.ID)
	if err != nil {
		return err
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

func (s *Store) updateMembership(ctx context.Context, q querier, m *Membership) error {
	m.UpdatedAt = time.Now().UTC()
	if _, err := q.ExecContext(ctx,
		"UPDATE memberships SET role_id = $1, status = $2, updated_at = $3 WHERE id = $4",
		m.RoleID, m.Status, m.UpdatedAt, m.ID,
	); err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	return nil
}

func (s *Store) deleteMembershipRow(ctx context.Context, q querier, id int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM memberships WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return nil
}

// countActiveHolders counts ACTIVE memberships holding roleID, ignoring the given users
func (s *Store) countActiveHolders(ctx context.Context, q querier, roleID int64, excludeUserIDs []int64) (int, error) {
	query := "SELECT COUNT(*) FROM memberships WHERE role_id = $1 AND status = $2"
	args := []interface{}{roleID, MembershipActive}
	if len(excludeUserIDs) > 0 {
		query += " AND user_id NOT IN (" + placeholders(3, len(excludeUserIDs)) + ")"
		args = append(args, int64Args(excludeUserIDs)...)
	}
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count role holders: %w", err)
	}
	return n, nil
}

// countActiveMembers counts ACTIVE memberships of a tenant, ignoring the given users
func (s *Store) countActiveMembers(ctx context.Context, q querier, tenantID int64, excludeUserIDs []int64) (int, error) {
	query := "SELECT COUNT(*) FROM memberships WHERE tenant_id = $1 AND status = $2"
	args := []interface{}{tenantID, MembershipActive}
	if len(excludeUserIDs) > 0 {
		query += " AND user_id NOT IN (" + placeholders(3, len(excludeUserIDs)) + ")"
		args = append(args, int64Args(excludeUserIDs)...)
	}
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tenant members: %w", err)
	}
	return n, nil
}

// countUserActiveMemberships counts a user's ACTIVE memberships across all tenants
func (s *Store) countUserActiveMemberships(ctx context.Context, q querier, userID int64) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memberships WHERE user_id = $1 AND status = $2",
		userID, MembershipActive,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count user memberships: %w", err)
	}
	return n, nil
}

// countUserMemberships counts the user's memberships of any status outside
// exceptTenantID. Pass 0 to count them all.
func (s *Store) countUserMemberships(ctx context.Context, q querier, userID, exceptTenantID int64) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memberships WHERE user_id = $1 AND tenant_id <> $2",
		userID, exceptTenantID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count user memberships: %w", err)
	}
	return n, nil
}

// ListMemberships lists the memberships of a tenant joined with user email and role key
func (s *Store) ListMemberships(ctx context.Context, tenantID int64) ([]MemberView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.tenant_id, m.user_id, m.role_id, m.status, m.created_at, m.updated_at,
		       u.email, COALESCE(r.role_key, '')
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		LEFT JOIN roles r ON r.id = m.role_id
		WHERE m.tenant_id = $1
		ORDER BY u.email
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	members := []MemberView{}
	for rows.Next() {
		var v MemberView
		var roleID sql.NullInt64
		if err := rows.Scan(&v.ID, &v.TenantID, &v.UserID, &roleID, &v.Status, &v.CreatedAt, &v.UpdatedAt,
			&v.Email, &v.RoleKey); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		v.RoleID = nullInt64Ptr(roleID)
		members = append(members, v)
	}
	return members, rows.Err()
}

// Tenants

// tenantIDBySlug returns 0 when no tenant has the slug
func (s *Store) tenantIDBySlug(ctx context.Context, q querier, slug string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM tenants WHERE slug = $1", slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up tenant: %w", err)
	}
	return id, nil
}
