package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store persists tenants
type Store struct {
	db DBTX
}

// NewStore creates a tenant store
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a store that runs its statements inside tx
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

const tenantColumns = "id, slug, name, status, host, created_at, updated_at"

// Create inserts a tenant. An empty slug is derived from the name.
func (s *Store) Create(ctx context.Context, t *Tenant) error {
	if t.Slug == "" {
		t.Slug = GenerateSlug(t.Name)
	}
	t.Name = strings.TrimSpace(t.Name)
	t.Host = normalizeHost(t.Host)
	if t.Slug == "" || t.Name == "" {
		return ErrInvalid
	}
	if t.Status == "" {
		t.Status = StatusActive
	}

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tenants (slug, name, status, host, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`, t.Slug, t.Name, t.Status, nullString(t.Host), now).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// GetByID returns the tenant with the id or ErrNotFound
func (s *Store) GetByID(ctx context.Context, id int64) (*Tenant, error) {
	return s.getOne(ctx, "id = $1", id)
}

// GetBySlug returns the tenant with the slug or ErrNotFound
func (s *Store) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.getOne(ctx, "slug = $1", slug)
}

// GetByHost returns the tenant serving the host or ErrNotFound. Any port is ignored.
func (s *Store) GetByHost(ctx context.Context, host string) (*Tenant, error) {
	return s.getOne(ctx, "host = $1", normalizeHost(host))
}

func (s *Store) getOne(ctx context.Context, where string, arg interface{}) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE "+where, arg)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// List returns every tenant ordered by id
func (s *Store) List(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+tenantColumns+" FROM tenants ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetStatus changes a tenant's status. Memberships of a suspended tenant
// grant nothing.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tenants SET status = $1, updated_at = $2 WHERE id = $3",
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Suspend marks the tenant suspended
func (s *Store) Suspend(ctx context.Context, id int64) error {
	return s.SetStatus(ctx, id, StatusSuspended)
}

// Activate marks the tenant active
func (s *Store) Activate(ctx context.Context, id int64) error {
	return s.SetStatus(ctx, id, StatusActive)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row scanner) (*Tenant, error) {
	t := &Tenant{}
	var host sql.NullString
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Status, &host, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Host = host.String
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndexByte(host, ':'); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return host
}

// GenerateSlug derives a URL-safe slug from a name
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return slug
}
