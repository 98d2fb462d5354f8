package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
)

// Resolver computes effective permission sets
type Resolver interface {
	// Resolve returns the permission keys the user holds in the tenant scope.
	// A nil tenantID means the central scope.
	Resolve(ctx context.Context, userID int64, tenantID *int64) (PermissionSet, error)

	// Invalidate drops every cached resolution
	Invalidate()
}

// PermissionResolver implements Resolver on top of the store. Reads may be
// served from a replica since every mutation re-validates inside its own
// transaction on the primary.
type PermissionResolver struct {
	db        *sql.DB
	centralID func(ctx context.Context) (int64, error)
	cache     *expirable.LRU[string, PermissionSet]
	onHit     func()
	onMiss    func()

	// generation is bumped by Invalidate; a resolution started under an
	// older generation is never cached
	mu         sync.RWMutex
	generation uint64
}

// NewPermissionResolver creates a resolver. A cacheSize of zero disables caching.
func NewPermissionResolver(db *sql.DB, centralID func(ctx context.Context) (int64, error), cacheSize int, cacheTTL time.Duration) *PermissionResolver {
	r := &PermissionResolver{
		db:        db,
		centralID: centralID,
		onHit:     func() {},
		onMiss:    func() {},
	}
	if cacheSize > 0 {
		r.cache = expirable.NewLRU[string, PermissionSet](cacheSize, nil, cacheTTL)
	}
	return r
}

// SetCacheHooks registers callbacks for cache hits and misses
func (r *PermissionResolver) SetCacheHooks(hit, miss func()) {
	if hit != nil {
		r.onHit = hit
	}
	if miss != nil {
		r.onMiss = miss
	}
}

// Resolve implements Resolver
func (r *PermissionResolver) Resolve(ctx context.Context, userID int64, tenantID *int64) (PermissionSet, error) {
	key := fmt.Sprintf("%d:%d", userID, tenantKey(tenantID))
	if r.cache != nil {
		if set, ok := r.cache.Get(key); ok {
			r.onHit()
			return set, nil
		}
		r.onMiss()
	}

	gen := r.currentGeneration()
	set, err := r.resolve(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.mu.RLock()
		if r.generation == gen {
			r.cache.Add(key, set)
		}
		r.mu.RUnlock()
	}
	return set, nil
}

func (r *PermissionResolver) currentGeneration() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

func (r *PermissionResolver) resolve(ctx context.Context, userID int64, tenantID *int64) (PermissionSet, error) {
	centralID, err := r.centralID(ctx)
	if err != nil {
		return nil, err
	}

	var active bool
	err = r.db.QueryRowContext(ctx, "SELECT is_active FROM users WHERE id = $1", userID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
		return PermissionSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var centralRole, scopeRole *int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id, err := r.activeRole(gctx, userID, centralID)
		centralRole = id
		return err
	})
	if tenantID != nil && *tenantID != centralID {
		scoped := *tenantID
		g.Go(func() error {
			id, err := r.activeRole(gctx, userID, scoped)
			scopeRole = id
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	roleID := centralRole
	if roleID == nil {
		roleID = scopeRole
	}
	if roleID == nil {
		return PermissionSet{}, nil
	}
	return r.roleKeys(ctx, *roleID)
}

// activeRole returns the role of the user's ACTIVE membership in an ACTIVE tenant, if any
func (r *PermissionResolver) activeRole(ctx context.Context, userID, tenantID int64) (*int64, error) {
	var roleID sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT m.role_id
		FROM memberships m
		JOIN tenants t ON t.id = m.tenant_id
		WHERE m.user_id = $1 AND m.tenant_id = $2 AND m.status = $3 AND t.status = $4
	`, userID, tenantID, MembershipActive, "ACTIVE").Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	return nullInt64Ptr(roleID), nil
}

func (r *PermissionResolver) roleKeys(ctx context.Context, roleID int64) (PermissionSet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.permission_key
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	set := PermissionSet{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan permission key: %w", err)
		}
		set[key] = struct{}{}
	}
	return set, rows.Err()
}

// Invalidate implements Resolver
func (r *PermissionResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	if r.cache != nil {
		r.cache.Purge()
	}
}

// Len returns the number of cached resolutions
func (r *PermissionResolver) Len() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.Len()
}
