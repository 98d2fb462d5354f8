package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gorilla/mux"
)

// Config holds RBAC configuration
type Config struct {
	// CentralTenantSlug identifies the central tenant
	CentralTenantSlug string `env:"CENTRAL_TENANT_SLUG" envDefault:"central"`

	// CentralTenantName is used when bootstrap has to create the central tenant
	CentralTenantName string `env:"CENTRAL_TENANT_NAME" envDefault:"Central"`

	// BootstrapAdminEmail, when set, receives central_superadmin during Initialize
	BootstrapAdminEmail string `env:"BOOTSTRAP_ADMIN_EMAIL"`

	MutationTimeout time.Duration `env:"MUTATION_TIMEOUT" envDefault:"10s"`
	RoleSyncTimeout time.Duration `env:"ROLE_SYNC_TIMEOUT" envDefault:"30s"`
	BulkTimeout     time.Duration `env:"BULK_TIMEOUT" envDefault:"30s"`
	NotifyTimeout   time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`

	// CacheSize bounds the resolver cache; zero disables it
	CacheSize int `env:"RESOLVER_CACHE_SIZE" envDefault:"1024"`

	// CacheTTL is how long a resolved permission set may be served from cache
	CacheTTL time.Duration `env:"RESOLVER_CACHE_TTL" envDefault:"30s"`

	// PolicyFile optionally replaces the built-in policy with a YAML document
	PolicyFile string `env:"POLICY_FILE"`
}

// DefaultConfig returns default RBAC configuration
func DefaultConfig() Config {
	return Config{
		CentralTenantSlug: "central",
		CentralTenantName: "Central",
		MutationTimeout:   10 * time.Second,
		RoleSyncTimeout:   30 * time.Second,
		BulkTimeout:       30 * time.Second,
		NotifyTimeout:     5 * time.Second,
		CacheSize:         1024,
		CacheTTL:          30 * time.Second,
	}
}

// Validate checks the configuration for values the engine cannot work with
func (c Config) Validate() error {
	if c.CentralTenantSlug == "" {
		return fmt.Errorf("central tenant slug is required")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("resolver cache size must not be negative")
	}
	if c.CacheSize > 0 && c.CacheTTL <= 0 {
		return fmt.Errorf("resolver cache TTL must be positive when the cache is enabled")
	}
	return nil
}

// Manager manages all RBAC components
type Manager struct {
	store       *Store
	engine      *Engine
	provisioner *Provisioner
	handlers    *Handlers
	middleware  *PermissionMiddleware
	dialect     Dialect
	config      Config
}

// NewManager creates a new RBAC manager. A configured policy file is loaded
// before opts are applied, so an explicit WithPolicy wins.
func NewManager(db *sql.DB, dialect Dialect, config Config, opts ...Option) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.PolicyFile != "" {
		policy, err := LoadPolicy(config.PolicyFile)
		if err != nil {
			return nil, err
		}
		opts = append([]Option{WithPolicy(policy)}, opts...)
	}

	store := NewStore(db, dialect)
	engine := NewEngine(store, config, opts...)

	return &Manager{
		store:       store,
		engine:      engine,
		provisioner: NewProvisioner(engine),
		handlers:    NewHandlers(engine),
		middleware:  NewPermissionMiddleware(engine),
		dialect:     dialect,
		config:      config,
	}, nil
}

// Initialize runs migrations and makes sure the central scope is provisioned
func (m *Manager) Initialize(ctx context.Context) error {
	if err := RunMigrations(ctx, m.store.db, m.dialect, m.engine.log); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if _, err := m.provisioner.Bootstrap(ctx, BootstrapOptions{
		CentralName: m.config.CentralTenantName,
		AdminEmail:  m.config.BootstrapAdminEmail,
	}); err != nil {
		return fmt.Errorf("failed to provision central scope: %w", err)
	}

	return nil
}

// RegisterRoutes registers RBAC routes with a router
func (m *Manager) RegisterRoutes(router *mux.Router) {
	m.handlers.RegisterRoutes(router)
}

// Engine returns the mutation engine
func (m *Manager) Engine() *Engine {
	return m.engine
}

// Provisioner returns the privileged provisioner
func (m *Manager) Provisioner() *Provisioner {
	return m.provisioner
}

// Handlers returns the HTTP handlers
func (m *Manager) Handlers() *Handlers {
	return m.handlers
}

// Middleware returns the permission middleware
func (m *Manager) Middleware() *PermissionMiddleware {
	return m.middleware
}
