package rbac

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/database"
	"github.com/platinummonkey/tenantguard/pkg/notify"
)

const rootEmail = "root@central.test"

// recordingAudit captures audit events
type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *recordingAudit) Log(_ context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) types() []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// channelNotifier forwards events to a buffered channel
type channelNotifier struct {
	events chan notify.Event
}

func (c *channelNotifier) Notify(_ context.Context, event notify.Event) error {
	c.events <- event
	return nil
}

// fixture is an engine over a migrated in-memory SQLite database with the
// central scope bootstrapped and root@central.test holding central_superadmin.
type fixture struct {
	t         *testing.T
	ctx       context.Context
	db        *sql.DB
	engine    *Engine
	prov      *Provisioner
	audit     *recordingAudit
	logHook   *test.Hook
	centralID int64
	rootID    int64
	rootRole  int64
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(database.DriverSQLite, database.SQLiteDSN(":memory:"))
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	logger, _ := test.NewNullLogger()
	require.NoError(t, RunMigrations(context.Background(), db, DialectSQLite, logger))
	return db
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CacheSize = 0
	return cfg
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	return newFixtureWithConfig(t, testConfig(), opts...)
}

func newFixtureWithConfig(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	db := openTestDB(t)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	rec := &recordingAudit{}

	opts = append([]Option{WithAuditLogger(rec), WithLogger(logger)}, opts...)
	engine := NewEngine(NewStore(db, DialectSQLite), cfg, opts...)
	prov := NewProvisioner(engine)

	res, err := prov.Bootstrap(ctx, BootstrapOptions{AdminEmail: rootEmail})
	require.NoError(t, err)

	return &fixture{
		t:         t,
		ctx:       ctx,
		db:        db,
		engine:    engine,
		prov:      prov,
		audit:     rec,
		logHook:   hook,
		centralID: res.CentralTenantID,
		rootID:    res.AdminUserID,
		rootRole:  res.RoleID,
	}
}

// root acts in the central scope
func (f *fixture) root() Actor {
	return Actor{UserID: f.rootID}
}

// rootIn acts as the central superadmin against a customer tenant
func (f *fixture) rootIn(tenantID int64) Actor {
	return Actor{UserID: f.rootID, TenantID: &tenantID}
}

type tenantFixture struct {
	ID        int64
	AdminID   int64
	AdminRole int64
}

// actor is the tenant's superadmin acting in its own tenant
func (tf tenantFixture) actor() Actor {
	id := tf.ID
	return Actor{UserID: tf.AdminID, TenantID: &id}
}

func (f *fixture) tenant(slug string) tenantFixture {
	f.t.Helper()
	res, err := f.prov.ProvisionTenant(f.ctx, TenantOptions{
		Slug:       slug,
		Name:       slug,
		Host:       slug + ".example.com",
		AdminEmail: "admin@" + slug + ".test",
	})
	require.NoError(f.t, err)
	return tenantFixture{ID: res.Tenant.ID, AdminID: res.AdminUserID, AdminRole: res.RoleID}
}

func (f *fixture) permID(key string) int64 {
	f.t.Helper()
	p, err := f.engine.store.getPermissionByKey(f.ctx, f.db, key)
	require.NoError(f.t, err)
	require.NotNil(f.t, p, "permission %s", key)
	return p.ID
}

func (f *fixture) permIDs(keys ...string) []int64 {
	ids := make([]int64, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, f.permID(k))
	}
	return ids
}

// customPermission creates a non-system permission from the central scope
func (f *fixture) customPermission(key string) int64 {
	f.t.Helper()
	res, err := f.engine.CreateOrUpdatePermission(f.ctx, f.root(), PermissionInput{Key: key, Name: key})
	require.NoError(f.t, err)
	return res.ID
}

// role creates a custom role in the actor's scope
func (f *fixture) role(actor Actor, key string, permKeys ...string) int64 {
	f.t.Helper()
	scope := ScopeCentral
	if actor.TenantID != nil && *actor.TenantID != f.centralID {
		scope = ScopeTenant
	}
	res, err := f.engine.CreateOrUpdateRole(f.ctx, actor, RoleInput{
		Key:           key,
		Name:          key,
		Scope:         scope,
		TenantID:      actor.TenantID,
		PermissionIDs: f.permIDs(permKeys...),
	})
	require.NoError(f.t, err)
	return res.ID
}

// member onboards email into tenantID with roleID and returns the user id
func (f *fixture) member(actor Actor, tenantID int64, email string, roleID int64) int64 {
	f.t.Helper()
	res, err := f.engine.CreateOrUpdateMembership(f.ctx, actor, MembershipInput{
		Email:    email,
		RoleID:   roleID,
		TenantID: tenantID,
	})
	require.NoError(f.t, err)
	return res.UserID
}

func (f *fixture) membership(tenantID, userID int64) *Membership {
	f.t.Helper()
	m, err := f.engine.store.getMembership(f.ctx, f.db, tenantID, userID, false)
	require.NoError(f.t, err)
	return m
}

func (f *fixture) user(id int64) *User {
	f.t.Helper()
	u, err := f.engine.store.getUser(f.ctx, f.db, id)
	require.NoError(f.t, err)
	return u
}

func (f *fixture) roleByID(id int64) *Role {
	f.t.Helper()
	r, err := f.engine.store.getRole(f.ctx, f.db, id, false)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) permissions(userID int64, tenantID *int64) []string {
	f.t.Helper()
	keys, err := f.engine.ResolveEffectivePermissions(f.ctx, userID, tenantID)
	require.NoError(f.t, err)
	return keys
}

func requireCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, CodeOf(err), "unexpected error: %v", err)
}

func int64Ptr(v int64) *int64 {
	return &v
}
