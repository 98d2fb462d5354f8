//go:build integration

package rbac

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a disposable PostgreSQL container and returns a handle to it
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("tenantguard_test"),
		postgres.WithUsername("tenantguard"),
		postgres.WithPassword("tenantguard_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	t.Cleanup(func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})
	return db
}

func newPostgresFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := setupPostgres(t)
	logger, hook := test.NewNullLogger()
	rec := &recordingAudit{}

	cfg := testConfig()
	cfg.BootstrapAdminEmail = rootEmail
	m, err := NewManager(db, DialectPostgres, cfg, WithLogger(logger), WithAuditLogger(rec))
	require.NoError(t, err)
	require.NoError(t, m.Initialize(ctx))

	central, err := m.Engine().CentralTenantID(ctx)
	require.NoError(t, err)
	root, err := m.Engine().Store().getUserByEmail(ctx, db, rootEmail)
	require.NoError(t, err)
	role, err := m.Engine().Store().getRoleByKey(ctx, db, nil, RoleCentralSuperadmin)
	require.NoError(t, err)

	return &fixture{
		t:         t,
		ctx:       ctx,
		db:        db,
		engine:    m.Engine(),
		prov:      m.Provisioner(),
		audit:     rec,
		logHook:   hook,
		centralID: central,
		rootID:    root.ID,
		rootRole:  role.ID,
	}
}

func TestPostgres_Scenarios(t *testing.T) {
	f := newPostgresFixture(t)
	acme := f.tenant("acme")
	actor := acme.actor()

	t.Run("create role with permissions", func(t *testing.T) {
		id := f.role(actor, "editor", PermRolesView, PermRolesUpdate)
		ids, err := f.engine.GetRolePermissionIDs(f.ctx, actor, id)
		require.NoError(t, err)
		assert.ElementsMatch(t, f.permIDs(PermRolesView, PermRolesUpdate), ids)
	})

	t.Run("concurrent creates of one key", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.engine.CreateOrUpdateRole(f.ctx, actor, RoleInput{
					Key: "racer", Name: "Racer", Scope: ScopeTenant, TenantID: &acme.ID,
				})
			}(i)
		}
		wg.Wait()

		var failed []error
		for _, err := range errs {
			if err != nil {
				failed = append(failed, err)
			}
		}
		require.Len(t, failed, 1)
		requireCode(t, failed[0], CodeRoleKeyInUse)
	})

	t.Run("last admin cannot be deactivated", func(t *testing.T) {
		_, err := f.engine.ToggleActive(f.ctx, f.rootIn(acme.ID), acme.AdminID, false)
		requireCode(t, err, CodeCannotDeactivateLastUser)
		assert.Equal(t, MembershipActive, f.membership(acme.ID, acme.AdminID).Status)
	})

	t.Run("bulk delete partial success", func(t *testing.T) {
		free := f.role(actor, "free")
		used := f.role(actor, "used")
		f.member(actor, acme.ID, "used@acme.test", used)

		res, err := f.engine.DeleteRoles(f.ctx, actor, []int64{free, used, acme.AdminRole, 424242})
		require.NoError(t, err)
		assert.Equal(t, []int64{free, used}, res.DeletedIDs)
		assert.Equal(t, []BlockedItem{
			{ID: acme.AdminRole, Reason: CodeCannotDeleteProtectedRole},
			{ID: 424242, Reason: CodeNotFound},
		}, res.Blocked)
	})

	t.Run("email uniqueness", func(t *testing.T) {
		viewer := f.role(actor, "viewer", PermRolesView)
		a := f.member(actor, acme.ID, "a@acme.test", viewer)
		f.member(actor, acme.ID, "b@acme.test", viewer)

		_, err := f.engine.CreateOrUpdateMembership(f.ctx, actor, MembershipInput{
			UserID: &a, Email: "b@acme.test", RoleID: viewer, TenantID: acme.ID,
		})
		requireCode(t, err, CodeEmailInUse)
	})
}
