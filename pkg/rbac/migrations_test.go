package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMigrations_Dialects(t *testing.T) {
	pg := GetMigrations(DialectPostgres)
	lite := GetMigrations(DialectSQLite)
	require.Len(t, pg, len(lite))

	for i := range pg {
		assert.Equal(t, i+1, pg[i].Version)
		assert.NotContains(t, pg[i].SQL, "{{ID}}")
		assert.NotContains(t, lite[i].SQL, "{{ID}}")
	}
	assert.Contains(t, pg[0].SQL, "BIGSERIAL PRIMARY KEY")
	assert.Contains(t, lite[0].SQL, "INTEGER PRIMARY KEY AUTOINCREMENT")
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := openTestDB(t)
	logger, hook := test.NewNullLogger()

	require.NoError(t, RunMigrations(context.Background(), db, DialectSQLite, logger))
	assert.Empty(t, hook.AllEntries())

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM rbac_migrations").Scan(&n))
	assert.Equal(t, len(GetMigrations(DialectSQLite)), n)
}

func TestSchema_RoleKeyUniquePerTenant(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := NewStore(db, DialectSQLite)

	_, err := db.Exec("INSERT INTO tenants (slug, name) VALUES ('acme', 'Acme')")
	require.NoError(t, err)
	var acmeID int64
	require.NoError(t, db.QueryRow("SELECT id FROM tenants WHERE slug = 'acme'").Scan(&acmeID))

	require.NoError(t, store.insertRole(ctx, db, &Role{Key: "auditor", Name: "Auditor", Scope: ScopeCentral}))

	// NULL tenant ids still collide
	err = store.insertRole(ctx, db, &Role{Key: "auditor", Name: "Again", Scope: ScopeCentral})
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))

	require.NoError(t, store.insertRole(ctx, db, &Role{TenantID: &acmeID, Key: "auditor", Name: "Auditor", Scope: ScopeTenant}))

	role, err := store.getRoleByKey(ctx, db, &acmeID, "auditor")
	require.NoError(t, err)
	require.NotNil(t, role)
	assert.Equal(t, ScopeTenant, role.Scope)
	assert.WithinDuration(t, time.Now(), role.CreatedAt, time.Minute)
}
