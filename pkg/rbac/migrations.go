package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// idColumn returns the auto-increment primary key definition for the dialect
func (d Dialect) idColumn() string {
	if d == DialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// GetMigrations returns the schema migrations for the dialect
func GetMigrations(d Dialect) []Migration {
	migrations := []Migration{
		{
			Version:     1,
			Description: "Create tenants and users tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id {{ID}},
					slug VARCHAR(100) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
					host VARCHAR(255) UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS users (
					id {{ID}},
					email VARCHAR(255) NOT NULL UNIQUE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     2,
			Description: "Create roles, permissions and role_permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id {{ID}},
					tenant_id BIGINT REFERENCES tenants(id),
					role_key VARCHAR(100) NOT NULL,
					name VARCHAR(255) NOT NULL,
					scope VARCHAR(20) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_tenant_key ON roles ((COALESCE(tenant_id, 0)), role_key);
				CREATE INDEX IF NOT EXISTS idx_roles_tenant_id ON roles (tenant_id);

				CREATE TABLE IF NOT EXISTS permissions (
					id {{ID}},
					permission_key VARCHAR(150) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id),
					permission_id BIGINT NOT NULL REFERENCES permissions(id),
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE INDEX IF NOT EXISTS idx_role_permissions_permission_id ON role_permissions (permission_id);
			`,
		},
		{
			Version:     3,
			Description: "Create memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS memberships (
					id {{ID}},
					tenant_id BIGINT NOT NULL REFERENCES tenants(id),
					user_id BIGINT NOT NULL REFERENCES users(id),
					role_id BIGINT REFERENCES roles(id),
					status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (tenant_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_memberships_user_id ON memberships (user_id);
				CREATE INDEX IF NOT EXISTS idx_memberships_role_status ON memberships (role_id, status);
			`,
		},
		{
			Version:     4,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id {{ID}},
					occurred_at TIMESTAMP NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					actor_id BIGINT,
					tenant_id BIGINT,
					resource_type VARCHAR(50),
					resource_id VARCHAR(255),
					request_id VARCHAR(100),
					message TEXT,
					metadata TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events (occurred_at);
				CREATE INDEX IF NOT EXISTS idx_audit_events_tenant_id ON audit_events (tenant_id);
			`,
		},
	}

	for i := range migrations {
		migrations[i].SQL = strings.ReplaceAll(migrations[i].SQL, "{{ID}}", d.idColumn())
	}
	return migrations
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, d Dialect, log logrus.FieldLogger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rbac_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM rbac_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations(d) {
		if appliedVersions[migration.Version] {
			continue
		}

		log.WithField("version", migration.Version).Infof("running migration: %s", migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rbac_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
