package database

import (
	"fmt"
	"time"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds database connection configuration
type Config struct {
	Driver          string        `env:"DRIVER" envDefault:"postgres"`
	URL             string        `env:"URL"`
	ReplicaURLs     []string      `env:"REPLICA_URLS" envSeparator:","`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"1m"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
}

// Validate checks the configuration for consistency
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("invalid database driver %q (must be %s or %s)", c.Driver, DriverPostgres, DriverSQLite)
	}
	if c.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("connection pool sizes must not be negative")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	return nil
}

// SQLiteDSN builds a DSN for the sqlite3 driver. Write transactions take the
// database lock on BEGIN so concurrent mutations serialize instead of failing
// on lock upgrade.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
}
