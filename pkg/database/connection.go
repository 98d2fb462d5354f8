package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/sirupsen/logrus"
)

// ConnectionManager manages a primary connection for writes and read replica
// connections for permission resolution
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32 // Atomic counter for round-robin selection
	mu       sync.RWMutex
	config   Config
	log      logrus.FieldLogger
}

// NewConnectionManager opens and pings the primary and every replica.
// Replicas that cannot be reached are skipped.
func NewConnectionManager(ctx context.Context, config Config, log logrus.FieldLogger) (*ConnectionManager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cm := &ConnectionManager{
		config: config,
		log:    log,
	}

	primary, err := cm.open(ctx, config.URL, config.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary: %w", err)
	}
	cm.primary = primary

	replicaMaxConns := config.MaxOpenConns / 2
	if replicaMaxConns < 2 {
		replicaMaxConns = 2
	}
	for i, replicaURL := range config.ReplicaURLs {
		replica, err := cm.open(ctx, replicaURL, replicaMaxConns)
		if err != nil {
			log.WithError(err).WithField("replica", i).Warn("skipping unreachable replica")
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}

	log.WithFields(logrus.Fields{
		"driver":   config.Driver,
		"replicas": len(cm.replicas),
	}).Info("connection manager initialized")

	return cm, nil
}

func (cm *ConnectionManager) open(ctx context.Context, url string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open(cm.config.Driver, url)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(cm.config.MaxIdleConns)
	db.SetConnMaxLifetime(cm.config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cm.config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(ctx, cm.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Driver returns the configured driver name
func (cm *ConnectionManager) Driver() string {
	return cm.config.Driver
}

// Primary returns the primary database connection (for writes)
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection
// Falls back to primary if no replicas are available
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}
	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// HealthCheck checks the health of primary and all replicas
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}

	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}
	return nil
}

// ConnectionStats holds statistics for all database connections
type ConnectionStats struct {
	Primary  sql.DBStats
	Replicas []sql.DBStats
}

// Stats returns connection pool statistics for primary and replicas
func (cm *ConnectionManager) Stats() ConnectionStats {
	stats := ConnectionStats{
		Primary: cm.primary.Stats(),
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats.Replicas = make([]sql.DBStats, len(cm.replicas))
	for i, replica := range cm.replicas {
		stats.Replicas[i] = replica.Stats()
	}
	return stats
}

// Close closes all database connections
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var errs []string
	for i, replica := range cm.replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("replica-%d: %v", i, err))
		}
	}
	cm.replicas = nil

	if cm.primary != nil {
		if err := cm.primary.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("primary: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to close connections: %s", strings.Join(errs, "; "))
	}
	return nil
}
