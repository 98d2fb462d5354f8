// Package database opens the SQL and Redis connections the service runs on.
//
// ConnectionManager owns one primary pool (all writes and transactions) and
// any number of read replicas, handed out round-robin to the permission
// resolver. Both PostgreSQL (lib/pq) and SQLite (go-sqlite3) are supported;
// SQLite is meant for development and tests.
package database
