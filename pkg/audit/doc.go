// Package audit records committed administrative mutations.
//
// # Overview
//
// Every role, permission and membership change made through the rbac engine
// produces one Event after its transaction commits. Events are written to one
// or more sinks:
//
//	DBLogger     - the audit_events table (PostgreSQL or SQLite)
//	LogrusLogger - structured log lines
//	MultiLogger  - fan-out to several sinks
//
// # Usage Example
//
//	dbLogger := audit.NewDBLogger(db)
//	logger := audit.NewMultiLogger(dbLogger, audit.NewLogrusLogger(log))
//	engine := rbac.NewEngine(store, cfg, rbac.WithAuditLogger(logger))
//
// Audit failures never roll back a mutation; the engine logs them and moves on.
package audit
