package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DBLogger writes audit events to the audit_events table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger. The audit_events
// table is created by the rbac migrations.
func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db}
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadata sql.NullString
	if event.Metadata != nil {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	err := l.db.QueryRowContext(ctx, `
		INSERT INTO audit_events (
			occurred_at, event_type, status,
			actor_id, tenant_id,
			resource_type, resource_id,
			request_id, message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		event.Timestamp, event.EventType, event.Status,
		event.ActorID, event.TenantID,
		event.ResourceType, event.ResourceID,
		event.RequestID, event.Message, metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// List returns the most recent events matching the filter, newest first
func (l *DBLogger) List(ctx context.Context, filter Filter) ([]*Event, error) {
	var conditions []string
	var args []interface{}

	if filter.TenantID != nil {
		args = append(args, *filter.TenantID)
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if filter.ActorID != nil {
		args = append(args, *filter.ActorID)
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conditions = append(conditions, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			args = append(args, t)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `
		SELECT id, occurred_at, event_type, status, actor_id, tenant_id,
		       COALESCE(resource_type, ''), COALESCE(resource_id, ''),
		       COALESCE(request_id, ''), COALESCE(message, ''), metadata
		FROM audit_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT %d", limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var actorID, tenantID sql.NullInt64
		var metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.Status, &actorID, &tenantID,
			&e.ResourceType, &e.ResourceID, &e.RequestID, &e.Message, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if actorID.Valid {
			id := actorID.Int64
			e.ActorID = &id
		}
		if tenantID.Valid {
			id := tenantID.Int64
			e.TenantID = &id
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Close is a no-op; the caller owns the database handle
func (l *DBLogger) Close() error {
	return nil
}
