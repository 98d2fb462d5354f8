package audit

import (
	"context"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the sink
	Close() error
}

// noOpLogger is a logger that does nothing (used when no logger is configured)
type noOpLogger struct{}

// NewNoOpLogger returns a Logger that drops every event
func NewNoOpLogger() Logger {
	return noOpLogger{}
}

func (noOpLogger) Log(ctx context.Context, event *Event) error {
	return nil
}

func (noOpLogger) Close() error {
	return nil
}
