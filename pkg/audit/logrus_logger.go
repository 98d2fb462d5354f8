package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes audit events as structured log lines
type LogrusLogger struct {
	log logrus.FieldLogger
}

// NewLogrusLogger creates a log-backed audit sink
func NewLogrusLogger(log logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{log: log}
}

// Log writes the event at info level
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	fields := logrus.Fields{
		"audit":         true,
		"event_type":    event.EventType,
		"status":        event.Status,
		"resource_type": event.ResourceType,
		"resource_id":   event.ResourceID,
	}
	if event.ActorID != nil {
		fields["actor_id"] = *event.ActorID
	}
	if event.TenantID != nil {
		fields["tenant_id"] = *event.TenantID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields["meta."+k] = v
	}
	l.log.WithFields(fields).Info(event.Message)
	return nil
}

// Close implements Logger
func (l *LogrusLogger) Close() error {
	return nil
}
