package observability

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
)

// Log formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

// NewLogger creates a logrus logger writing to output at the given level
// ("debug", "info", "warn", "error") in the given format ("json" or "text").
func NewLogger(level, format string, output io.Writer) (*logrus.Logger, error) {
	if output == nil {
		output = os.Stdout
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetLevel(lvl)

	switch format {
	case "", FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	case FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	return logger, nil
}

// WithLogger stores a request-scoped logger in the context
func WithLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return contextkeys.WithLogger(ctx, logger)
}

// FromContext returns the request-scoped logger, falling back to the standard
// logger, annotated with the request id, actor and trace ids found in ctx.
func FromContext(ctx context.Context) logrus.FieldLogger {
	logger, ok := ctx.Value(contextkeys.LoggerKey).(logrus.FieldLogger)
	if !ok {
		logger = logrus.StandardLogger()
	}

	fields := logrus.Fields{}
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	if actorID, ok := contextkeys.GetActorID(ctx); ok {
		fields["actor_id"] = actorID
	}
	if tenantID := contextkeys.GetTenantID(ctx); tenantID != nil {
		fields["tenant_id"] = *tenantID
	}
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		fields["trace_id"] = span.SpanContext().TraceID().String()
		fields["span_id"] = span.SpanContext().SpanID().String()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.WithFields(fields)
}
