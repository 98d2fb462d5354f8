package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	events   []*Event
	logErr   error
	closeErr error
	closed   bool
}

func (m *mockLogger) Log(ctx context.Context, event *Event) error {
	if m.logErr != nil {
		return m.logErr
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockLogger) Close() error {
	m.closed = true
	return m.closeErr
}

func TestMultiLogger_Log(t *testing.T) {
	logger1 := &mockLogger{}
	logger2 := &mockLogger{}

	multi := NewMultiLogger(logger1, logger2)
	event := &Event{EventType: EventTypeRoleCreate, Status: EventStatusSuccess}

	require.NoError(t, multi.Log(context.Background(), event))
	assert.Len(t, logger1.events, 1)
	assert.Len(t, logger2.events, 1)
}

func TestMultiLogger_LogContinuesAfterError(t *testing.T) {
	failing := &mockLogger{logErr: errors.New("sink down")}
	healthy := &mockLogger{}

	multi := NewMultiLogger(failing, healthy)
	err := multi.Log(context.Background(), &Event{EventType: EventTypeRoleDelete})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Len(t, healthy.events, 1)
}

func TestMultiLogger_Close(t *testing.T) {
	logger1 := &mockLogger{closeErr: errors.New("close failed")}
	logger2 := &mockLogger{}

	err := NewMultiLogger(logger1, logger2).Close()
	assert.Error(t, err)
	assert.True(t, logger1.closed)
	assert.True(t, logger2.closed)
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	assert.NoError(t, logger.Log(context.Background(), &Event{}))
	assert.NoError(t, logger.Close())
}

func TestLogrusLogger_Log(t *testing.T) {
	base, hook := test.NewNullLogger()
	logger := NewLogrusLogger(base)

	actorID := int64(5)
	err := logger.Log(context.Background(), &Event{
		EventType:    EventTypeMembershipCreate,
		Status:       EventStatusSuccess,
		ActorID:      &actorID,
		ResourceType: ResourceTypeMembership,
		ResourceID:   "9",
		RequestID:    "req-9",
		Message:      "membership created",
		Metadata:     map[string]interface{}{"role_key": "editor"},
	})
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "membership created", entry.Message)
	assert.Equal(t, int64(5), entry.Data["actor_id"])
	assert.Equal(t, "req-9", entry.Data["request_id"])
	assert.Equal(t, "editor", entry.Data["meta.role_key"])
	assert.NotContains(t, entry.Data, "tenant_id")
}

func TestEvent_ToJSON(t *testing.T) {
	data, err := (&Event{EventType: EventTypeTenantCreate, ResourceID: "4"}).ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event_type":"admin.tenant_create"`)
	assert.NotContains(t, string(data), "actor_id")
}
