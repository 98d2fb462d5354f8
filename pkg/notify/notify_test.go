package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisNotifier_Notify(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, DefaultChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n := NewRedisNotifier(client, "")
	assert.Equal(t, DefaultChannel, n.Channel())

	event := Event{
		Type:       EventMembershipCreated,
		TenantID:   2,
		UserID:     10,
		Email:      "ana@example.com",
		RoleKey:    "editor",
		OccurredAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, n.Notify(ctx, event))

	select {
	case msg := <-sub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, event, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestRedisNotifier_NotifyError(t *testing.T) {
	mr, client := setupRedis(t)
	mr.Close()

	err := NewRedisNotifier(client, "custom").Notify(context.Background(), Event{Type: EventMembershipUpdated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish membership.updated")
}

func TestLogNotifier(t *testing.T) {
	log, hook := test.NewNullLogger()
	require.NoError(t, NewLogNotifier(log).Notify(context.Background(), Event{Type: EventMembershipCreated, UserID: 3}))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, int64(3), entry.Data["user_id"])
}

type failingNotifier struct{ calls atomic.Int32 }

func (f *failingNotifier) Notify(context.Context, Event) error {
	f.calls.Add(1)
	return errors.New("unreachable")
}

func TestMulti(t *testing.T) {
	first := &failingNotifier{}
	second := &failingNotifier{}

	err := Multi{first, NoOp{}, second}.Notify(context.Background(), Event{})
	assert.Error(t, err)
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(1), second.calls.Load())

	assert.NoError(t, Multi{NoOp{}}.Notify(context.Background(), Event{}))
}
