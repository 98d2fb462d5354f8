// Package notify delivers membership change notifications.
//
// Notifications are best effort. The rbac engine dispatches them after a
// membership mutation commits and never fails the mutation when delivery
// fails.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantguard/pkg/async"
)

// Event types
const (
	EventMembershipCreated = "membership.created"
	EventMembershipUpdated = "membership.updated"
)

// DefaultChannel is the Redis channel membership events are published on
const DefaultChannel = "tenantguard:memberships"

// Event describes a membership change
type Event struct {
	Type       string    `json:"type"`
	TenantID   int64     `json:"tenant_id"`
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	RoleKey    string    `json:"role_key,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers events
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NoOp discards every event
type NoOp struct{}

// Notify implements Notifier
func (NoOp) Notify(context.Context, Event) error { return nil }

// LogNotifier writes events to a logger
type LogNotifier struct {
	log logrus.FieldLogger
}

// NewLogNotifier creates a notifier that logs each event
func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify implements Notifier
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.log.WithFields(logrus.Fields{
		"type":      event.Type,
		"tenant_id": event.TenantID,
		"user_id":   event.UserID,
		"email":     event.Email,
		"role_key":  event.RoleKey,
	}).Info("membership notification")
	return nil
}

// RedisNotifier publishes events as JSON on a Redis channel
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier creates a notifier publishing to channel. An empty channel
// uses DefaultChannel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Channel returns the channel events are published on
func (n *RedisNotifier) Channel() string {
	return n.channel
}

// Notify implements Notifier
func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// Multi fans an event out to several notifiers concurrently
type Multi []Notifier

const multiTimeout = 10 * time.Second

// Notify delivers to every notifier and joins their errors
func (m Multi) Notify(ctx context.Context, event Event) error {
	if len(m) == 0 {
		return nil
	}
	errs := async.Batch(ctx, m, len(m), "notify "+event.Type, multiTimeout, func(ctx context.Context, n Notifier) error {
		return n.Notify(ctx, event)
	})
	return errors.Join(errs...)
}
