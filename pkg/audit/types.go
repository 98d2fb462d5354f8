package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	EventTypeRoleCreate EventType = "rbac.role_create"
	EventTypeRoleUpdate EventType = "rbac.role_update"
	EventTypeRoleDelete EventType = "rbac.role_delete"

	EventTypePermissionCreate EventType = "rbac.permission_create"
	EventTypePermissionUpdate EventType = "rbac.permission_update"
	EventTypePermissionDelete EventType = "rbac.permission_delete"

	EventTypeMembershipCreate   EventType = "rbac.membership_create"
	EventTypeMembershipUpdate   EventType = "rbac.membership_update"
	EventTypeMembershipDelete   EventType = "rbac.membership_delete"
	EventTypeMembershipActivate EventType = "rbac.membership_activate"
	EventTypeMembershipDisable  EventType = "rbac.membership_disable"

	EventTypeTenantCreate   EventType = "admin.tenant_create"
	EventTypeTenantSuspend  EventType = "admin.tenant_suspend"
	EventTypeTenantActivate EventType = "admin.tenant_activate"
	EventTypeProvision      EventType = "admin.provision"
)

// EventStatus represents the outcome of an audited action
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted upon
type ResourceType string

const (
	ResourceTypeRole       ResourceType = "role"
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeMembership ResourceType = "membership"
	ResourceTypeTenant     ResourceType = "tenant"
	ResourceTypeUser       ResourceType = "user"
)

// Event is a single audit record
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	ActorID  *int64 `json:"actor_id,omitempty"`
	TenantID *int64 `json:"tenant_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Filter narrows a listing of audit events
type Filter struct {
	TenantID   *int64
	ActorID    *int64
	EventTypes []EventType
	Since      *time.Time
	Limit      int
}
