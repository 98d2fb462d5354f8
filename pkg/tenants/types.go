package tenants

import (
	"errors"
	"time"
)

// Status represents tenant status
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// Tenant is an isolated customer space. Exactly one tenant, identified by the
// configured central slug, is the central tenant.
type Tenant struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Host      string    `json:"host,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether members of the tenant may act in it
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

var (
	// ErrNotFound is returned when no tenant matches the lookup
	ErrNotFound = errors.New("tenant not found")
	// ErrInvalid is returned for a tenant without a usable slug or name
	ErrInvalid = errors.New("tenant slug and name are required")
)
