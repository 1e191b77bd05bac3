package organization

import (
	"time"

	"github.com/google/uuid"
)

// Status is the organization lifecycle state. Suspended organizations keep
// their data but their members cannot open tenant scopes; deletion is
// logical and terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Organization is one tenant: a healthcare provider on the platform. The
// slug is the stable URL-safe identifier used in hostnames and external
// references.
type Organization struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Slug      string     `db:"slug" json:"slug"`
	Status    Status     `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Setting is one per-organization configuration row. Settings live in the
// shared schema keyed by organization, like every other tenant-scoped row.
type Setting struct {
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	Key            string    `db:"key" json:"key"`
	Value          string    `db:"value" json:"value"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
