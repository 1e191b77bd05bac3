package grant

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an access grant. Transitions are
// one-directional: pending -> active -> revoked. A revoked grant never
// returns to active; a new grant must be created instead, which prevents
// stale-approval replay.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	// StatusNone is the answer for a patient/organization pair with no
	// grant on record. It is never stored.
	StatusNone Status = "none"
)

// AccessGrant is a patient's consent record permitting one organization to
// access their data. A patient may hold many active grants, one per
// provider organization treating them.
type AccessGrant struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	OrganizationID uuid.UUID  `db:"organization_id" json:"organization_id"`
	Status         Status     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	RevokedAt      *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}
