// Package training gates the release of approved records behind trainee
// acknowledgement. Required trainees are supplied by the collaborator
// layer at assignment time; the gate only tracks who must acknowledge
// and who has.
package training

import (
	"time"

	"github.com/google/uuid"

	"recordvault/pkg/domain"
)

// Assignment is one required trainee on one record version.
type Assignment struct {
	ID             uuid.UUID
	VersionRef     domain.VersionRef
	UserID         domain.UserID
	AssignedBy     domain.UserID
	AssignedAt     time.Time
	AcknowledgedAt *time.Time
}

// Acknowledged reports whether the trainee has signed off.
func (a Assignment) Acknowledged() bool {
	return a.AcknowledgedAt != nil
}
