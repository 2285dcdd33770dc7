// Package models defines the record lifecycle value types. States are a
// closed set so illegal states are unrepresentable outside this package.
package models

import (
	"time"

	"github.com/google/uuid"

	"recordvault/internal/version"
	"recordvault/pkg/domain"
)

// State is a lifecycle state. The set is closed; the registry decides
// which edges between them are legal per record type.
type State string

const (
	StateDraft      State = "draft"
	StateInReview   State = "in_review"
	StateApproved   State = "approved"
	StateEffective  State = "effective"
	StateSuperseded State = "superseded"
	StateObsolete   State = "obsolete"
	StateCancelled  State = "cancelled"
	StateArchived   State = "archived"
)

var allStates = map[State]struct{}{
	StateDraft: {}, StateInReview: {}, StateApproved: {}, StateEffective: {},
	StateSuperseded: {}, StateObsolete: {}, StateCancelled: {}, StateArchived: {},
}

// Valid reports whether s is a member of the closed state set.
func (s State) Valid() bool {
	_, ok := allStates[s]
	return ok
}

// Terminal states accept no further transitions, ever.
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateArchived
}

// Record is one version of a regulated artifact. A record family is all
// versions sharing RecordID; at most one member is effective at any
// instant.
type Record struct {
	VersionRef domain.VersionRef
	RecordID   domain.RecordID
	RecordType domain.RecordType
	Version    version.Label
	State      State
	OwnerID    domain.UserID
	ContentRef domain.ContentRef

	// EffectiveAt is set when the version entered effective.
	EffectiveAt *time.Time
	// ScheduledEffectiveAt gates promotion: approved versions may not go
	// effective before this instant. Nil means "as soon as training is
	// satisfied".
	ScheduledEffectiveAt *time.Time
	// LastReviewedAt anchors the periodic-review due date. Reset by a
	// no-change review outcome without a version change.
	LastReviewedAt *time.Time
	// RetiredAt is set when the version left circulation (superseded or
	// obsoleted); archival retention counts from here.
	RetiredAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so in-memory stores never hand out aliased
// pointers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.EffectiveAt = cloneTime(r.EffectiveAt)
	cp.ScheduledEffectiveAt = cloneTime(r.ScheduledEffectiveAt)
	cp.LastReviewedAt = cloneTime(r.LastReviewedAt)
	cp.RetiredAt = cloneTime(r.RetiredAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Transition is the immutable fact that a record moved between states.
// Once written it is never modified.
type Transition struct {
	ID         uuid.UUID
	RecordID   domain.RecordID
	VersionRef domain.VersionRef
	FromState  State
	ToState    State
	ActorID    domain.UserID
	// Rationale is mandatory on rejection and obsoletion edges and
	// stored verbatim.
	Rationale string
	// SignatureRef links the committing signature of a gated
	// transition, nil otherwise.
	SignatureRef *uuid.UUID
	// TimeInState is how long the record sat in FromState.
	TimeInState time.Duration
	Timestamp   time.Time
}
