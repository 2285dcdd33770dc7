// Package audit is the append-only ledger of everything the engine does:
// record mutations, transitions, signatures and gate decisions. Entries
// are written in the same transaction as the change they describe and are
// never updated or deleted afterwards.
package audit

import (
	"time"

	"github.com/google/uuid"

	"recordvault/pkg/domain"
)

// EventType classifies audit entries.
type EventType string

const (
	EventRecordCreated        EventType = "record_created"
	EventTransitionCommitted  EventType = "transition_committed"
	EventTransitionRefused    EventType = "transition_refused"
	EventReviewersAssigned    EventType = "reviewers_assigned"
	EventSignatureRecorded    EventType = "signature_recorded"
	EventSignatureRejected    EventType = "signature_rejected"
	EventGateRejected         EventType = "gate_rejected"
	EventTrainingAssigned     EventType = "training_assigned"
	EventTrainingAcknowledged EventType = "training_acknowledged"
	EventReadDenied           EventType = "read_denied"
	EventReviewCompleted      EventType = "review_completed"
	EventRecordSuperseded     EventType = "record_superseded"
	EventRecordArchived       EventType = "record_archived"
)

// Entry is one immutable audit fact. Payload carries the event detail as
// JSON; PayloadDigest is its SHA-256 hex so an export consumer can verify
// integrity without re-canonicalizing.
type Entry struct {
	ID            uuid.UUID
	RecordID      domain.RecordID
	VersionRef    domain.VersionRef
	ActorID       domain.UserID
	EventType     EventType
	Payload       []byte
	PayloadDigest string
	RequestID     string
	Timestamp     time.Time
}
