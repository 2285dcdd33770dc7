// Package domain holds the identifier primitives shared by every engine
// module. Each ID is its own type so the compiler rejects cross-wiring a
// user where a version ref belongs.
package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "recordvault/pkg/domain-errors"
)

// VersionRef identifies exactly one version row of a record family.
// Transitions, signatures, training assignments and audit entries all key
// off this ref.
type VersionRef uuid.UUID

// UserID identifies an actor (owner, reviewer, trainee, admin).
type UserID uuid.UUID

// RecordID is the stable human-readable family identifier, e.g. "SOP-0042".
// Every version of a family shares one RecordID.
type RecordID string

// RecordType is the lifecycle configuration key, e.g. "sop", "bpr".
type RecordType string

// Role names an approver role required on a gated transition.
type Role string

// ContentRef is an opaque pointer to externally-owned content. The engine
// never dereferences it.
type ContentRef string

func NewVersionRef() VersionRef { return VersionRef(uuid.New()) }
func NewUserID() UserID         { return UserID(uuid.New()) }

func (v VersionRef) IsNil() bool    { return uuid.UUID(v) == uuid.Nil }
func (v VersionRef) String() string { return uuid.UUID(v).String() }

func (u UserID) IsNil() bool    { return uuid.UUID(u) == uuid.Nil }
func (u UserID) String() string { return uuid.UUID(u).String() }

// ParseVersionRef parses a version ref from its string form. Empty and nil
// UUIDs are rejected: a zero ref is always a caller bug, never a lookup key.
func ParseVersionRef(s string) (VersionRef, error) {
	parsed, err := parseUUID(s, "version ref")
	return VersionRef(parsed), err
}

// ParseUserID parses a user ID from its string form.
func ParseUserID(s string) (UserID, error) {
	parsed, err := parseUUID(s, "user id")
	return UserID(parsed), err
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "%s must not be empty", what)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "%s is not a valid UUID", what)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "%s must not be the nil UUID", what)
	}
	return parsed, nil
}

// recordIDPattern matches the display form produced by the identifier
// allocator: an upper-case prefix, a dash, and a zero-padded sequence.
var recordIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,11}-\d{4,}$`)

// ParseRecordID validates the display form of a family identifier.
func ParseRecordID(s string) (RecordID, error) {
	if !recordIDPattern.MatchString(s) {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "record id %q is not in <PREFIX>-<sequence> form", s)
	}
	return RecordID(s), nil
}

// ParseRecordType validates a lifecycle configuration key.
func ParseRecordType(s string) (RecordType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "record type must not be empty")
	}
	if strings.ToLower(s) != s || strings.ContainsAny(s, " \t/") {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "record type %q must be a lower-case slug", s)
	}
	return RecordType(s), nil
}

func (r RecordID) String() string   { return string(r) }
func (t RecordType) String() string { return string(t) }
func (r Role) String() string       { return string(r) }
