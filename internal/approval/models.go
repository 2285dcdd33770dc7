// Package approval manages reviewer assignment and electronic signature
// collection for gated transitions. Signatures bind a signer to the exact
// record version and content they approved; signatures against a prior
// version never count toward a gate.
package approval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"recordvault/pkg/domain"
)

// Assignment is one reviewer slot on a pending gate. Position carries the
// definition order for sequential mode; parallel mode ignores it.
type Assignment struct {
	ID         uuid.UUID
	VersionRef domain.VersionRef
	Role       domain.Role
	AssigneeID domain.UserID
	Position   int
	AssignedBy domain.UserID
	AssignedAt time.Time
}

// Signature is an immutable electronic signature. ContentHash binds the
// signed content; SignatureHash binds signer, content and time together
// so any later edit is detectable.
type Signature struct {
	ID            uuid.UUID
	VersionRef    domain.VersionRef
	SignerID      domain.UserID
	Role          domain.Role
	Meaning       string
	ContentHash   string
	SignatureHash string
	SignedAt      time.Time
}

// Status reports gate progress for one record version.
type Status struct {
	Pending   []domain.Role
	Satisfied bool
}

func hashContent(contentRef domain.ContentRef) string {
	sum := sha256.Sum256([]byte(contentRef))
	return hex.EncodeToString(sum[:])
}

func hashSignature(signer domain.UserID, contentHash string, signedAt time.Time) string {
	material := fmt.Sprintf("%s|%s|%s", signer, contentHash, signedAt.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}
