package approval

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"recordvault/pkg/domain"
	txcontext "recordvault/pkg/platform/tx"
)

// PostgresStore persists assignments in reviewer_assignments and
// signatures in signatures. The signatures table carries raise-on-write
// triggers for UPDATE and DELETE; assignments are the only rows this
// store ever removes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) PutAssignments(ctx context.Context, ref domain.VersionRef, assignments []Assignment) error {
	exec := txcontext.Resolve(ctx, s.db)
	query := `
		INSERT INTO reviewer_assignments (
			id, version_ref, role, assignee_id, position, assigned_by, assigned_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, a := range assignments {
		if _, err := exec.ExecContext(ctx, query,
			a.ID, ref.String(), string(a.Role), a.AssigneeID.String(),
			a.Position, a.AssignedBy.String(), a.AssignedAt,
		); err != nil {
			return fmt.Errorf("insert reviewer assignment: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Assignments(ctx context.Context, ref domain.VersionRef) ([]Assignment, error) {
	query := `
		SELECT id, version_ref, role, assignee_id, position, assigned_by, assigned_at
		FROM reviewer_assignments
		WHERE version_ref = $1
		ORDER BY position
	`
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, query, ref.String())
	if err != nil {
		return nil, fmt.Errorf("query reviewer assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var (
			a          Assignment
			refStr     string
			role       string
			assignee   string
			assignedBy string
		)
		if err := rows.Scan(&a.ID, &refStr, &role, &assignee, &a.Position, &assignedBy, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan reviewer assignment: %w", err)
		}
		if a.VersionRef, err = domain.ParseVersionRef(refStr); err != nil {
			return nil, fmt.Errorf("stored version ref invalid: %w", err)
		}
		if a.AssigneeID, err = domain.ParseUserID(assignee); err != nil {
			return nil, fmt.Errorf("stored assignee id invalid: %w", err)
		}
		if a.AssignedBy, err = domain.ParseUserID(assignedBy); err != nil {
			return nil, fmt.Errorf("stored assigner id invalid: %w", err)
		}
		a.Role = domain.Role(role)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviewer assignments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DiscardAssignments(ctx context.Context, ref domain.VersionRef) error {
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx,
		`DELETE FROM reviewer_assignments WHERE version_ref = $1`, ref.String())
	if err != nil {
		return fmt.Errorf("discard reviewer assignments: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddSignature(ctx context.Context, sig Signature) error {
	query := `
		INSERT INTO signatures (
			id, version_ref, signer_id, role, meaning,
			content_hash, signature_hash, signed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, query,
		sig.ID, sig.VersionRef.String(), sig.SignerID.String(), string(sig.Role),
		sig.Meaning, sig.ContentHash, sig.SignatureHash, sig.SignedAt,
	)
	if err != nil {
		return fmt.Errorf("insert signature: %w", err)
	}
	return nil
}

func (s *PostgresStore) Signatures(ctx context.Context, ref domain.VersionRef) ([]Signature, error) {
	query := `
		SELECT id, version_ref, signer_id, role, meaning,
		       content_hash, signature_hash, signed_at
		FROM signatures
		WHERE version_ref = $1
		ORDER BY signed_at, id
	`
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, query, ref.String())
	if err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	defer rows.Close()

	var out []Signature
	for rows.Next() {
		var (
			sig    Signature
			id     uuid.UUID
			refStr string
			signer string
			role   string
		)
		if err := rows.Scan(&id, &refStr, &signer, &role, &sig.Meaning,
			&sig.ContentHash, &sig.SignatureHash, &sig.SignedAt); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		if sig.VersionRef, err = domain.ParseVersionRef(refStr); err != nil {
			return nil, fmt.Errorf("stored version ref invalid: %w", err)
		}
		if sig.SignerID, err = domain.ParseUserID(signer); err != nil {
			return nil, fmt.Errorf("stored signer id invalid: %w", err)
		}
		sig.ID = id
		sig.Role = domain.Role(role)
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return out, nil
}
