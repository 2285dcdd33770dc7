package training

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
	txcontext "recordvault/pkg/platform/tx"
)

// PostgresStore persists assignments in training_assignments. The only
// permitted update is stamping acknowledged_at exactly once; the schema
// trigger rejects any other column change.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, assignments []Assignment) error {
	exec := txcontext.Resolve(ctx, s.db)
	query := `
		INSERT INTO training_assignments (
			id, version_ref, user_id, assigned_by, assigned_at, acknowledged_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, a := range assignments {
		if _, err := exec.ExecContext(ctx, query,
			a.ID, a.VersionRef.String(), a.UserID.String(),
			a.AssignedBy.String(), a.AssignedAt, a.AcknowledgedAt,
		); err != nil {
			return fmt.Errorf("insert training assignment: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, ref domain.VersionRef) ([]Assignment, error) {
	query := `
		SELECT id, version_ref, user_id, assigned_by, assigned_at, acknowledged_at
		FROM training_assignments
		WHERE version_ref = $1
		ORDER BY assigned_at, id
	`
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, query, ref.String())
	if err != nil {
		return nil, fmt.Errorf("query training assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var (
			a          Assignment
			refStr     string
			userID     string
			assignedBy string
			ack        sql.NullTime
		)
		if err := rows.Scan(&a.ID, &refStr, &userID, &assignedBy, &a.AssignedAt, &ack); err != nil {
			return nil, fmt.Errorf("scan training assignment: %w", err)
		}
		if a.VersionRef, err = domain.ParseVersionRef(refStr); err != nil {
			return nil, fmt.Errorf("stored version ref invalid: %w", err)
		}
		if a.UserID, err = domain.ParseUserID(userID); err != nil {
			return nil, fmt.Errorf("stored trainee id invalid: %w", err)
		}
		if a.AssignedBy, err = domain.ParseUserID(assignedBy); err != nil {
			return nil, fmt.Errorf("stored assigner id invalid: %w", err)
		}
		if ack.Valid {
			t := ack.Time
			a.AcknowledgedAt = &t
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training assignments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Acknowledge(ctx context.Context, ref domain.VersionRef, userID domain.UserID, at time.Time) error {
	exec := txcontext.Resolve(ctx, s.db)

	result, err := exec.ExecContext(ctx, `
		UPDATE training_assignments
		SET acknowledged_at = $3
		WHERE version_ref = $1 AND user_id = $2 AND acknowledged_at IS NULL
	`, ref.String(), userID.String(), at)
	if err != nil {
		return fmt.Errorf("acknowledge training: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("acknowledge training: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	err = exec.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM training_assignments WHERE version_ref = $1 AND user_id = $2
		)
	`, ref.String(), userID.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("acknowledge training: %w", err)
	}
	if exists {
		return dErrors.New(dErrors.CodeConflict, "training already acknowledged")
	}
	return dErrors.New(dErrors.CodeNotFound, "user is not a required trainee for this version")
}
