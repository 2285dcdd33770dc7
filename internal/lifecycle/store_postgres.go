package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"recordvault/internal/lifecycle/models"
	"recordvault/internal/version"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
	txcontext "recordvault/pkg/platform/tx"
)

// PostgresStore persists record versions in records and transition facts
// in transitions. Version labels are stored as major/minor integer
// columns so ordering works in SQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, record *models.Record) error {
	query := `
		INSERT INTO records (
			version_ref, record_id, record_type, version_major, version_minor,
			state, owner_id, content_ref, effective_at, scheduled_effective_at,
			last_reviewed_at, retired_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, query,
		record.VersionRef.String(), string(record.RecordID), string(record.RecordType),
		record.Version.Major, record.Version.Minor, string(record.State),
		record.OwnerID.String(), string(record.ContentRef),
		record.EffectiveAt, record.ScheduledEffectiveAt,
		record.LastReviewedAt, record.RetiredAt,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, record *models.Record) error {
	query := `
		UPDATE records SET
			state = $2, effective_at = $3, scheduled_effective_at = $4,
			last_reviewed_at = $5, retired_at = $6, updated_at = $7
		WHERE version_ref = $1
	`
	result, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, query,
		record.VersionRef.String(), string(record.State),
		record.EffectiveAt, record.ScheduledEffectiveAt,
		record.LastReviewedAt, record.RetiredAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if affected == 0 {
		return dErrors.Newf(dErrors.CodeNotFound, "version ref %s not found", record.VersionRef)
	}
	return nil
}

const selectRecord = `
	SELECT version_ref, record_id, record_type, version_major, version_minor,
	       state, owner_id, content_ref, effective_at, scheduled_effective_at,
	       last_reviewed_at, retired_at, created_at, updated_at
	FROM records
`

func (s *PostgresStore) GetByRef(ctx context.Context, ref domain.VersionRef) (*models.Record, error) {
	row := txcontext.Resolve(ctx, s.db).QueryRowContext(ctx,
		selectRecord+` WHERE version_ref = $1`, ref.String())
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "version ref %s not found", ref)
	}
	return record, err
}

func (s *PostgresStore) Head(ctx context.Context, recordID domain.RecordID) (*models.Record, error) {
	row := txcontext.Resolve(ctx, s.db).QueryRowContext(ctx,
		selectRecord+` WHERE record_id = $1 ORDER BY version_major DESC, version_minor DESC LIMIT 1`,
		string(recordID))
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "record family %s not found", recordID)
	}
	return record, err
}

func (s *PostgresStore) Effective(ctx context.Context, recordID domain.RecordID) (*models.Record, error) {
	row := txcontext.Resolve(ctx, s.db).QueryRowContext(ctx,
		selectRecord+` WHERE record_id = $1 AND state = $2`, string(recordID), string(models.StateEffective))
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

func (s *PostgresStore) Family(ctx context.Context, recordID domain.RecordID) ([]*models.Record, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx,
		selectRecord+` WHERE record_id = $1 ORDER BY version_major, version_minor`, string(recordID))
	if err != nil {
		return nil, fmt.Errorf("query record family: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "record family %s not found", recordID)
	}
	return records, nil
}

func (s *PostgresStore) ListByState(ctx context.Context, state models.State) ([]*models.Record, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx,
		selectRecord+` WHERE state = $1 ORDER BY record_id, version_major, version_minor`, string(state))
	if err != nil {
		return nil, fmt.Errorf("query records by state: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) InsertTransition(ctx context.Context, t models.Transition) error {
	query := `
		INSERT INTO transitions (
			id, record_id, version_ref, from_state, to_state, actor_id,
			rationale, signature_ref, time_in_state_ns, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, query,
		t.ID, string(t.RecordID), t.VersionRef.String(),
		string(t.FromState), string(t.ToState), t.ActorID.String(),
		t.Rationale, t.SignatureRef, int64(t.TimeInState), t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

func (s *PostgresStore) TransitionsByFamily(ctx context.Context, recordID domain.RecordID) ([]models.Transition, error) {
	query := `
		SELECT id, record_id, version_ref, from_state, to_state, actor_id,
		       rationale, signature_ref, time_in_state_ns, created_at
		FROM transitions
		WHERE record_id = $1
		ORDER BY created_at, id
	`
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, query, string(recordID))
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []models.Transition
	for rows.Next() {
		var (
			t         models.Transition
			recID     string
			refStr    string
			from, to  string
			actor     string
			elapsedNS int64
		)
		if err := rows.Scan(&t.ID, &recID, &refStr, &from, &to, &actor,
			&t.Rationale, &t.SignatureRef, &elapsedNS, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		if t.VersionRef, err = domain.ParseVersionRef(refStr); err != nil {
			return nil, fmt.Errorf("stored version ref invalid: %w", err)
		}
		if t.ActorID, err = domain.ParseUserID(actor); err != nil {
			return nil, fmt.Errorf("stored actor id invalid: %w", err)
		}
		t.RecordID = domain.RecordID(recID)
		t.FromState = models.State(from)
		t.ToState = models.State(to)
		t.TimeInState = time.Duration(elapsedNS)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		r          models.Record
		refStr     string
		recID      string
		recType    string
		major      int
		minor      int
		state      string
		owner      string
		contentRef string
	)
	err := row.Scan(&refStr, &recID, &recType, &major, &minor, &state, &owner,
		&contentRef, &r.EffectiveAt, &r.ScheduledEffectiveAt,
		&r.LastReviewedAt, &r.RetiredAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if r.VersionRef, err = domain.ParseVersionRef(refStr); err != nil {
		return nil, fmt.Errorf("stored version ref invalid: %w", err)
	}
	if r.OwnerID, err = domain.ParseUserID(owner); err != nil {
		return nil, fmt.Errorf("stored owner id invalid: %w", err)
	}
	r.RecordID = domain.RecordID(recID)
	r.RecordType = domain.RecordType(recType)
	r.Version = version.Label{Major: major, Minor: minor}
	r.State = models.State(state)
	r.ContentRef = domain.ContentRef(contentRef)
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]*models.Record, error) {
	var out []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}
