package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"recordvault/pkg/domain"
	txcontext "recordvault/pkg/platform/tx"
)

// PostgresStore persists entries in audit_entries. The table carries
// triggers that raise on UPDATE and DELETE, so immutability is enforced
// by the database and not only by this type's method set.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO audit_entries (
			id, record_id, version_ref, actor_id, event_type,
			payload, payload_digest, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, query,
		entry.ID,
		string(entry.RecordID),
		entry.VersionRef.String(),
		entry.ActorID.String(),
		string(entry.EventType),
		entry.Payload,
		entry.PayloadDigest,
		entry.RequestID,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const selectEntry = `
	SELECT id, record_id, version_ref, actor_id, event_type,
	       payload, payload_digest, request_id, created_at
	FROM audit_entries
`

func (s *PostgresStore) ListByVersion(ctx context.Context, ref domain.VersionRef) ([]Entry, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx,
		selectEntry+` WHERE version_ref = $1 ORDER BY created_at, id`, ref.String())
	if err != nil {
		return nil, fmt.Errorf("query audit entries by version: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListByRecord(ctx context.Context, recordID domain.RecordID) ([]Entry, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx,
		selectEntry+` WHERE record_id = $1 ORDER BY created_at, id`, string(recordID))
	if err != nil {
		return nil, fmt.Errorf("query audit entries by record: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListSince(ctx context.Context, after time.Time, limit int) ([]Entry, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx,
		selectEntry+` WHERE created_at > $1 ORDER BY created_at, id LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries since: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			id        uuid.UUID
			recordID  string
			ref       string
			actor     string
			eventType string
		)
		if err := rows.Scan(&id, &recordID, &ref, &actor, &eventType,
			&e.Payload, &e.PayloadDigest, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		versionRef, err := domain.ParseVersionRef(ref)
		if err != nil {
			return nil, fmt.Errorf("stored version ref invalid: %w", err)
		}
		actorID, err := domain.ParseUserID(actor)
		if err != nil {
			return nil, fmt.Errorf("stored actor id invalid: %w", err)
		}

		e.ID = id
		e.RecordID = domain.RecordID(recordID)
		e.VersionRef = versionRef
		e.ActorID = actorID
		e.EventType = EventType(eventType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
