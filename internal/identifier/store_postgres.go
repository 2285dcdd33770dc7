package identifier

import (
	"context"
	"database/sql"
	"fmt"

	"recordvault/pkg/domain"
	txcontext "recordvault/pkg/platform/tx"
)

// PostgresCounterStore allocates sequences from the identifier_counters
// table via an atomic upsert. The RETURNING clause makes increment and
// fetch one statement, so concurrent callers serialize on the row lock.
type PostgresCounterStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresCounterStore {
	return &PostgresCounterStore{db: db}
}

func (s *PostgresCounterStore) Next(ctx context.Context, recordType domain.RecordType) (uint64, error) {
	query := `
		INSERT INTO identifier_counters (record_type, seq)
		VALUES ($1, 1)
		ON CONFLICT (record_type) DO UPDATE SET seq = identifier_counters.seq + 1
		RETURNING seq
	`
	var seq uint64
	err := txcontext.Resolve(ctx, s.db).QueryRowContext(ctx, query, string(recordType)).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("increment identifier counter: %w", err)
	}
	return seq, nil
}
