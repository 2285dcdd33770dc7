package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"recordvault/internal/platform/metrics"
	"recordvault/internal/platform/middleware"
	"recordvault/pkg/domain"
)

// Store persists audit entries. Implementations must be append-only;
// there is deliberately no update or delete.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByVersion(ctx context.Context, ref domain.VersionRef) ([]Entry, error)
	ListByRecord(ctx context.Context, recordID domain.RecordID) ([]Entry, error)
	ListSince(ctx context.Context, after time.Time, limit int) ([]Entry, error)
}

// Trail is the write side of the audit ledger. Callers invoke Record
// inside the transaction that performs the change so a committed change
// always carries its audit fact and a rolled-back one leaves no trace.
type Trail struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type TrailOption func(*Trail)

func WithLogger(logger *slog.Logger) TrailOption {
	return func(t *Trail) {
		t.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) TrailOption {
	return func(t *Trail) {
		t.metrics = m
	}
}

func NewTrail(store Store, opts ...TrailOption) (*Trail, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}

	t := &Trail{store: store}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Record appends one entry. The payload is marshalled to JSON and hashed;
// request correlation is picked up from the context when present.
func (t *Trail) Record(ctx context.Context, recordID domain.RecordID, ref domain.VersionRef, actorID domain.UserID, eventType EventType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	digest := sha256.Sum256(body)

	entry := Entry{
		ID:            uuid.New(),
		RecordID:      recordID,
		VersionRef:    ref,
		ActorID:       actorID,
		EventType:     eventType,
		Payload:       body,
		PayloadDigest: hex.EncodeToString(digest[:]),
		RequestID:     middleware.GetRequestID(ctx),
		Timestamp:     time.Now().UTC(),
	}

	if err := t.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	if t.metrics != nil {
		t.metrics.AuditEntriesAppended.Inc()
	}
	if t.logger != nil {
		t.logger.DebugContext(ctx, "audit entry appended",
			"record_id", recordID,
			"version_ref", ref,
			"event_type", eventType,
		)
	}
	return nil
}

// ByVersion returns the trail for one record version, oldest first.
func (t *Trail) ByVersion(ctx context.Context, ref domain.VersionRef) ([]Entry, error) {
	return t.store.ListByVersion(ctx, ref)
}

// ByRecord returns the trail across every version of a record family,
// oldest first.
func (t *Trail) ByRecord(ctx context.Context, recordID domain.RecordID) ([]Entry, error) {
	return t.store.ListByRecord(ctx, recordID)
}
