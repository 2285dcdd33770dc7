// Package export streams committed audit entries to Kafka for downstream
// compliance archival. The exporter polls the ledger rather than hooking
// the write path, so a rolled-back transaction can never leak an entry
// and a Kafka outage never blocks record operations.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"recordvault/internal/audit"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 200
)

// Exporter tails the audit store and publishes entries keyed by record
// family, so one family's trail lands on one partition in order.
type Exporter struct {
	store    audit.Store
	client   *kgo.Client
	topic    string
	logger   *slog.Logger
	interval time.Duration
	batch    int
	cursor   time.Time
}

type Option func(*Exporter)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(e *Exporter) {
		e.interval = d
	}
}

// New connects to the brokers and ensures the export topic exists.
func New(ctx context.Context, store audit.Store, brokers []string, topic string, opts ...Option) (*Exporter, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}

	e := &Exporter{
		store:    store,
		client:   client,
		topic:    topic,
		interval: defaultPollInterval,
		batch:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 3, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create export topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create export topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Run polls until the context is cancelled. Entries are re-read from the
// cursor on publish failure, so delivery is at-least-once; consumers
// dedupe on entry ID.
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.drain(ctx); err != nil {
				if e.logger != nil {
					e.logger.WarnContext(ctx, "audit export pass failed", "error", err)
				}
			}
		}
	}
}

func (e *Exporter) drain(ctx context.Context) error {
	for {
		entries, err := e.store.ListSince(ctx, e.cursor, e.batch)
		if err != nil {
			return fmt.Errorf("read audit entries: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		records := make([]*kgo.Record, 0, len(entries))
		for _, entry := range entries {
			value, err := json.Marshal(exportEnvelope{
				ID:            entry.ID.String(),
				RecordID:      entry.RecordID.String(),
				VersionRef:    entry.VersionRef.String(),
				ActorID:       entry.ActorID.String(),
				EventType:     string(entry.EventType),
				Payload:       entry.Payload,
				PayloadDigest: entry.PayloadDigest,
				RequestID:     entry.RequestID,
				Timestamp:     entry.Timestamp,
			})
			if err != nil {
				return fmt.Errorf("marshal export envelope: %w", err)
			}
			records = append(records, &kgo.Record{
				Topic: e.topic,
				Key:   []byte(entry.RecordID),
				Value: value,
			})
		}

		if err := e.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
			return fmt.Errorf("publish audit entries: %w", err)
		}

		e.cursor = entries[len(entries)-1].Timestamp
		if e.logger != nil {
			e.logger.DebugContext(ctx, "audit entries exported",
				"count", len(entries),
				"cursor", e.cursor,
			)
		}
		if len(entries) < e.batch {
			return nil
		}
	}
}

func (e *Exporter) Close() {
	e.client.Close()
}

type exportEnvelope struct {
	ID            string          `json:"id"`
	RecordID      string          `json:"record_id"`
	VersionRef    string          `json:"version_ref"`
	ActorID       string          `json:"actor_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PayloadDigest string          `json:"payload_digest"`
	RequestID     string          `json:"request_id"`
	Timestamp     time.Time       `json:"timestamp"`
}
