// Package identifier issues unique, human-readable sequential identifiers
// per record type (e.g. VP-0001). Sequences are strictly monotonic even
// under concurrent callers; a number is only consumed when allocation
// succeeds, so retrying after a conflict never burns identifiers.
package identifier

import (
	"context"
	"fmt"
	"log/slog"

	"recordvault/internal/registry"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// CounterStore provides atomic increment-and-fetch per record type.
type CounterStore interface {
	Next(ctx context.Context, recordType domain.RecordType) (uint64, error)
}

// PrefixSource resolves the display prefix for a record type; satisfied
// by *registry.Registry.
type PrefixSource interface {
	GraphFor(recordType domain.RecordType) (registry.Definition, error)
}

type Allocator struct {
	counters CounterStore
	prefixes PrefixSource
	logger   *slog.Logger
}

type Option func(*Allocator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		a.logger = logger
	}
}

func New(counters CounterStore, prefixes PrefixSource, opts ...Option) (*Allocator, error) {
	if counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if prefixes == nil {
		return nil, fmt.Errorf("prefix source is required")
	}

	a := &Allocator{counters: counters, prefixes: prefixes}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Allocate issues the next identifier for a record type. Fails with
// allocation_conflict when the counter store is unreachable; callers
// retry with backoff.
func (a *Allocator) Allocate(ctx context.Context, recordType domain.RecordType) (domain.RecordID, error) {
	def, err := a.prefixes.GraphFor(recordType)
	if err != nil {
		return "", err
	}

	seq, err := a.counters.Next(ctx, recordType)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeAllocationConflict, "identifier counter unavailable")
	}

	id := domain.RecordID(fmt.Sprintf("%s-%04d", def.Prefix, seq))
	if a.logger != nil {
		a.logger.DebugContext(ctx, "identifier allocated",
			"record_type", recordType,
			"record_id", id,
		)
	}
	return id, nil
}
