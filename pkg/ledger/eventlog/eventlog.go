// Package eventlog defines the append-only, sequenced event store
// contract every projection and workflow in the ledger reads from.
package eventlog

import (
	"context"

	"github.com/privateledger/ledger/pkg/ledger/event"
)

// Log is the durable, append-only, sequenced store of typed events.
// Implementations must guarantee that Append either fully commits an
// event (with a strictly increasing, gapless sequence number) or leaves
// the log entirely unchanged.
type Log interface {
	// Append serializes and persists evt, assigning it the next sequence
	// number. Fails with a StorageError-wrapping error if the write
	// cannot be committed.
	Append(ctx context.Context, evt *event.Event) error

	// GetAll returns every event in sequence order.
	GetAll(ctx context.Context) ([]*event.Event, error)

	// GetByType returns every event of the given discriminator, in
	// sequence order.
	GetByType(ctx context.Context, t event.Type) ([]*event.Event, error)

	// GetByAggregate returns every event whose aggregate matches, in
	// sequence order.
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*event.Event, error)

	// GetSince returns every event with sequence strictly greater than
	// sequence, in sequence order.
	GetSince(ctx context.Context, sequence int64) ([]*event.Event, error)

	// GetByID returns a single event by its ID, or nil if absent, so a
	// caller can resolve a suggestion_event_id back to its
	// DuplicateSuggested event.
	GetByID(ctx context.Context, eventID string) (*event.Event, error)

	// LatestSequence returns the current maximum sequence number, or 0 if
	// the log is empty.
	LatestSequence(ctx context.Context) (int64, error)

	// Close releases any resources held by the log.
	Close() error
}

// Since sequence numbers are strictly increasing with no gaps,
// GetSince(n) returning N events means those events occupy sequence
// n+1..n+N in order. Callers that need to advance a
// last-applied-sequence pointer can compute it as n+len(events) without
// the log exposing per-event sequence numbers on the domain type.
