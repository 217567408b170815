package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/privateledger/ledger/pkg/ledger/ledgererr"
)

// Event is the envelope every fact in the system is recorded as. Events
// are immutable after Append; nothing in this package ever mutates one
// in place.
type Event struct {
	ID            string
	Type          Type
	Timestamp     time.Time
	AggregateType string
	AggregateID   string
	Metadata      map[string]string
	Payload       Payload
}

// New constructs an Event envelope around a validated payload. The caller
// supplies the aggregate identity explicitly because it differs per
// variant (e.g. TransactionDescriptionObserved is keyed by the *original*
// transaction ID, not either of its two referenced IDs).
func New(aggregateType, aggregateID string, payload Payload) (*Event, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          payload.Type(),
		Timestamp:     Now(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Metadata:      map[string]string{},
		Payload:       payload,
	}, nil
}

// NewAt behaves like New but pins the timestamp, used by the migration
// service to derive timestamps from source filenames and transaction
// dates rather than wall-clock time.
func NewAt(aggregateType, aggregateID string, payload Payload, ts time.Time) (*Event, error) {
	evt, err := New(aggregateType, aggregateID, payload)
	if err != nil {
		return nil, err
	}
	evt.Timestamp = ts
	return evt, nil
}

// clockFunc is overridable for deterministic tests.
var clockFunc = time.Now

// Now returns the current time via the package's overridable clock.
func Now() time.Time { return clockFunc() }

// envelopeFields is the flat JSON shape of the envelope half of an Event.
// Payload fields are merged in alongside, so the event_type discriminator
// sits at the top level of the serialized object.
type envelopeFields struct {
	ID            string            `json:"event_id"`
	Type          Type              `json:"event_type"`
	Timestamp     time.Time         `json:"event_timestamp"`
	AggregateType string            `json:"aggregate_type,omitempty"`
	AggregateID   string            `json:"aggregate_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON flattens the envelope and payload into a single JSON object.
func (e *Event) MarshalJSON() ([]byte, error) {
	envelope := envelopeFields{
		ID:            e.ID,
		Type:          e.Type,
		Timestamp:     e.Timestamp,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Metadata:      e.Metadata,
	}

	envelopeBytes, err := json.Marshal(envelope)
	if err != nil {
		return nil, ledgererr.NewSerializationError(e.ID, err)
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(envelopeBytes, &merged); err != nil {
		return nil, ledgererr.NewSerializationError(e.ID, err)
	}

	if e.Payload != nil {
		payloadBytes, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, ledgererr.NewSerializationError(e.ID, err)
		}
		payloadFields := map[string]json.RawMessage{}
		if err := json.Unmarshal(payloadBytes, &payloadFields); err != nil {
			return nil, ledgererr.NewSerializationError(e.ID, err)
		}
		for k, v := range payloadFields {
			merged[k] = v
		}
	}

	return json.Marshal(merged)
}

// UnmarshalJSON reverses MarshalJSON: it reads the event_type discriminator
// to pick the concrete payload type, then decodes the whole object twice
// (once into the envelope, once into the payload) since the payload's
// fields live alongside the envelope's in the same flat object.
func (e *Event) UnmarshalJSON(data []byte) error {
	var envelope envelopeFields
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ledgererr.NewSerializationError(envelope.ID, err)
	}

	e.ID = envelope.ID
	e.Type = envelope.Type
	e.Timestamp = envelope.Timestamp
	e.AggregateType = envelope.AggregateType
	e.AggregateID = envelope.AggregateID
	e.Metadata = envelope.Metadata

	payload := newPayload(envelope.Type)
	if payload == nil {
		// Unknown variant: keep the envelope, drop the payload, so logs
		// written by newer revisions still read.
		e.Payload = nil
		return nil
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return ledgererr.NewSerializationError(envelope.ID, err)
	}
	e.Payload = payload
	return nil
}
