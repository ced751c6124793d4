// Package envelope defines the transport unit exchanged between pipeline
// handlers and the topics it travels on.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topic constants for the conversation pipeline.
const (
	TopicInbound    = "msg.inbound"    // raw customer message enters the core
	TopicDispatched = "msg.dispatched" // intent dispatcher output
	TopicAugmented  = "msg.augmented"  // context augmenter output
	TopicDrafted    = "msg.drafted"    // draft generator output
	TopicValidated  = "msg.validated"  // validator verdicts
	TopicOutbound   = "msg.outbound"   // final customer-facing response
	TopicHandoff    = "msg.handoff"    // handoff request to the escalation collaborator
)

// DLQSuffix is appended to a topic when delivery retries are exhausted.
const DLQSuffix = ".dlq"

// Envelope is the unit of transport between handlers. ContextID is the
// conversation correlation key and is never rewritten by any handler: all
// follow-on envelopes must be produced through Derive.
type Envelope struct {
	MessageID string          `json:"message_id"`
	ContextID string          `json:"context_id"`
	TaskID    string          `json:"task_id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// New creates an envelope for a fresh hop in the given conversation.
// MessageID and TaskID are minted; payload is marshaled to JSON.
func New(topic, contextID string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	return Envelope{
		MessageID: uuid.NewString(),
		ContextID: contextID,
		TaskID:    uuid.NewString(),
		Topic:     topic,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Derive produces a follow-on envelope carrying this envelope's ContextID and
// TaskID with a fresh MessageID. TaskID identifies the turn across all of its
// hops, so idempotent side effects (auth code minting, ticket filing) key off
// it. This is the only sanctioned way to emit an envelope while handling
// another.
func (e Envelope) Derive(topic string, payload any) (Envelope, error) {
	out, err := New(topic, e.ContextID, payload)
	if err != nil {
		return Envelope{}, err
	}
	out.TaskID = e.TaskID
	return out, nil
}

// Validate checks structural invariants of the envelope itself.
func (e Envelope) Validate() error {
	if e.MessageID == "" {
		return errors.New("envelope: message_id is required")
	}
	if e.ContextID == "" {
		return errors.New("envelope: context_id is required")
	}
	if e.Topic == "" {
		return errors.New("envelope: topic is required")
	}
	return nil
}

// Encode marshals the envelope for transport.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", e.MessageID, err)
	}
	return data, nil
}

// Decode unmarshals an envelope from transport bytes and validates it.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (e Envelope) DecodePayload(target any) error {
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Topic, err)
	}
	return nil
}
