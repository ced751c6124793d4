package envelope

import (
	"strings"
	"testing"
)

func TestNewMintsIdentifiers(t *testing.T) {
	e, err := New(TopicInbound, "ctx-1", InboundPayload{CustomerRef: "tok", Content: "hi"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.MessageID == "" || e.TaskID == "" {
		t.Fatal("expected minted message and task ids")
	}
	if e.ContextID != "ctx-1" {
		t.Fatalf("context_id = %q", e.ContextID)
	}
	if e.CreatedAt.IsZero() {
		t.Fatal("expected created_at")
	}
}

func TestDerivePreservesContextID(t *testing.T) {
	parent, err := New(TopicInbound, "ctx-42", InboundPayload{Content: "hi"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Walk the whole hop chain; every derived envelope carries the parent's
	// context id and task id with a fresh message id.
	e := parent
	for _, topic := range []string{TopicDispatched, TopicAugmented, TopicDrafted, TopicValidated, TopicOutbound} {
		next, err := e.Derive(topic, map[string]string{})
		if err != nil {
			t.Fatalf("Derive %s: %v", topic, err)
		}
		if next.ContextID != parent.ContextID {
			t.Fatalf("%s: context_id = %q, want %q", topic, next.ContextID, parent.ContextID)
		}
		if next.TaskID != parent.TaskID {
			t.Fatalf("%s: task_id = %q, want %q", topic, next.TaskID, parent.TaskID)
		}
		if next.MessageID == e.MessageID {
			t.Fatalf("%s: derived envelope reused message id", topic)
		}
		e = next
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e, err := New(TopicOutbound, "ctx-9", OutboundPayload{Text: "done", Intent: "general_inquiry"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data, err := e.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.MessageID != e.MessageID || got.ContextID != e.ContextID || got.Topic != e.Topic {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, e)
	}

	var p OutboundPayload
	if err := got.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.Text != "done" {
		t.Fatalf("payload text = %q", p.Text)
	}
}

func TestDecodeRejectsMissingContextID(t *testing.T) {
	_, err := Decode([]byte(`{"message_id":"m1","task_id":"t1","topic":"msg.inbound","payload":{}}`))
	if err == nil || !strings.Contains(err.Error(), "context_id") {
		t.Fatalf("expected context_id error, got %v", err)
	}
}

func TestValidatePayload(t *testing.T) {
	if err := ValidatePayload(TopicInbound, []byte(`{"customer_ref":"tok","content":"hi"}`)); err != nil {
		t.Fatalf("valid inbound rejected: %v", err)
	}
	if err := ValidatePayload(TopicInbound, []byte(`{not json`)); err == nil {
		t.Fatal("expected invalid JSON error")
	}
	if err := ValidatePayload(TopicInbound, []byte(`"just a string"`)); err == nil {
		t.Fatal("expected schema validation error")
	}
	// Unknown topics pass (future-proof).
	if err := ValidatePayload("some.new.topic", []byte(`{"foo":1}`)); err != nil {
		t.Fatalf("unknown topic should pass: %v", err)
	}
	// DLQ topics validate against the mirrored schema.
	if err := ValidatePayload(TopicInbound+DLQSuffix, []byte(`"nope"`)); err == nil {
		t.Fatal("expected DLQ topic to validate against base schema")
	}
}
