package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/contextstore"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/conversation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/draft"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/envelope"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/escalation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/intent"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/knowledge"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/llm"
)

func orderFragment(orderID, total string) knowledge.Fragment {
	return knowledge.Fragment{
		Type: knowledge.FragmentOrder,
		Key:  orderID,
		Fields: map[string]string{
			knowledge.FieldOrderTotal:  total,
			knowledge.FieldOrderStatus: "delivered",
		},
	}
}

func augmentedEnvelope(t *testing.T, contextID string, p envelope.AugmentedPayload) envelope.Envelope {
	t.Helper()
	env, err := envelope.New(envelope.TopicAugmented, contextID, p)
	if err != nil {
		t.Fatalf("envelope.New: %v", err)
	}
	return env
}

// openTurn seeds a conversation mid-turn so generator hops have state to work
// against.
func openTurn(t *testing.T, store *contextstore.Store, contextID, content string) {
	t.Helper()
	err := store.Begin(context.Background(), contextID, func(c *conversation.Context) error {
		c.BeginTurn(content)
		return nil
	})
	if err != nil {
		t.Fatalf("openTurn: %v", err)
	}
}

func refundPayload(total string) envelope.AugmentedPayload {
	p := envelope.AugmentedPayload{
		Content: "I want a refund for ORD-7",
		Dispatch: intent.DispatchResult{
			Intent:          intent.IntentRefund,
			Confidence:      0.85,
			ExtractedFields: map[string]string{intent.FieldOrderID: "ORD-7"},
			RoutingTarget:   intent.TargetPolicy,
		},
	}
	if total != "" {
		p.Fragments = []knowledge.Fragment{orderFragment("ORD-7", total)}
	}
	return p
}

func TestRefundUnderThresholdMintsAuthCode(t *testing.T) {
	b := &captureBus{}
	store := newStore(t)
	g := NewGenerator(b, store, newTestPool(t, nil), defaultThresholds(), nil, discardLogger())

	openTurn(t, store, "ctx-1", "refund please")
	env := augmentedEnvelope(t, "ctx-1", refundPayload("30.22"))
	if err := g.HandleAugmented(context.Background(), envelope.TopicAugmented, encodeEnv(t, env)); err != nil {
		t.Fatalf("HandleAugmented: %v", err)
	}

	var p envelope.DraftedPayload
	if err := b.last(t, envelope.TopicDrafted).DecodePayload(&p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	want := fmt.Sprintf("REF-%s-ORD-7", time.Now().UTC().Format("20060102"))
	if p.Draft.AuthCode != want {
		t.Fatalf("auth code = %q, want %q", p.Draft.AuthCode, want)
	}
	if p.Draft.Degraded {
		t.Fatal("unexpected degraded draft")
	}

	c, err := store.Get("ctx-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Signals.Has(escalation.SignalHighValue) {
		t.Fatal("under-threshold refund must not carry a high-value signal")
	}
}

func TestAuthCodeMintedOncePerTask(t *testing.T) {
	b := &captureBus{}
	store := newStore(t)
	g := NewGenerator(b, store, newTestPool(t, nil), defaultThresholds(), nil, discardLogger())

	openTurn(t, store, "ctx-2", "refund please")
	env := augmentedEnvelope(t, "ctx-2", refundPayload("10.00"))
	data := encodeEnv(t, env)

	// Redelivery of the same task must reuse the code, not mint a second one.
	if err := g.HandleAugmented(context.Background(), envelope.TopicAugmented, data); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	first := b.last(t, envelope.TopicDrafted)

	if err := g.HandleAugmented(context.Background(), envelope.TopicAugmented, data); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	second := b.last(t, envelope.TopicDrafted)

	var p1, p2 envelope.DraftedPayload
	if err := first.DecodePayload(&p1); err != nil {
		t.Fatalf("payload 1: %v", err)
	}
	if err := second.DecodePayload(&p2); err != nil {
		t.Fatalf("payload 2: %v", err)
	}
	if p1.Draft.AuthCode == "" || p1.Draft.AuthCode != p2.Draft.AuthCode {
		t.Fatalf("auth codes differ across redelivery: %q vs %q", p1.Draft.AuthCode, p2.Draft.AuthCode)
	}
}

func TestRefundOverThresholdSignalsHighValue(t *testing.T) {
	b := &captureBus{}
	store := newStore(t)
	g := NewGenerator(b, store, newTestPool(t, nil), defaultThresholds(), nil, discardLogger())

	openTurn(t, store, "ctx-3", "refund please")
	env := augmentedEnvelope(t, "ctx-3", refundPayload("86.37"))
	if err := g.HandleAugmented(context.Background(), envelope.TopicAugmented, encodeEnv(t, env)); err != nil {
		t.Fatalf("HandleAugmented: %v", err)
	}

	var p envelope.DraftedPayload
	if err := b.last(t, envelope.TopicDrafted).DecodePayload(&p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Draft.AuthCode != "" {
		t.Fatalf("over-threshold refund minted code %q", p.Draft.AuthCode)
	}

	c, err := store.Get("ctx-3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !c.Signals.Has(escalation.SignalHighValue) {
		t.Fatal("expected high-value signal")
	}
}

func TestRefundUnknownOrderTakesNotFoundPath(t *testing.T) {
	b := &captureBus{}
	store := newStore(t)
	// Force the template so the clarification text is deterministic.
	pool := newTestPool(t, func(ctx context.Context, req llm.Request) (string, error) {
		return "", errors.New("completion unavailable")
	})
	g := NewGenerator(b, store, pool, defaultThresholds(), nil, discardLogger())

	openTurn(t, store, "ctx-4", "refund please")
	// Order id extracted, no order fragment, no commerce failure recorded:
	// the collaborator definitively answered that the order does not exist.
	env := augmentedEnvelope(t, "ctx-4", refundPayload(""))
	if err := g.HandleAugmented(context.Background(), envelope.TopicAugmented, encodeEnv(t, env)); err != nil {
		t.Fatalf("HandleAugmented: %v", err)
	}

	var p envelope.DraftedPayload
	if err := b.last(t, envelope.TopicDrafted).DecodePayload(&p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Draft.AuthCode != "" {
		t.Fatalf("unknown order minted code %q", p.Draft.AuthCode)
	}
	if !strings.Contains(p.Draft.Text, "ORD-7") || !strings.Contains(p.Draft.Text, "could not find") {
		t.Fatalf("expected a clarification mentioning the order id, got %q", p.Draft.Text)
	}

	c, err := store.Get("ctx-4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Signals.Has(escalation.SignalHighValue) {
		t.Fatal("unknown order must not escalate as high value")
	}
}

func TestRefundWithUnverifiableTotalSignalsHighValue(t *testing.T) {
	cases := []struct {
		name    string
		payload func() envelope.AugmentedPayload
	}{
		{"degraded order lookup", func() envelope.AugmentedPayload {
			p := refundPayload("")
			p.Partial.Fail("commerce")
			return p
		}},
		{"unparsable order total", func() envelope.AugmentedPayload {
			return refundPayload("n/a")
		}},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &captureBus{}
			store := newStore(t)
			g := NewGenerator(b, store, newTestPool(t, nil), defaultThresholds(), nil, discardLogger())

			contextID := fmt.Sprintf("ctx-uv-%d", i)
			openTurn(t, store, contextID, "refund please")
			env := augmentedEnvelope(t, contextID, tc.payload())
			if err := g.HandleAugmented(context.Background(), envelope.TopicAugmented, encodeEnv(t, env)); err != nil {
				t.Fatalf("HandleAugmented: %v", err)
			}

			var p envelope.DraftedPayload
			if err := b.last(t, envelope.TopicDrafted).DecodePayload(&p); err != nil {
				t.Fatalf("payload: %v", err)
			}
			if p.Draft.AuthCode != "" {
				t.Fatalf("unverifiable reversal minted code %q", p.Draft.AuthCode)
			}

			c, err := store.Get(contextID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !c.Signals.Has(escalation.SignalHighValue) {
				t.Fatal("unverifiable reversal must be treated as high value")
			}
		})
	}
}

func TestGenerationFailureDegradesToTemplate(t *testing.T) {
	b := &captureBus{}
	store := newStore(t)
	pool := newTestPool(t, func(ctx context.Context, req llm.Request) (string, error) {
		return "", errors.New("completion unavailable")
	})
	g := NewGenerator(b, store, pool, defaultThresholds(), nil, discardLogger())

	openTurn(t, store, "ctx-5", "refund please")
	env := augmentedEnvelope(t, "ctx-5", refundPayload("10.00"))
	if err := g.HandleAugmented(context.Background(), envelope.TopicAugmented, encodeEnv(t, env)); err != nil {
		t.Fatalf("HandleAugmented: %v", err)
	}

	var p envelope.DraftedPayload
	if err := b.last(t, envelope.TopicDrafted).DecodePayload(&p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !p.Draft.Degraded {
		t.Fatal("expected degraded draft")
	}
	// The business outcome survives the degradation.
	if !strings.Contains(p.Draft.Text, p.Draft.AuthCode) || p.Draft.AuthCode == "" {
		t.Fatalf("template lost the auth code: %q", p.Draft.Text)
	}

	c, err := store.Get("ctx-5")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !c.Signals.Has(escalation.SignalDegradedGeneration) {
		t.Fatal("expected degraded-generation signal")
	}
}

func TestRejectionNotesReachRegeneration(t *testing.T) {
	b := &captureBus{}
	store := newStore(t)

	var captured llm.Request
	pool := newTestPool(t, func(ctx context.Context, req llm.Request) (string, error) {
		captured = req
		return "A careful reply.", nil
	})
	g := NewGenerator(b, store, pool, defaultThresholds(), nil, discardLogger())

	err := store.Begin(context.Background(), "ctx-6", func(c *conversation.Context) error {
		c.BeginTurn("tell me about sizing")
		c.RetryCount = 1
		c.RejectionNotes = []string{"pii_leak"}
		c.State = draft.StateRegenerating
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	env := augmentedEnvelope(t, "ctx-6", envelope.AugmentedPayload{
		Content:  "tell me about sizing",
		Dispatch: intent.DispatchResult{Intent: intent.IntentProduct, Confidence: 0.65},
	})
	if err := g.HandleAugmented(context.Background(), envelope.TopicAugmented, encodeEnv(t, env)); err != nil {
		t.Fatalf("HandleAugmented: %v", err)
	}

	found := false
	for _, c := range captured.Context {
		if strings.Contains(c, "pii_leak") {
			found = true
		}
	}
	if !found {
		t.Fatalf("rejection note missing from request context: %v", captured.Context)
	}

	var p envelope.DraftedPayload
	if err := b.last(t, envelope.TopicDrafted).DecodePayload(&p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Draft.Attempt != 2 {
		t.Fatalf("attempt = %d, want 2", p.Draft.Attempt)
	}
}
