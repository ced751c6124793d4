package membus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/envelope"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/logger"
)

func testBus() *Bus {
	return New(Options{Buffer: 16, RetryFirst: time.Millisecond, RetryTries: 3})
}

func encodedEnvelope(t *testing.T, topic, contextID string, payload any) []byte {
	t.Helper()
	e, err := envelope.New(topic, contextID, payload)
	if err != nil {
		t.Fatalf("envelope.New: %v", err)
	}
	data, err := e.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestPublishSubscribe(t *testing.T) {
	b := testBus()
	defer func() { _ = b.Close() }()

	done := make(chan []byte, 1)
	cancel, err := b.Subscribe(context.Background(), envelope.TopicInbound, func(_ context.Context, _ string, data []byte) error {
		done <- data
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	data := encodedEnvelope(t, envelope.TopicInbound, "ctx-1", envelope.InboundPayload{CustomerRef: "tok", Content: "hi"})
	if err := b.Publish(context.Background(), envelope.TopicInbound, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-done:
		e, err := envelope.Decode(got)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if e.ContextID != "ctx-1" {
			t.Fatalf("context_id = %q", e.ContextID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestRedeliveryWithBackoffThenSuccess(t *testing.T) {
	b := testBus()
	defer func() { _ = b.Close() }()

	var attempts atomic.Int32
	done := make(chan struct{})
	_, err := b.Subscribe(context.Background(), envelope.TopicInbound, func(context.Context, string, []byte) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	data := encodedEnvelope(t, envelope.TopicInbound, "ctx-r", envelope.InboundPayload{Content: "x"})
	if err := b.Publish(context.Background(), envelope.TopicInbound, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never succeeded")
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestExhaustedDeliveryGoesToDLQ(t *testing.T) {
	b := testBus()
	defer func() { _ = b.Close() }()

	dlq := make(chan []byte, 1)
	if _, err := b.Subscribe(context.Background(), envelope.TopicInbound+envelope.DLQSuffix, func(_ context.Context, _ string, data []byte) error {
		dlq <- data
		return nil
	}); err != nil {
		t.Fatalf("Subscribe dlq: %v", err)
	}

	var attempts atomic.Int32
	if _, err := b.Subscribe(context.Background(), envelope.TopicInbound, func(context.Context, string, []byte) error {
		attempts.Add(1)
		return errors.New("always fails")
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	data := encodedEnvelope(t, envelope.TopicInbound, "ctx-d", envelope.InboundPayload{Content: "x"})
	if err := b.Publish(context.Background(), envelope.TopicInbound, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-dlq:
		e, err := envelope.Decode(got)
		if err != nil {
			t.Fatalf("Decode dlq message: %v", err)
		}
		if e.ContextID != "ctx-d" {
			t.Fatalf("dlq context_id = %q", e.ContextID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never reached DLQ")
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestHandlerContextCarriesConversationID(t *testing.T) {
	b := testBus()
	defer func() { _ = b.Close() }()

	var (
		mu    sync.Mutex
		ctxID string
	)
	done := make(chan struct{})
	if _, err := b.Subscribe(context.Background(), envelope.TopicInbound, func(ctx context.Context, _ string, _ []byte) error {
		mu.Lock()
		ctxID = logger.ConversationID(ctx)
		mu.Unlock()
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	data := encodedEnvelope(t, envelope.TopicInbound, "ctx-log", envelope.InboundPayload{Content: "x"})
	if err := b.Publish(context.Background(), envelope.TopicInbound, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	if ctxID != "ctx-log" {
		t.Fatalf("conversation id = %q, want ctx-log", ctxID)
	}
}

func TestInvalidPayloadDeadLettersImmediately(t *testing.T) {
	b := testBus()
	defer func() { _ = b.Close() }()

	delivered := make(chan struct{}, 1)
	if _, err := b.Subscribe(context.Background(), envelope.TopicInbound, func(context.Context, string, []byte) error {
		delivered <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	dlq := make(chan struct{}, 1)
	if _, err := b.Subscribe(context.Background(), envelope.TopicInbound+envelope.DLQSuffix, func(context.Context, string, []byte) error {
		dlq <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe dlq: %v", err)
	}

	// Valid envelope wrapper, payload violating the inbound schema.
	e, _ := envelope.New(envelope.TopicInbound, "ctx-bad", "just a string")
	data, _ := e.Encode()
	if err := b.Publish(context.Background(), envelope.TopicInbound, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-dlq:
	case <-time.After(2 * time.Second):
		t.Fatal("invalid payload never dead-lettered")
	}
	select {
	case <-delivered:
		t.Fatal("invalid payload must not reach the subscriber")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDrainProcessesPendingThenRejectsPublish(t *testing.T) {
	b := testBus()

	var handled atomic.Int32
	if _, err := b.Subscribe(context.Background(), envelope.TopicInbound, func(context.Context, string, []byte) error {
		time.Sleep(5 * time.Millisecond)
		handled.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for range 10 {
		data := encodedEnvelope(t, envelope.TopicInbound, "ctx-drain", envelope.InboundPayload{Content: "x"})
		if err := b.Publish(context.Background(), envelope.TopicInbound, data); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if err := b.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := handled.Load(); got != 10 {
		t.Fatalf("handled = %d, want 10", got)
	}
	if b.IsConnected() {
		t.Fatal("drained bus must report disconnected")
	}
	if err := b.Publish(context.Background(), envelope.TopicInbound, []byte("{}")); err == nil {
		t.Fatal("publish after drain must fail")
	}
	if _, err := b.Subscribe(context.Background(), envelope.TopicInbound, nil); err == nil {
		t.Fatal("subscribe after drain must fail")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := testBus()
	defer func() { _ = b.Close() }()

	got := make(chan struct{}, 4)
	cancel, err := b.Subscribe(context.Background(), envelope.TopicInbound, func(context.Context, string, []byte) error {
		got <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()

	data := encodedEnvelope(t, envelope.TopicInbound, "ctx-c", envelope.InboundPayload{Content: "x"})
	_ = b.Publish(context.Background(), envelope.TopicInbound, data)

	select {
	case <-got:
		t.Fatal("cancelled subscription still received a message")
	case <-time.After(50 * time.Millisecond):
	}
}
