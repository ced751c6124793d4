package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/config"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/contextstore"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/draft"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/envelope"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/knowledge"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/llmpool"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/bus"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/commerce"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/llm"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/ticket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *contextstore.Store {
	t.Helper()
	s := contextstore.New(contextstore.Options{}, discardLogger())
	t.Cleanup(s.Close)
	return s
}

// captureBus records published envelopes without delivering them.
type captureBus struct {
	mu        sync.Mutex
	published []envelope.Envelope
}

func (b *captureBus) Publish(ctx context.Context, topic string, data []byte) error {
	env, err := envelope.Decode(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.published = append(b.published, env)
	b.mu.Unlock()
	return nil
}

func (b *captureBus) Subscribe(ctx context.Context, topic string, h bus.Handler) (func(), error) {
	return func() {}, nil
}

func (b *captureBus) Drain() error      { return nil }
func (b *captureBus) Close() error      { return nil }
func (b *captureBus) IsConnected() bool { return true }

// last returns the most recently published envelope on topic, failing the
// test when none exists.
func (b *captureBus) last(t *testing.T, topic string) envelope.Envelope {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.published) - 1; i >= 0; i-- {
		if b.published[i].Topic == topic {
			return b.published[i]
		}
	}
	t.Fatalf("no envelope published on %s (have %d envelopes)", topic, len(b.published))
	return envelope.Envelope{}
}

func (b *captureBus) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.published {
		if e.Topic == topic {
			n++
		}
	}
	return n
}

func hasReason(reasons []draft.ReasonCode, want draft.ReasonCode) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}

// memCache is a minimal in-process cache for tests.
type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{m: make(map[string][]byte)}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

// fakeLookup serves a fixed order table.
type fakeLookup struct {
	mu     sync.Mutex
	orders map[string]commerce.Order
	err    error
	calls  int
}

func (f *fakeLookup) GetOrder(ctx context.Context, orderID string) (commerce.Order, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return commerce.Order{}, f.err
	}
	o, ok := f.orders[orderID]
	if !ok {
		return commerce.Order{}, &domain.NotFoundError{Entity: "order", Key: orderID}
	}
	return o, nil
}

// fakeSearcher returns fixed fragments and counts calls.
type fakeSearcher struct {
	mu    sync.Mutex
	frags []knowledge.Fragment
	err   error
	calls int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]knowledge.Fragment, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.frags, nil
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeFiler records ticket requests.
type fakeFiler struct {
	mu     sync.Mutex
	reqs   []ticket.Request
	err    error
	nextID string
}

func (f *fakeFiler) File(ctx context.Context, req ticket.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.reqs = append(f.reqs, req)
	if f.nextID == "" {
		return "TCK-1", nil
	}
	return f.nextID, nil
}

// fakeLLM is one scripted completion handle.
type fakeLLM struct {
	complete func(ctx context.Context, req llm.Request) (string, error)
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	if f.complete == nil {
		return "Here is the information you asked for.", nil
	}
	return f.complete(ctx, req)
}

func (f *fakeLLM) Embed(ctx context.Context, text string) ([]float64, error) { return nil, nil }

func (f *fakeLLM) Close() error { return nil }

func newTestPool(t *testing.T, complete func(ctx context.Context, req llm.Request) (string, error)) *llmpool.Pool {
	t.Helper()
	p, err := llmpool.New(context.Background(), func(ctx context.Context) (llm.Client, error) {
		return &fakeLLM{complete: complete}, nil
	}, llmpool.Config{Max: 2, AcquireTimeout: time.Second})
	if err != nil {
		t.Fatalf("llmpool.New: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func defaultThresholds() config.Thresholds {
	return config.Thresholds{AutoApproveRefund: 50.00, ConfidenceFloor: 0.3}
}

// inboundEnvelope builds a msg.inbound envelope for tests.
func inboundEnvelope(t *testing.T, contextID, customerRef, content string) ([]byte, envelope.Envelope) {
	t.Helper()
	env, err := envelope.New(envelope.TopicInbound, contextID, envelope.InboundPayload{
		CustomerRef: customerRef,
		Content:     content,
	})
	if err != nil {
		t.Fatalf("envelope.New: %v", err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data, env
}

// encodeEnv marshals an envelope, failing the test on error.
func encodeEnv(t *testing.T, env envelope.Envelope) []byte {
	t.Helper()
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}
