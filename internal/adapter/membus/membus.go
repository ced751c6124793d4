// Package membus implements the message bus port in-process. It preserves
// the delivery semantics of the JetStream adapter (at-least-once delivery,
// bounded backoff redelivery, dead-letter topics) so the pipeline behaves
// identically under either bus.
package membus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/envelope"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/logger"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/bus"
)

// Options tunes delivery behavior.
type Options struct {
	Buffer     int           // per-subscriber queue depth
	RetryFirst time.Duration // first redelivery backoff interval
	RetryTries int           // delivery attempts before dead-lettering
}

// Bus is an in-process implementation of the bus port.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	opts   Options
	closed bool
	wg     sync.WaitGroup
}

type subscription struct {
	topic   string
	handler bus.Handler
	ch      chan []byte
	done    chan struct{}
	once    sync.Once
}

// New creates an in-process bus.
func New(opts Options) *Bus {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.RetryFirst <= 0 {
		opts.RetryFirst = time.Second
	}
	if opts.RetryTries <= 0 {
		opts.RetryTries = 5
	}
	return &Bus{
		subs: make(map[string][]*subscription),
		opts: opts,
	}
}

// Publish enqueues data for every subscriber of topic. Payloads are
// schema-checked before delivery; structurally invalid messages go straight
// to the topic's dead-letter queue.
func (b *Bus) Publish(ctx context.Context, topic string, data []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("publish %s: bus closed", topic)
	}
	targets := make([]*subscription, len(b.subs[topic]))
	copy(targets, b.subs[topic])
	b.mu.RUnlock()

	if !strings.HasSuffix(topic, envelope.DLQSuffix) {
		if err := envelope.ValidatePayload(topic, extractPayload(data)); err != nil {
			slog.Warn("message failed validation, dead-lettering", "topic", topic, "error", err)
			return b.Publish(ctx, topic+envelope.DLQSuffix, data)
		}
	}

	if len(targets) == 0 {
		slog.Debug("publish with no subscribers", "topic", topic)
		return nil
	}

	for _, sub := range targets {
		select {
		case sub.ch <- data:
		case <-sub.done:
			// Subscription cancelled mid-publish; drop for this subscriber.
		case <-ctx.Done():
			return fmt.Errorf("publish %s: %w", topic, ctx.Err())
		}
	}
	return nil
}

// Subscribe registers a handler for messages on the given topic and starts a
// delivery worker for it. The returned function cancels the subscription and
// waits for in-flight deliveries to finish.
func (b *Bus) Subscribe(_ context.Context, topic string, handler bus.Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe %s: bus closed", topic)
	}

	sub := &subscription{
		topic:   topic,
		handler: handler,
		ch:      make(chan []byte, b.opts.Buffer),
		done:    make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], sub)

	b.wg.Add(1)
	go b.run(sub)

	cancel := func() {
		sub.once.Do(func() { close(sub.done) })
		b.mu.Lock()
		list := b.subs[topic]
		for i, s := range list {
			if s == sub {
				b.subs[topic] = append(list[:i], list[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
	}
	return cancel, nil
}

// run is the delivery worker for one subscription.
func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case data := <-sub.ch:
			b.deliver(sub, data)
		case <-sub.done:
			// Drain what was already enqueued, then stop.
			for {
				select {
				case data := <-sub.ch:
					b.deliver(sub, data)
				default:
					return
				}
			}
		}
	}
}

// deliver invokes the handler with bounded exponential backoff. Exhausted
// messages are routed to the topic's dead-letter queue.
func (b *Bus) deliver(sub *subscription, data []byte) {
	ctx := handlerContext(data)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = b.opts.RetryFirst
	expo.RandomizationFactor = 0
	expo.Multiplier = 2

	operation := func() (struct{}, error) {
		return struct{}{}, sub.handler(ctx, sub.topic, data)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(b.opts.RetryTries)),
	)
	if err == nil {
		return
	}

	slog.Error("delivery exhausted", "topic", sub.topic, "error", err,
		"conversation_id", logger.ConversationID(ctx))

	if strings.HasSuffix(sub.topic, envelope.DLQSuffix) {
		// Never dead-letter a dead letter.
		return
	}
	if pubErr := b.Publish(context.Background(), sub.topic+envelope.DLQSuffix, data); pubErr != nil {
		slog.Error("dead-letter publish failed", "topic", sub.topic, "error", pubErr)
	}
}

// Drain stops accepting publishes and waits for all enqueued messages to be
// processed.
func (b *Bus) Drain() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*subscription
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() { close(sub.done) })
	}
	b.wg.Wait()
	return nil
}

// Close shuts the bus down. In-process, close and drain coincide: enqueued
// messages are short and processing them is cheaper than racing the workers.
func (b *Bus) Close() error {
	return b.Drain()
}

// IsConnected reports whether the bus accepts traffic.
func (b *Bus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// handlerContext builds the delivery context, carrying the conversation and
// task ids when the message is a well-formed envelope.
func handlerContext(data []byte) context.Context {
	ctx := context.Background()
	var ids struct {
		ContextID string `json:"context_id"`
		TaskID    string `json:"task_id"`
	}
	if err := json.Unmarshal(data, &ids); err == nil {
		if ids.ContextID != "" {
			ctx = logger.WithConversationID(ctx, ids.ContextID)
		}
		if ids.TaskID != "" {
			ctx = logger.WithTaskID(ctx, ids.TaskID)
		}
	}
	return ctx
}

// extractPayload pulls the payload object out of an encoded envelope so it
// can be schema-checked. Non-envelope messages validate as-is.
func extractPayload(data []byte) []byte {
	var e struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &e); err == nil && len(e.Payload) > 0 {
		return e.Payload
	}
	return data
}
