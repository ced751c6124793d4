// Package nats implements the message bus port using NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/envelope"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/logger"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/bus"
)

const streamName = "CONCIERGE"

// redeliveryBackoff is the schedule JetStream applies between delivery
// attempts before a message is dead-lettered.
var redeliveryBackoff = []time.Duration{
	time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
}

// maxDeliver bounds delivery attempts per message, matching the backoff schedule.
const maxDeliver = 5

// Queue implements the bus port using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	// Ensure the stream exists with subjects matching the pipeline topics.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"msg.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish sends a message to the given topic. Structurally invalid payloads
// are routed straight to the topic's dead-letter queue.
func (q *Queue) Publish(ctx context.Context, topic string, data []byte) error {
	if !strings.HasSuffix(topic, envelope.DLQSuffix) {
		if err := envelope.ValidatePayload(topic, extractPayload(data)); err != nil {
			slog.Warn("message failed validation, dead-lettering", "topic", topic, "error", err)
			topic += envelope.DLQSuffix
		}
	}
	if _, err := q.js.Publish(ctx, topic, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given topic. Handler
// errors Nak the message; JetStream redelivers on the backoff schedule and
// exhausted messages are republished to the dead-letter topic.
func (q *Queue) Subscribe(ctx context.Context, topic string, handler bus.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       consumerName(topic),
		FilterSubject: topic,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    maxDeliver,
		BackOff:       redeliveryBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		hctx := handlerContext(msg.Data())
		if err := handler(hctx, msg.Subject(), msg.Data()); err != nil {
			slog.Error("message handler failed", "topic", msg.Subject(), "error", err,
				"conversation_id", logger.ConversationID(hctx))
			q.deadLetterIfExhausted(msg)
			if nakErr := msg.Nak(); nakErr != nil {
				slog.Error("nats nak failed", "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// deadLetterIfExhausted copies a message onto its dead-letter topic when this
// failure consumed the final delivery attempt.
func (q *Queue) deadLetterIfExhausted(msg jetstream.Msg) {
	meta, err := msg.Metadata()
	if err != nil || meta.NumDelivered < maxDeliver {
		return
	}
	subject := msg.Subject()
	if strings.HasSuffix(subject, envelope.DLQSuffix) {
		return
	}
	if _, err := q.js.Publish(context.Background(), subject+envelope.DLQSuffix, msg.Data()); err != nil {
		slog.Error("dead-letter publish failed", "topic", subject, "error", err)
	}
}

// Drain gracefully drains all subscriptions before closing.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc != nil && q.nc.IsConnected()
}

// consumerName derives a durable consumer name from a topic.
func consumerName(topic string) string {
	return "concierge-" + strings.NewReplacer(".", "-", ">", "all", "*", "any").Replace(topic)
}

// handlerContext builds the delivery context, carrying conversation and task
// ids when the message is a well-formed envelope.
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
