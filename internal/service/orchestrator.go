package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	otelx "github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/otel"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/contextstore"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/conversation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/envelope"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/escalation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/bus"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/cache"
)

// markTTL bounds how long processed-message marks live. It only needs to
// outlast the bus's redelivery window.
const markTTL = 10 * time.Minute

// Orchestrator subscribes the pipeline services to their topics and wraps
// every hop with the cross-cutting turn guarantees: a concurrency cap, a
// whole-turn deadline, exactly-once effects over at-least-once delivery, and
// panic containment. A hop that cannot run safely is short-circuited into a
// forced escalation so the customer is never left without an outcome.
type Orchestrator struct {
	bus       bus.Bus
	store     *contextstore.Store
	escalator *EscalatorService
	marks     cache.Cache
	sem       *semaphore.Weighted
	deadline  time.Duration
	metrics   *otelx.Metrics
	log       *slog.Logger

	cancels []func()
}

// NewOrchestrator creates the orchestrator. workers caps concurrent hop
// executions across all topics; deadline bounds a turn end to end.
func NewOrchestrator(b bus.Bus, store *contextstore.Store, escalator *EscalatorService, marks cache.Cache, workers int, deadline time.Duration, metrics *otelx.Metrics, log *slog.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		bus:       b,
		store:     store,
		escalator: escalator,
		marks:     marks,
		sem:       semaphore.NewWeighted(int64(workers)),
		deadline:  deadline,
		metrics:   metrics,
		log:       log,
	}
}

// Start subscribes all pipeline hops. Handlers run until Stop or bus drain.
func (o *Orchestrator) Start(ctx context.Context, dispatcher *DispatcherService, augmenter *AugmenterService, generator *GeneratorService, validator *ValidatorService) error {
	hops := []struct {
		topic   string
		name    string
		handler bus.Handler
	}{
		{envelope.TopicInbound, "dispatch", dispatcher.HandleInbound},
		{envelope.TopicDispatched, "augment", augmenter.HandleDispatched},
		{envelope.TopicAugmented, "generate", generator.HandleAugmented},
		{envelope.TopicDrafted, "validate", validator.HandleDrafted},
		{envelope.TopicValidated, "escalate", o.escalator.HandleValidated},
	}

	for _, hop := range hops {
		cancel, err := o.bus.Subscribe(ctx, hop.topic, o.wrap(hop.name, hop.topic, hop.handler))
		if err != nil {
			o.Stop()
			return fmt.Errorf("subscribe %s: %w", hop.topic, err)
		}
		o.cancels = append(o.cancels, cancel)
	}
	o.log.Info("pipeline subscribed", "hops", len(hops))
	return nil
}

// Stop cancels all subscriptions.
func (o *Orchestrator) Stop() {
	for _, cancel := range o.cancels {
		cancel()
	}
	o.cancels = nil
}

// wrap applies the per-hop guards around a handler.
func (o *Orchestrator) wrap(name, topic string, h bus.Handler) bus.Handler {
	return func(ctx context.Context, t string, data []byte) (err error) {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer o.sem.Release(1)

		env, err := envelope.Decode(data)
		if err != nil {
			return err
		}

		markKey := "done:" + env.MessageID
		if _, seen, _ := o.marks.Get(ctx, markKey); seen {
			o.log.DebugContext(ctx, "duplicate delivery skipped", "hop", name, "message_id", env.MessageID)
			return nil
		}

		skip, expired, err := o.turnStatus(ctx, env, topic)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
		if expired {
			o.log.WarnContext(ctx, "turn deadline exceeded", "hop", name)
			return o.escalator.ForceEscalate(ctx, env, escalation.SignalTimeout)
		}

		ctx, span := otelx.StartHopSpan(ctx, name, env.TaskID)
		defer span.End()

		if o.metrics != nil && topic == envelope.TopicInbound {
			o.metrics.TurnsStarted.Add(ctx, 1)
		}

		defer func() {
			if r := recover(); r != nil {
				o.log.ErrorContext(ctx, "hop panicked", "hop", name, "panic", r)
				err = o.escalator.ForceEscalate(ctx, env, escalation.SignalSystemError)
			}
		}()

		if err := h(ctx, t, data); err != nil {
			return err
		}
		return o.marks.Set(ctx, markKey, []byte{1}, markTTL)
	}
}

// turnStatus inspects the conversation before a hop runs. A hop for a turn
// that already reached a terminal state is skipped (late delivery after a
// forced escalation); a hop arriving after the turn deadline triggers the
// timeout short-circuit. The inbound hop always runs: it is what opens the
// turn.
func (o *Orchestrator) turnStatus(ctx context.Context, env envelope.Envelope, topic string) (skip, expired bool, err error) {
	if topic == envelope.TopicInbound {
		return false, false, nil
	}
	err = o.store.With(ctx, env.ContextID, func(c *conversation.Context) error {
		if c.State.Terminal() {
			skip = true
			return nil
		}
		if start := c.TurnStartedAt(); !start.IsZero() && time.Since(start) > o.deadline {
			expired = true
		}
		return nil
	})
	return skip, expired, err
}
