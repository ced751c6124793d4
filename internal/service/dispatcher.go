// Package service implements the conversation pipeline: intent dispatch,
// context augmentation, draft generation, validation, and escalation, wired
// together over the message bus by the orchestrator.
package service

import (
	"context"
	"log/slog"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/contextstore"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/conversation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/envelope"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/escalation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/intent"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/bus"
)

// DispatcherService classifies inbound customer messages against the
// prioritized rule table and routes them to an augmentation target. It never
// fails a turn: unclassifiable input degrades to the catch-all intent.
type DispatcherService struct {
	bus   bus.Bus
	store *contextstore.Store
	rules []intent.Rule
	log   *slog.Logger
}

// NewDispatcher creates the dispatcher with the default rule table.
func NewDispatcher(b bus.Bus, store *contextstore.Store, log *slog.Logger) *DispatcherService {
	return &DispatcherService{bus: b, store: store, rules: intent.DefaultRules(), log: log}
}

// HandleInbound processes one msg.inbound envelope: it opens the turn in the
// conversation store, screens the raw message with the content battery,
// classifies it, records escalation evidence the raw text carries, and
// publishes msg.dispatched. A message the screen rejects never reaches
// generation: the turn settles straight through msg.validated.
func (s *DispatcherService) HandleInbound(ctx context.Context, topic string, data []byte) error {
	env, err := envelope.Decode(data)
	if err != nil {
		return err
	}
	var p envelope.InboundPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}

	result := intent.Classify(p.Content, s.rules)
	screen := ScreenInput(p.Content)

	err = s.store.Begin(ctx, env.ContextID, func(c *conversation.Context) error {
		if c.CustomerRef == "" {
			c.CustomerRef = p.CustomerRef
		}
		c.BeginTurn(p.Content)
		if !screen.Accepted {
			// Hostile or disallowed input is untrusted input: the turn goes
			// to a human with the screen's reasons in the verdict.
			c.AddSignal(escalation.SignalLowConfidence)
			return nil
		}
		if intent.NegativeSentiment(p.Content) {
			c.AddSignal(escalation.SignalNegativeSentiment)
		}
		if result.Intent == intent.IntentBulkOrder {
			c.AddSignal(escalation.SignalBusinessType)
		}
		if result.Confidence < intent.MinConfidence {
			c.AddSignal(escalation.SignalLowConfidence)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !screen.Accepted {
		s.log.WarnContext(ctx, "inbound message rejected",
			"reasons", reasonStrings(screen.Reasons),
			"severity", screen.Severity)
		out, err := env.Derive(envelope.TopicValidated, envelope.ValidatedPayload{
			Verdict:  screen,
			Dispatch: result,
		})
		if err != nil {
			return err
		}
		return publish(ctx, s.bus, out)
	}

	s.log.InfoContext(ctx, "dispatched",
		"intent", result.Intent,
		"confidence", result.Confidence,
		"target", result.RoutingTarget)

	out, err := env.Derive(envelope.TopicDispatched, envelope.DispatchedPayload{
		Content:  p.Content,
		Dispatch: result,
	})
	if err != nil {
		return err
	}
	return publish(ctx, s.bus, out)
}

// publish encodes and sends an envelope on its own topic.
func publish(ctx context.Context, b bus.Bus, env envelope.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return b.Publish(ctx, env.Topic, data)
}
