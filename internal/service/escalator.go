package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/otel"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/contextstore"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/conversation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/draft"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/envelope"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/escalation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/bus"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/ticket"
)

// EscalatorService settles every turn. It reduces the conversation's
// accumulated signals into a deterministic decision: deliver the accepted
// draft on msg.outbound, or hand the conversation to a human queue on
// msg.handoff. Ticket filing is best effort; the handoff itself never blocks
// on the ticketing collaborator.
type EscalatorService struct {
	bus         bus.Bus
	store       *contextstore.Store
	tickets     ticket.Filer
	callTimeout time.Duration
	metrics     *otelx.Metrics
	log         *slog.Logger
}

// NewEscalator creates the escalator. metrics may be nil.
func NewEscalator(b bus.Bus, store *contextstore.Store, tickets ticket.Filer, callTimeout time.Duration, metrics *otelx.Metrics, log *slog.Logger) *EscalatorService {
	return &EscalatorService{bus: b, store: store, tickets: tickets, callTimeout: callTimeout, metrics: metrics, log: log}
}

// HandleValidated processes one msg.validated envelope.
func (s *EscalatorService) HandleValidated(ctx context.Context, topic string, data []byte) error {
	env, err := envelope.Decode(data)
	if err != nil {
		return err
	}
	var p envelope.ValidatedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}

	var (
		customerRef string
		decision    escalation.Decision
		turnStart   time.Time
		degraded    bool
	)
	err = s.store.With(ctx, env.ContextID, func(c *conversation.Context) error {
		customerRef = c.CustomerRef
		decision = escalation.Reduce(c.Signals)
		turnStart = c.TurnStartedAt()
		degraded = p.Draft.Degraded

		if p.Verdict.Accepted && !decision.ShouldEscalate {
			if next, terr := c.State.Transition(draft.StateAccepted); terr == nil {
				c.State = next
			}
			c.AppendAssistant(p.Draft.Text)
			return nil
		}
		if next, terr := c.State.Transition(draft.StateEscalated); terr == nil {
			c.State = next
		}
		return nil
	})
	if err != nil {
		return err
	}

	if p.Verdict.Accepted && !decision.ShouldEscalate {
		s.observeSettled(ctx, turnStart, degraded, false)
		out, err := env.Derive(envelope.TopicOutbound, envelope.OutboundPayload{
			CustomerRef: customerRef,
			Text:        p.Draft.Text,
			Intent:      string(p.Dispatch.Intent),
		})
		if err != nil {
			return err
		}
		s.log.InfoContext(ctx, "turn accepted", "intent", p.Dispatch.Intent, "attempt", p.Draft.Attempt)
		return publish(ctx, s.bus, out)
	}

	// A settled rejection with no recorded signal should be impossible, but a
	// turn must never fall through without a decision.
	if !decision.ShouldEscalate {
		decision = escalation.Decision{
			ShouldEscalate: true,
			TriggerReason:  string(escalation.SignalSystemError),
			Priority:       escalation.SignalSystemError.Tier(),
			TargetQueue:    "urgent",
		}
	}

	s.observeSettled(ctx, turnStart, degraded, true)
	return s.handoff(ctx, env, customerRef, decision, summaryFor(p))
}

// ForceEscalate settles a turn from outside the normal pipeline flow, used
// when the turn deadline fires or a handler panics. The given signal is
// recorded before the reduction runs. Begin rather than With: an inbound hop
// can panic before the turn was opened, and the customer still gets a
// handoff.
func (s *EscalatorService) ForceEscalate(ctx context.Context, env envelope.Envelope, sig escalation.Signal) error {
	var (
		customerRef string
		decision    escalation.Decision
		summary     string
		turnStart   time.Time
	)
	err := s.store.Begin(ctx, env.ContextID, func(c *conversation.Context) error {
		c.AddSignal(sig)
		customerRef = c.CustomerRef
		decision = escalation.Reduce(c.Signals)
		turnStart = c.TurnStartedAt()
		summary = fmt.Sprintf("turn aborted (%s); customer said: %q", sig, c.CurrentCustomerTurn())
		if next, terr := c.State.Transition(draft.StateEscalated); terr == nil {
			c.State = next
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.observeSettled(ctx, turnStart, false, true)
	return s.handoff(ctx, env, customerRef, decision, summary)
}

// handoff files a ticket and publishes the msg.handoff envelope. A ticketing
// failure downgrades to a handoff without a ticket id.
func (s *EscalatorService) handoff(ctx context.Context, env envelope.Envelope, customerRef string, decision escalation.Decision, summary string) error {
	var ticketID string
	tctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	id, err := s.tickets.File(tctx, ticket.Request{
		ConversationSummary: summary,
		Priority:            decision.Priority,
		Queue:               decision.TargetQueue,
	})
	cancel()
	if err != nil {
		s.log.WarnContext(ctx, "ticket filing failed, handing off without ticket", "error", err)
	} else {
		ticketID = id
	}

	out, err := env.Derive(envelope.TopicHandoff, envelope.HandoffPayload{
		CustomerRef: customerRef,
		Summary:     summary,
		Decision:    decision,
		TicketID:    ticketID,
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "turn escalated",
		"trigger", decision.TriggerReason,
		"queue", decision.TargetQueue,
		"priority", decision.Priority,
		"ticket_id", ticketID)
	return publish(ctx, s.bus, out)
}

func (s *EscalatorService) observeSettled(ctx context.Context, turnStart time.Time, degraded, escalated bool) {
	if s.metrics == nil {
		return
	}
	if escalated {
		s.metrics.TurnsEscalated.Add(ctx, 1)
	} else {
		s.metrics.TurnsCompleted.Add(ctx, 1)
	}
	if degraded {
		s.metrics.TurnsDegraded.Add(ctx, 1)
	}
	if !turnStart.IsZero() {
		s.metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())
	}
}

func summaryFor(p envelope.ValidatedPayload) string {
	if p.Verdict.Accepted {
		return fmt.Sprintf("accepted draft withheld for review (intent %s)", p.Dispatch.Intent)
	}
	if p.Draft.Attempt == 0 {
		return fmt.Sprintf("inbound message rejected before generation (intent %s): %v",
			p.Dispatch.Intent, reasonStrings(p.Verdict.Reasons))
	}
	return fmt.Sprintf("draft rejected after %d attempt(s) (intent %s): %v",
		p.Draft.Attempt, p.Dispatch.Intent, reasonStrings(p.Verdict.Reasons))
}
