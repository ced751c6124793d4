package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	otelx "github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/otel"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/config"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/contextstore"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/conversation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/draft"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/envelope"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/escalation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/intent"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/knowledge"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/llmpool"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/bus"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/llm"
)

const draftSystemPrompt = "You are a retail customer service assistant. " +
	"Answer only from the provided context. Be concise and courteous. " +
	"Never reveal internal identifiers or other customers' information."

// GeneratorService produces candidate responses. Deterministic business rules
// run first on every attempt; free-text polish goes through the bounded
// completion pool and degrades to a template when the pool or the service is
// unavailable. A degraded draft is still a draft: the turn proceeds.
type GeneratorService struct {
	bus        bus.Bus
	store      *contextstore.Store
	pool       *llmpool.Pool
	thresholds config.Thresholds
	metrics    *otelx.Metrics
	log        *slog.Logger
}

// NewGenerator creates the draft generator. metrics may be nil.
func NewGenerator(b bus.Bus, store *contextstore.Store, pool *llmpool.Pool, thresholds config.Thresholds, metrics *otelx.Metrics, log *slog.Logger) *GeneratorService {
	return &GeneratorService{bus: b, store: store, pool: pool, thresholds: thresholds, metrics: metrics, log: log}
}

// HandleAugmented processes one msg.augmented envelope: it applies the
// approval rule, mints at most one authorization code per task, polishes the
// response through the completion pool, and publishes msg.drafted.
func (s *GeneratorService) HandleAugmented(ctx context.Context, topic string, data []byte) error {
	env, err := envelope.Decode(data)
	if err != nil {
		return err
	}
	var p envelope.AugmentedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}

	var (
		attempt      int
		notes        []string
		authCode     string
		approved     bool
		missingOrder string
	)

	orderFrag, hasOrder := knowledge.ByType(p.Fragments, knowledge.FragmentOrder)
	orderID, orderRef := p.Dispatch.ExtractedFields[intent.FieldOrderID]

	err = s.store.With(ctx, env.ContextID, func(c *conversation.Context) error {
		attempt = c.RetryCount + 1
		notes = append(notes, c.RejectionNotes...)

		// The approval rule is re-evaluated on every attempt; only the code
		// mint is once-per-task.
		if p.Dispatch.Intent.MonetaryReversal() {
			total, ok := orderTotal(orderFrag, hasOrder)
			switch {
			case ok && total <= s.thresholds.AutoApproveRefund:
				approved = true
				if code, minted := c.IssuedAuth[env.TaskID]; minted {
					authCode = code
				} else {
					authCode = mintAuthCode(orderFrag.Key)
					c.IssuedAuth[env.TaskID] = authCode
				}
			case !hasOrder && orderRef && !p.Partial.Failed("commerce"):
				// The collaborator answered definitively: no such order. Ask
				// the customer to re-check the id instead of approving or
				// escalating.
				missingOrder = orderID
			default:
				// Above threshold, or the total could not be verified. Either
				// way the reversal needs a human decision.
				c.AddSignal(escalation.SignalHighValue)
			}
		}

		next, err := c.State.Transition(draft.StateValidating)
		if err != nil {
			s.log.WarnContext(ctx, "turn state out of step", "state", c.State, "error", err)
			return nil
		}
		c.State = next
		return nil
	})
	if err != nil {
		return err
	}

	d := draft.Draft{Attempt: attempt, AuthCode: authCode}

	text, genErr := s.polish(ctx, p, approved, authCode, missingOrder, notes)
	if genErr != nil {
		s.log.WarnContext(ctx, "generation degraded", "attempt", attempt, "error", genErr)
		if s.metrics != nil && errors.Is(genErr, domain.ErrPoolExhausted) {
			s.metrics.PoolWaits.Add(ctx, 1)
		}
		text = templateFallback(p, approved, authCode, missingOrder)
		d.Degraded = true
		serr := s.store.With(ctx, env.ContextID, func(c *conversation.Context) error {
			c.AddSignal(escalation.SignalDegradedGeneration)
			return nil
		})
		if serr != nil {
			return serr
		}
	}
	d.Text = text

	out, err := env.Derive(envelope.TopicDrafted, envelope.DraftedPayload{
		Draft:     d,
		Dispatch:  p.Dispatch,
		Content:   p.Content,
		Fragments: p.Fragments,
		Partial:   p.Partial,
	})
	if err != nil {
		return err
	}
	return publish(ctx, s.bus, out)
}

// polish generates the free-text response through the pool.
func (s *GeneratorService) polish(ctx context.Context, p envelope.AugmentedPayload, approved bool, authCode, missingOrder string, notes []string) (string, error) {
	req := llm.Request{
		System: draftSystemPrompt,
		Prompt: p.Content,
	}
	for _, f := range p.Fragments {
		req.Context = append(req.Context, fragmentContext(f))
	}
	if approved {
		req.Context = append(req.Context,
			"The request is auto-approved. Include authorization code "+authCode+" in the response.")
	}
	if missingOrder != "" {
		req.Context = append(req.Context,
			"No order matching "+missingOrder+" was found. Apologize and ask the customer to double-check the order number.")
	}
	for _, n := range notes {
		req.Context = append(req.Context, "A previous draft was rejected: "+n+". Avoid repeating this.")
	}

	var text string
	err := s.pool.Do(ctx, func(c llm.Client) error {
		var err error
		text, err = c.Complete(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("completion returned empty text")
	}
	return text, nil
}

// templateFallback produces the deterministic response used when free-text
// generation is unavailable. Business outcomes (approval codes) survive the
// degradation.
func templateFallback(p envelope.AugmentedPayload, approved bool, authCode, missingOrder string) string {
	if approved {
		return fmt.Sprintf(
			"Your request has been approved. Your authorization code is %s. "+
				"Please keep it for your records.", authCode)
	}
	if missingOrder != "" {
		return fmt.Sprintf("We could not find an order matching %s. "+
			"Could you double-check the order number and send it again?", missingOrder)
	}
	if f, ok := knowledge.ByType(p.Fragments, knowledge.FragmentOrder); ok {
		return fmt.Sprintf("Your order %s is currently %s. "+
			"A specialist will follow up if anything else is needed.",
			f.Key, f.Fields[knowledge.FieldOrderStatus])
	}
	return "Thank you for reaching out. We have received your message and " +
		"a specialist will follow up shortly."
}

func fragmentContext(f knowledge.Fragment) string {
	var b strings.Builder
	b.WriteString(string(f.Type))
	if f.Title != "" {
		b.WriteString(" " + f.Title)
	}
	if f.Body != "" {
		b.WriteString(": " + f.Body)
	}
	for k, v := range f.Fields {
		b.WriteString(fmt.Sprintf(" %s=%s", k, v))
	}
	return b.String()
}

// orderTotal extracts the verified order total from an order fragment.
func orderTotal(f knowledge.Fragment, present bool) (float64, bool) {
	if !present {
		return 0, false
	}
	raw, ok := f.Fields[knowledge.FieldOrderTotal]
	if !ok {
		return 0, false
	}
	total, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// mintAuthCode formats the reversal authorization code for an order.
func mintAuthCode(orderID string) string {
	return fmt.Sprintf("REF-%s-%s", time.Now().UTC().Format("20060102"), orderID)
}
