package service

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	otelx "github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/adapter/otel"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/contextstore"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/conversation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/draft"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/envelope"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/escalation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/port/bus"
)

// disallowedPhrases are content the assistant must never send, regardless of
// what generation produced. Matching is case-insensitive substring.
var disallowedPhrases = []string{
	"legal advice",
	"we guarantee",
	"i guarantee",
	"lawsuit",
	"cannot be held liable",
}

// injectionMarkers indicate the draft echoed instruction-override text
// smuggled in through the customer message or a knowledge fragment.
var injectionMarkers = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard your instructions",
	"you are now",
	"system prompt",
}

// piiPatterns match identifiers that must never appear in a response unless
// the customer wrote them first in the current turn.
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), // email
	regexp.MustCompile(`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`),                    // phone
	regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),                             // card number
}

// ValidatorService runs the deterministic acceptance battery over every
// draft. A rejection re-enters generation with notes while the retry budget
// lasts; a rejection that regeneration cannot fix, or that exhausts the
// budget, settles the turn as rejected and hands the decision to escalation.
type ValidatorService struct {
	bus             bus.Bus
	store           *contextstore.Store
	retryBudget     int
	confidenceFloor float64
	metrics         *otelx.Metrics
	log             *slog.Logger
}

// NewValidator creates the validator. metrics may be nil.
func NewValidator(b bus.Bus, store *contextstore.Store, retryBudget int, confidenceFloor float64, metrics *otelx.Metrics, log *slog.Logger) *ValidatorService {
	return &ValidatorService{bus: b, store: store, retryBudget: retryBudget, confidenceFloor: confidenceFloor, metrics: metrics, log: log}
}

// HandleDrafted processes one msg.drafted envelope.
func (s *ValidatorService) HandleDrafted(ctx context.Context, topic string, data []byte) error {
	env, err := envelope.Decode(data)
	if err != nil {
		return err
	}
	var p envelope.DraftedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}

	verdict := s.check(p)
	if verdict.Accepted {
		return s.settle(ctx, env, p, draft.Accept())
	}

	if s.metrics != nil {
		s.metrics.DraftsRejected.Add(ctx, 1)
	}
	s.log.InfoContext(ctx, "draft rejected",
		"attempt", p.Draft.Attempt,
		"reasons", reasonStrings(verdict.Reasons),
		"severity", verdict.Severity)

	var regenerate bool
	err = s.store.With(ctx, env.ContextID, func(c *conversation.Context) error {
		c.RetryCount++
		for _, r := range verdict.Reasons {
			c.RejectionNotes = append(c.RejectionNotes, string(r))
		}

		exhausted := c.RetryCount > s.retryBudget
		regenerate = !exhausted && retriable(verdict.Reasons)

		if next, terr := c.State.Transition(draft.StateRejected); terr == nil {
			c.State = next
		}
		if regenerate {
			if next, terr := c.State.Transition(draft.StateRegenerating); terr == nil {
				c.State = next
			}
			return nil
		}

		if exhausted {
			c.AddSignal(escalation.SignalValidationExhausted)
		}
		if !retriable(verdict.Reasons) {
			c.AddSignal(escalation.SignalLowConfidence)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if regenerate {
		out, err := env.Derive(envelope.TopicAugmented, envelope.AugmentedPayload{
			Content:   p.Content,
			Dispatch:  p.Dispatch,
			Fragments: p.Fragments,
			Partial:   p.Partial,
		})
		if err != nil {
			return err
		}
		return publish(ctx, s.bus, out)
	}
	return s.settle(ctx, env, p, verdict)
}

// settle publishes the turn's final verdict on msg.validated.
func (s *ValidatorService) settle(ctx context.Context, env envelope.Envelope, p envelope.DraftedPayload, verdict draft.Verdict) error {
	out, err := env.Derive(envelope.TopicValidated, envelope.ValidatedPayload{
		Draft:    p.Draft,
		Verdict:  verdict,
		Dispatch: p.Dispatch,
	})
	if err != nil {
		return err
	}
	return publish(ctx, s.bus, out)
}

// check runs the battery in fixed order and collects every failure, so the
// rejection notes name all problems at once instead of one per attempt.
func (s *ValidatorService) check(p envelope.DraftedPayload) draft.Verdict {
	var reasons []draft.ReasonCode
	text := p.Draft.Text
	lower := strings.ToLower(text)

	for _, phrase := range disallowedPhrases {
		if strings.Contains(lower, phrase) {
			reasons = append(reasons, draft.ReasonDisallowedContent)
			break
		}
	}
	for _, marker := range injectionMarkers {
		if strings.Contains(lower, marker) {
			reasons = append(reasons, draft.ReasonPromptInjection)
			break
		}
	}
	if leaksPII(text, p.Content) {
		reasons = append(reasons, draft.ReasonPIILeak)
	}
	// A missing confidence reads as zero: unscored dispatches are low trust.
	if p.Dispatch.Confidence < s.confidenceFloor {
		reasons = append(reasons, draft.ReasonLowConfidence)
	}

	if len(reasons) == 0 {
		return draft.Accept()
	}
	return draft.Reject(reasons...)
}

// ScreenInput runs the content battery over a raw inbound message before it
// reaches generation. The PII check is skipped: customers may write their own
// identifiers. A rejection means the message must not be drafted against.
func ScreenInput(content string) draft.Verdict {
	var reasons []draft.ReasonCode
	lower := strings.ToLower(content)

	for _, phrase := range disallowedPhrases {
		if strings.Contains(lower, phrase) {
			reasons = append(reasons, draft.ReasonDisallowedContent)
			break
		}
	}
	for _, marker := range injectionMarkers {
		if strings.Contains(lower, marker) {
			reasons = append(reasons, draft.ReasonPromptInjection)
			break
		}
	}

	if len(reasons) == 0 {
		return draft.Accept()
	}
	return draft.Reject(reasons...)
}

// leaksPII reports whether the draft exposes an identifier the customer did
// not write in the current turn. Echoing the customer's own data back is
// allowed; introducing new identifiers is not.
func leaksPII(draftText, customerText string) bool {
	for _, re := range piiPatterns {
		for _, m := range re.FindAllString(draftText, -1) {
			if !strings.Contains(customerText, m) {
				return true
			}
		}
	}
	return false
}

// retriable reports whether regeneration could produce an acceptable draft.
// Content problems can be drafted around; a dispatch confidence below the
// floor cannot change between attempts.
func retriable(reasons []draft.ReasonCode) bool {
	for _, r := range reasons {
		if r == draft.ReasonLowConfidence {
			return false
		}
	}
	return true
}

func reasonStrings(reasons []draft.ReasonCode) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}
