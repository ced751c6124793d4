package envelope

import (
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/draft"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/escalation"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/intent"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/knowledge"
)

// InboundPayload is the schema for msg.inbound messages.
type InboundPayload struct {
	CustomerRef string `json:"customer_ref"` // tokenized, never raw PII
	Content     string `json:"content"`
}

// DispatchedPayload is the schema for msg.dispatched messages.
type DispatchedPayload struct {
	Content  string                `json:"content"`
	Dispatch intent.DispatchResult `json:"dispatch"`
}

// AugmentedPayload is the schema for msg.augmented messages.
type AugmentedPayload struct {
	Content   string                `json:"content"`
	Dispatch  intent.DispatchResult `json:"dispatch"`
	Fragments []knowledge.Fragment  `json:"fragments"`
	Partial   knowledge.Partial     `json:"partial"`
}

// DraftedPayload is the schema for msg.drafted messages. It carries the
// augmentation fragments forward so a rejection can re-enter generation
// without repeating collaborator calls.
type DraftedPayload struct {
	Draft     draft.Draft           `json:"draft"`
	Dispatch  intent.DispatchResult `json:"dispatch"`
	Content   string                `json:"content"`
	Fragments []knowledge.Fragment  `json:"fragments,omitempty"`
	Partial   knowledge.Partial     `json:"partial"`
}

// ValidatedPayload is the schema for msg.validated messages. It is published
// only when the turn is settled: an accepted draft, or a rejection that will
// not be retried.
type ValidatedPayload struct {
	Draft    draft.Draft           `json:"draft"`
	Verdict  draft.Verdict         `json:"verdict"`
	Dispatch intent.DispatchResult `json:"dispatch"`
}

// OutboundPayload is the schema for msg.outbound messages, the final
// customer-facing response.
type OutboundPayload struct {
	CustomerRef string `json:"customer_ref"`
	Text        string `json:"text"`
	Intent      string `json:"intent"`
}

// HandoffPayload is the schema for msg.handoff messages sent to the external
// escalation collaborator.
type HandoffPayload struct {
	CustomerRef string              `json:"customer_ref"`
	Summary     string              `json:"summary"`
	Decision    escalation.Decision `json:"decision"`
	TicketID    string              `json:"ticket_id,omitempty"`
}
