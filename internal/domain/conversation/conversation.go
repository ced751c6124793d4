// Package conversation defines the mutable per-conversation state shared by
// all pipeline handlers. Instances are only ever mutated inside the context
// store's per-context serialization boundary.
package conversation

import (
	"time"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/draft"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/escalation"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in the conversation history.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Context is the conversation's mutable state. CustomerRef is an opaque
// token, never raw PII. RetryCount and State are turn-scoped and reset by
// BeginTurn; Signals and IssuedAuth span the conversation's lifetime.
type Context struct {
	ContextID   string                `json:"context_id"`
	CustomerRef string                `json:"customer_ref"`
	Turns       []Turn                `json:"turns"`
	RetryCount  int                   `json:"retry_count"`
	State       draft.TurnState       `json:"state"`
	Signals     *escalation.SignalSet `json:"-"`
	LastActive  time.Time             `json:"last_active"`

	// IssuedAuth maps task_id to the authorization code minted for it, so a
	// redelivered envelope reuses the code instead of minting a duplicate.
	IssuedAuth map[string]string `json:"-"`

	// RejectionNotes carries the current turn's validator rejection reasons
	// back into regeneration so drafting can course-correct.
	RejectionNotes []string `json:"-"`
}

// New creates the state record for a conversation's first turn.
func New(contextID, customerRef string) *Context {
	return &Context{
		ContextID:   contextID,
		CustomerRef: customerRef,
		State:       draft.StatePending,
		Signals:     escalation.NewSignalSet(),
		IssuedAuth:  make(map[string]string),
		LastActive:  time.Now().UTC(),
	}
}

// BeginTurn appends the customer's message and resets all turn-scoped state:
// retry counter, state machine, and rejection notes.
func (c *Context) BeginTurn(content string) {
	c.Turns = append(c.Turns, Turn{Role: RoleCustomer, Content: content, At: time.Now().UTC()})
	c.RetryCount = 0
	c.State = draft.StatePending
	c.RejectionNotes = nil
	c.Touch()
}

// AppendAssistant records the delivered assistant response.
func (c *Context) AppendAssistant(content string) {
	c.Turns = append(c.Turns, Turn{Role: RoleAssistant, Content: content, At: time.Now().UTC()})
	c.Touch()
}

// TurnStartedAt returns the timestamp of the most recent customer turn, the
// anchor for the whole-turn deadline. Zero time if no customer turn exists.
func (c *Context) TurnStartedAt() time.Time {
	for i := len(c.Turns) - 1; i >= 0; i-- {
		if c.Turns[i].Role == RoleCustomer {
			return c.Turns[i].At
		}
	}
	return time.Time{}
}

// CurrentCustomerTurn returns the content of the most recent customer turn,
// or "" if none exists.
func (c *Context) CurrentCustomerTurn() string {
	for i := len(c.Turns) - 1; i >= 0; i-- {
		if c.Turns[i].Role == RoleCustomer {
			return c.Turns[i].Content
		}
	}
	return ""
}

// RecentTurns returns up to n most recent turns, oldest first.
func (c *Context) RecentTurns(n int) []Turn {
	if n <= 0 || len(c.Turns) == 0 {
		return nil
	}
	if len(c.Turns) <= n {
		return c.Turns
	}
	return c.Turns[len(c.Turns)-n:]
}

// AddSignal records a piece of escalation evidence.
func (c *Context) AddSignal(s escalation.Signal) {
	if c.Signals == nil {
		c.Signals = escalation.NewSignalSet()
	}
	c.Signals.Add(s)
	c.Touch()
}

// Touch updates the idle-eviction clock.
func (c *Context) Touch() {
	c.LastActive = time.Now().UTC()
}

// IdleSince reports whether the conversation has been inactive longer than ttl.
func (c *Context) IdleSince(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.LastActive) > ttl
}
