// Package escalation defines the signals a conversation accumulates and the
// pure reduction that turns them into a final handoff decision.
package escalation

import "sort"

// Signal is a discrete piece of escalation evidence recorded on a conversation.
type Signal string

const (
	SignalLowConfidence       Signal = "low_confidence"
	SignalNegativeSentiment   Signal = "negative_sentiment"
	SignalBusinessType        Signal = "business_type"
	SignalDegradedGeneration  Signal = "degraded_generation"
	SignalHighValue           Signal = "high_value"
	SignalValidationExhausted Signal = "validation_exhausted"
	SignalTimeout             Signal = "timeout"
	SignalSystemError         Signal = "system_error"
)

// canonicalOrder fixes both the tie-break order between signals of equal tier
// and the iteration order of reductions. Appending here is safe; reordering
// changes decided trigger reasons.
var canonicalOrder = []Signal{
	SignalLowConfidence,
	SignalNegativeSentiment,
	SignalBusinessType,
	SignalDegradedGeneration,
	SignalHighValue,
	SignalValidationExhausted,
	SignalTimeout,
	SignalSystemError,
}

// tiers maps each signal to its priority tier. Higher tier wins the reduction.
var tiers = map[Signal]int{
	SignalLowConfidence:       1,
	SignalNegativeSentiment:   2,
	SignalBusinessType:        3,
	SignalDegradedGeneration:  3,
	SignalHighValue:           4,
	SignalValidationExhausted: 5,
	SignalTimeout:             5,
	SignalSystemError:         6,
}

// Tier returns the priority tier for a signal. Unknown signals get tier 1 so
// that an unrecognized piece of evidence still escalates, at the lowest rank.
func (s Signal) Tier() int {
	if t, ok := tiers[s]; ok {
		return t
	}
	return 1
}

// SignalSet is an unordered collection of escalation signals. Insertion order
// carries no meaning; the reduction is a pure function of set membership.
type SignalSet struct {
	present map[Signal]bool
}

// NewSignalSet returns an empty signal set.
func NewSignalSet() *SignalSet {
	return &SignalSet{present: make(map[Signal]bool)}
}

// Add records a signal. Adding an already-present signal is a no-op.
func (ss *SignalSet) Add(s Signal) {
	if ss.present == nil {
		ss.present = make(map[Signal]bool)
	}
	ss.present[s] = true
}

// Has reports whether the signal has been recorded.
func (ss *SignalSet) Has(s Signal) bool {
	return ss != nil && ss.present[s]
}

// Len returns the number of distinct signals recorded.
func (ss *SignalSet) Len() int {
	if ss == nil {
		return 0
	}
	return len(ss.present)
}

// Signals returns the recorded signals in canonical order.
func (ss *SignalSet) Signals() []Signal {
	if ss == nil {
		return nil
	}
	out := make([]Signal, 0, len(ss.present))
	for _, s := range canonicalOrder {
		if ss.present[s] {
			out = append(out, s)
		}
	}
	// Unknown signals, if any, sort after the canonical ones by label.
	var extra []Signal
	for s := range ss.present {
		if _, ok := tiers[s]; !ok {
			extra = append(extra, s)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// Decision is the final, auditable outcome of the escalation reduction.
type Decision struct {
	ShouldEscalate bool   `json:"should_escalate"`
	TriggerReason  string `json:"trigger_reason,omitempty"`
	Priority       int    `json:"priority"`
	TargetQueue    string `json:"target_queue,omitempty"`
}

// queueForTier maps a priority tier to the human queue that owns it.
func queueForTier(tier int) string {
	switch {
	case tier >= 5:
		return "urgent"
	case tier >= 3:
		return "priority"
	default:
		return "general"
	}
}

// Reduce folds the accumulated signals into a Decision. The result depends
// only on set membership: priority is the maximum tier among present signals,
// the trigger reason is the label of the highest-tier signal with ties broken
// by canonical order, and any present signal forces escalation. An empty set
// reduces to a non-escalating zero Decision.
func Reduce(ss *SignalSet) Decision {
	if ss == nil || ss.Len() == 0 {
		return Decision{}
	}

	var winner Signal
	maxTier := 0
	for _, s := range ss.Signals() {
		if t := s.Tier(); t > maxTier {
			maxTier = t
			winner = s
		}
	}

	return Decision{
		ShouldEscalate: true,
		TriggerReason:  string(winner),
		Priority:       maxTier,
		TargetQueue:    queueForTier(maxTier),
	}
}
