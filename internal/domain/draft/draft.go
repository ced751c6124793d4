// Package draft defines candidate customer-facing responses, validator
// verdicts, and the per-turn state machine that bounds the reject/regenerate
// loop.
package draft

// Draft is a candidate response awaiting validation.
type Draft struct {
	Text     string `json:"text"`
	AuthCode string `json:"auth_code,omitempty"` // present only on auto-approved reversals
	Degraded bool   `json:"degraded,omitempty"`  // template-only fallback was used
	Attempt  int    `json:"attempt"`             // 1-based generation attempt for this turn
}

// ReasonCode identifies why the validator rejected content.
type ReasonCode string

const (
	ReasonDisallowedContent ReasonCode = "disallowed_content"
	ReasonPromptInjection   ReasonCode = "prompt_injection"
	ReasonPIILeak           ReasonCode = "pii_leak"
	ReasonLowConfidence     ReasonCode = "low_confidence"
)

// Severity ranks rejection reasons for escalation priority.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

// severities maps each reason to its rank.
var severities = map[ReasonCode]Severity{
	ReasonLowConfidence:     SeverityLow,
	ReasonDisallowedContent: SeverityMedium,
	ReasonPromptInjection:   SeverityHigh,
	ReasonPIILeak:           SeverityHigh,
}

// SeverityOf returns the severity rank of a reason code.
func SeverityOf(r ReasonCode) Severity {
	if s, ok := severities[r]; ok {
		return s
	}
	return SeverityMedium
}

// Verdict is the outcome of running the validation battery.
type Verdict struct {
	Accepted bool         `json:"accepted"`
	Reasons  []ReasonCode `json:"reasons,omitempty"`
	Severity Severity     `json:"severity,omitempty"`
}

// Accept returns an accepting verdict.
func Accept() Verdict {
	return Verdict{Accepted: true}
}

// Reject returns a rejecting verdict whose severity is the maximum across
// the given reasons. Reasons must be non-empty for a reject.
func Reject(reasons ...ReasonCode) Verdict {
	v := Verdict{Accepted: false, Reasons: reasons}
	for _, r := range reasons {
		if s := SeverityOf(r); s > v.Severity {
			v.Severity = s
		}
	}
	return v
}
