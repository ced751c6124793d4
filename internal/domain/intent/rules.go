package intent

import (
	"regexp"
	"sort"
	"strings"
)

// Rule is one entry in the prioritized classification table. Lower Priority
// values are evaluated first, so more specific intents must carry lower
// numbers than general intents that share vocabulary: a message mentioning
// both "return" and "my order" must classify as a return, not order status.
type Rule struct {
	Intent     Intent
	Priority   int
	Keywords   []string
	Confidence float64
	Target     string
}

// Routing targets describing which augmentation route serves the intent.
const (
	TargetCommerce  = "augment.commerce"
	TargetPolicy    = "augment.policy"
	TargetProduct   = "augment.product"
	TargetKnowledge = "augment.knowledge"
)

// DefaultRules returns the reference rule table. The table is data, not code:
// deployments may extend it, but relative priorities are part of the routing
// contract and covered by tests.
func DefaultRules() []Rule {
	return []Rule{
		{
			Intent:     IntentBulkOrder,
			Priority:   5,
			Keywords:   []string{"bulk", "wholesale", "reseller", "large quantity"},
			Confidence: 0.9,
			Target:     TargetCommerce,
		},
		{
			Intent:     IntentReturn,
			Priority:   10,
			Keywords:   []string{"return", "send back", "send it back", "exchange"},
			Confidence: 0.85,
			Target:     TargetPolicy,
		},
		{
			Intent:     IntentRefund,
			Priority:   12,
			Keywords:   []string{"refund", "money back", "charge back", "reimburse"},
			Confidence: 0.85,
			Target:     TargetPolicy,
		},
		{
			Intent:     IntentComplaint,
			Priority:   20,
			Keywords:   []string{"complaint", "terrible", "awful", "unacceptable", "worst"},
			Confidence: 0.75,
			Target:     TargetKnowledge,
		},
		{
			Intent:     IntentOrderStatus,
			Priority:   30,
			Keywords:   []string{"order", "shipping", "delivery", "tracking", "where is"},
			Confidence: 0.7,
			Target:     TargetCommerce,
		},
		{
			Intent:     IntentProduct,
			Priority:   40,
			Keywords:   []string{"product", "size", "color", "material", "in stock", "available"},
			Confidence: 0.65,
			Target:     TargetProduct,
		},
	}
}

// MinConfidence is the floor a rule match must clear to be accepted. Matches
// below it, and messages matching no rule at all, degrade to the catch-all.
const MinConfidence = 0.3

// CatchAllConfidence is the confidence assigned to the catch-all intent.
// Deliberately below MinConfidence so downstream treats it as low trust.
const CatchAllConfidence = 0.1

var (
	orderIDPattern = regexp.MustCompile(`\b(?:ORD-\d+|#\d{3,})\b`)
	amountPattern  = regexp.MustCompile(`\$(\d+(?:\.\d{1,2})?)`)
)

// negativeWords marks sentiment worth an escalation signal. Matching is
// substring-based on the lowercased message.
var negativeWords = []string{
	"angry", "furious", "terrible", "awful", "unacceptable", "worst",
	"disappointed", "frustrated", "ridiculous", "never again",
}

// Classify scores message against the rule table in ascending priority order
// and returns the first match clearing MinConfidence. Empty or unmatched
// input never errors: it degrades to IntentGeneral at CatchAllConfidence.
func Classify(message string, rules []Rule) DispatchResult {
	fields := ExtractFields(message)

	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "" {
		return catchAll(fields)
	}

	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for _, r := range ordered {
		matched := 0
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}

		// Extra keyword hits raise confidence slightly, capped below 1.
		conf := r.Confidence + 0.03*float64(matched-1)
		if conf > 0.98 {
			conf = 0.98
		}
		if conf < MinConfidence {
			continue
		}

		return DispatchResult{
			Intent:          r.Intent,
			Confidence:      conf,
			ExtractedFields: fields,
			RoutingTarget:   r.Target,
		}
	}

	return catchAll(fields)
}

func catchAll(fields map[string]string) DispatchResult {
	return DispatchResult{
		Intent:          IntentGeneral,
		Confidence:      CatchAllConfidence,
		ExtractedFields: fields,
		RoutingTarget:   TargetKnowledge,
	}
}

// ExtractFields pulls structured fields (order id, monetary amount) out of a
// raw message. Returns nil when nothing was found.
func ExtractFields(message string) map[string]string {
	var fields map[string]string
	set := func(k, v string) {
		if fields == nil {
			fields = make(map[string]string)
		}
		fields[k] = v
	}

	if m := orderIDPattern.FindString(message); m != "" {
		set(FieldOrderID, strings.TrimPrefix(m, "#"))
	}
	if m := amountPattern.FindStringSubmatch(message); m != nil {
		set(FieldAmount, m[1])
	}
	return fields
}

// NegativeSentiment reports whether the message carries vocabulary that
// warrants a negative-sentiment escalation signal.
func NegativeSentiment(message string) bool {
	lower := strings.ToLower(message)
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
