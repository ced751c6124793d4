// Package intent defines the closed intent set, the dispatch result produced
// by classification, and the priority-ordered rule table of the reference
// classifier.
package intent

// Intent is a closed, tagged classification of a customer message. Routing
// keys off this type, never off free-form strings, so vocabulary overlap
// between intents cannot silently misroute.
type Intent string

const (
	IntentReturn      Intent = "return_request"
	IntentRefund      Intent = "refund_request"
	IntentOrderStatus Intent = "order_status"
	IntentProduct     Intent = "product_question"
	IntentBulkOrder   Intent = "bulk_order"
	IntentComplaint   Intent = "complaint"
	IntentGeneral     Intent = "general_inquiry" // catch-all
)

// MonetaryReversal reports whether the intent asks money to move back to the
// customer. These intents are subject to the auto-approval threshold rule.
func (i Intent) MonetaryReversal() bool {
	return i == IntentReturn || i == IntentRefund
}

// DispatchResult is the output of the intent dispatcher for one message.
type DispatchResult struct {
	Intent          Intent            `json:"intent"`
	Confidence      float64           `json:"confidence"`
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`
	RoutingTarget   string            `json:"routing_target"`
}

// Field names used in ExtractedFields.
const (
	FieldOrderID = "order_id"
	FieldAmount  = "amount"
)
