package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidatePayload checks whether data is valid JSON conforming to the schema
// associated with the given topic. Unknown topics pass validation
// (future-proof for new message types); DLQ topics are checked against the
// schema of the topic they mirror.
func ValidatePayload(topic string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on topic %s", topic)
	}

	base := strings.TrimSuffix(topic, DLQSuffix)

	var target any
	switch base {
	case TopicInbound:
		target = &InboundPayload{}
	case TopicDispatched:
		target = &DispatchedPayload{}
	case TopicAugmented:
		target = &AugmentedPayload{}
	case TopicDrafted:
		target = &DraftedPayload{}
	case TopicValidated:
		target = &ValidatedPayload{}
	case TopicOutbound:
		target = &OutboundPayload{}
	case TopicHandoff:
		target = &HandoffPayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", topic, err)
	}
	return nil
}
