package intent

import (
	"math/rand"
	"testing"
)

func TestClassifyReturnBeatsOrderStatus(t *testing.T) {
	// The ordering contract: a message with both "return" and "my order"
	// vocabulary must classify as a return, not order status.
	msg := "I want to return my order ORD-1234"

	res := Classify(msg, DefaultRules())
	if res.Intent != IntentReturn {
		t.Fatalf("intent = %s, want %s", res.Intent, IntentReturn)
	}
	if res.ExtractedFields[FieldOrderID] != "ORD-1234" {
		t.Errorf("order_id = %q, want ORD-1234", res.ExtractedFields[FieldOrderID])
	}
}

func TestClassifyReturnBeatsOrderStatusUnderShuffledTable(t *testing.T) {
	msg := "I need to return my order, where is my refund form?"
	rules := DefaultRules()

	rng := rand.New(rand.NewSource(7))
	for range 25 {
		rng.Shuffle(len(rules), func(i, j int) { rules[i], rules[j] = rules[j], rules[i] })
		res := Classify(msg, rules)
		if res.Intent != IntentReturn {
			t.Fatalf("intent = %s after shuffle, want %s", res.Intent, IntentReturn)
		}
	}
}

func TestClassifyTable(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want Intent
	}{
		{"order status", "where is my order #12345?", IntentOrderStatus},
		{"refund", "I want my money back for this", IntentRefund},
		{"bulk beats order", "I want to place a bulk order for my store", IntentBulkOrder},
		{"product", "is this jacket available in blue?", IntentProduct},
		{"complaint", "this is unacceptable service", IntentComplaint},
		{"catch-all", "hello there", IntentGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(tt.msg, DefaultRules())
			if res.Intent != tt.want {
				t.Fatalf("intent = %s, want %s", res.Intent, tt.want)
			}
		})
	}
}

func TestClassifyEmptyInputDegrades(t *testing.T) {
	for _, msg := range []string{"", "   ", "\n\t"} {
		res := Classify(msg, DefaultRules())
		if res.Intent != IntentGeneral {
			t.Fatalf("intent = %s for %q, want catch-all", res.Intent, msg)
		}
		if res.Confidence != CatchAllConfidence {
			t.Fatalf("confidence = %v, want %v", res.Confidence, CatchAllConfidence)
		}
		if res.Confidence >= MinConfidence {
			t.Fatal("catch-all confidence must sit below the minimum floor")
		}
	}
}

func TestClassifyConfidenceCapped(t *testing.T) {
	msg := "return exchange send back send it back"
	res := Classify(msg, DefaultRules())
	if res.Confidence > 0.98 {
		t.Fatalf("confidence = %v, want <= 0.98", res.Confidence)
	}
}

func TestExtractFields(t *testing.T) {
	tests := []struct {
		msg       string
		wantOrder string
		wantAmt   string
	}{
		{"order ORD-42 please", "ORD-42", ""},
		{"my order #98765 cost $45.50", "98765", "45.50"},
		{"charged $12", "", "12"},
		{"no structure here", "", ""},
	}
	for _, tt := range tests {
		fields := ExtractFields(tt.msg)
		if got := fields[FieldOrderID]; got != tt.wantOrder {
			t.Errorf("%q: order_id = %q, want %q", tt.msg, got, tt.wantOrder)
		}
		if got := fields[FieldAmount]; got != tt.wantAmt {
			t.Errorf("%q: amount = %q, want %q", tt.msg, got, tt.wantAmt)
		}
	}
}

func TestNegativeSentiment(t *testing.T) {
	if !NegativeSentiment("I am absolutely furious about this") {
		t.Error("expected negative sentiment")
	}
	if NegativeSentiment("thanks, everything arrived fine") {
		t.Error("did not expect negative sentiment")
	}
}

func TestMonetaryReversal(t *testing.T) {
	if !IntentRefund.MonetaryReversal() || !IntentReturn.MonetaryReversal() {
		t.Error("refund and return are monetary reversals")
	}
	if IntentOrderStatus.MonetaryReversal() {
		t.Error("order status is not a monetary reversal")
	}
}
