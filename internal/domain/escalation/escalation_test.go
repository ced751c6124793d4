package escalation

import (
	"math/rand"
	"testing"
)

func TestReduceEmptySet(t *testing.T) {
	d := Reduce(NewSignalSet())
	if d.ShouldEscalate {
		t.Fatal("empty set must not escalate")
	}
	if d.Priority != 0 || d.TriggerReason != "" {
		t.Fatalf("empty set must reduce to zero decision, got %+v", d)
	}
}

func TestReduceNilSet(t *testing.T) {
	if d := Reduce(nil); d.ShouldEscalate {
		t.Fatalf("nil set must not escalate, got %+v", d)
	}
}

func TestReduceSingleSignal(t *testing.T) {
	tests := []struct {
		signal   Signal
		priority int
		queue    string
	}{
		{SignalLowConfidence, 1, "general"},
		{SignalNegativeSentiment, 2, "general"},
		{SignalBusinessType, 3, "priority"},
		{SignalDegradedGeneration, 3, "priority"},
		{SignalHighValue, 4, "priority"},
		{SignalValidationExhausted, 5, "urgent"},
		{SignalTimeout, 5, "urgent"},
		{SignalSystemError, 6, "urgent"},
	}
	for _, tt := range tests {
		t.Run(string(tt.signal), func(t *testing.T) {
			ss := NewSignalSet()
			ss.Add(tt.signal)
			d := Reduce(ss)
			if !d.ShouldEscalate {
				t.Fatal("expected escalation")
			}
			if d.TriggerReason != string(tt.signal) {
				t.Errorf("trigger = %q, want %q", d.TriggerReason, tt.signal)
			}
			if d.Priority != tt.priority {
				t.Errorf("priority = %d, want %d", d.Priority, tt.priority)
			}
			if d.TargetQueue != tt.queue {
				t.Errorf("queue = %q, want %q", d.TargetQueue, tt.queue)
			}
		})
	}
}

func TestReduceHighestTierWins(t *testing.T) {
	ss := NewSignalSet()
	ss.Add(SignalLowConfidence)
	ss.Add(SignalHighValue)
	ss.Add(SignalNegativeSentiment)

	d := Reduce(ss)
	if d.TriggerReason != string(SignalHighValue) {
		t.Fatalf("trigger = %q, want %q", d.TriggerReason, SignalHighValue)
	}
	if d.Priority != 4 {
		t.Fatalf("priority = %d, want 4", d.Priority)
	}
}

func TestReduceTieBrokenByCanonicalOrder(t *testing.T) {
	// validation_exhausted and timeout share a tier; validation_exhausted
	// precedes in canonical order and must win regardless of insertion order.
	a := NewSignalSet()
	a.Add(SignalValidationExhausted)
	a.Add(SignalTimeout)

	b := NewSignalSet()
	b.Add(SignalTimeout)
	b.Add(SignalValidationExhausted)

	da, db := Reduce(a), Reduce(b)
	if da != db {
		t.Fatalf("tie decisions differ: %+v vs %+v", da, db)
	}
	if da.TriggerReason != string(SignalValidationExhausted) {
		t.Fatalf("trigger = %q, want %q", da.TriggerReason, SignalValidationExhausted)
	}
}

func TestReduceOrderIndependent(t *testing.T) {
	all := []Signal{
		SignalLowConfidence, SignalNegativeSentiment, SignalBusinessType,
		SignalDegradedGeneration, SignalHighValue, SignalValidationExhausted,
		SignalTimeout,
	}

	ss := NewSignalSet()
	for _, s := range all {
		ss.Add(s)
	}
	want := Reduce(ss)

	rng := rand.New(rand.NewSource(42))
	for range 50 {
		shuffled := make([]Signal, len(all))
		copy(shuffled, all)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		perm := NewSignalSet()
		for _, s := range shuffled {
			perm.Add(s)
		}
		if got := Reduce(perm); got != want {
			t.Fatalf("permutation changed decision: %+v vs %+v (order %v)", got, want, shuffled)
		}
	}
}

func TestAddIsIdempotent(t *testing.T) {
	ss := NewSignalSet()
	ss.Add(SignalTimeout)
	ss.Add(SignalTimeout)
	if ss.Len() != 1 {
		t.Fatalf("Len = %d, want 1", ss.Len())
	}
}

func TestUnknownSignalGetsLowestTier(t *testing.T) {
	ss := NewSignalSet()
	ss.Add(Signal("strange_new_evidence"))
	d := Reduce(ss)
	if !d.ShouldEscalate {
		t.Fatal("unknown signal must still escalate")
	}
	if d.Priority != 1 {
		t.Fatalf("priority = %d, want 1", d.Priority)
	}
}
