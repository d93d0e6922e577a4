package model

import "testing"

func TestCanTransition_LegalAndIllegalEdges(t *testing.T) {
	legal := []struct{ from, to QueueState }{
		{QueueStateQueued, QueueStateRunning},
		{QueueStateRunning, QueueStatePaused},
		{QueueStateRunning, QueueStateDone},
		{QueueStatePaused, QueueStateRunning},
		{QueueStateDone, QueueStateQueued},
		{QueueStateFailed, QueueStateQueued},
	}
	for _, e := range legal {
		if !CanTransition(e.from, e.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", e.from, e.to)
		}
	}

	illegal := []struct{ from, to QueueState }{
		{QueueStateDone, QueueStateRunning},
		{QueueStatePaused, QueueStateDone},
		{QueueStateQueued, QueueStateDone},
		{QueueState("BOGUS"), QueueStateRunning},
	}
	for _, e := range illegal {
		if CanTransition(e.from, e.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", e.from, e.to)
		}
	}
}

func TestCounters_ProcessedFailedStable(t *testing.T) {
	c := Counters{Total: 10, Pending: 0, Processing: 0, Done: 7, Error: 2, NotFound: 1}
	if c.Processed() != 8 {
		t.Fatalf("Processed() = %d, want 8", c.Processed())
	}
	if c.Failed() != 2 {
		t.Fatalf("Failed() = %d, want 2", c.Failed())
	}
	if !c.Stable() {
		t.Fatal("expected Stable() == true when Processing == 0")
	}

	c.Processing = 1
	if c.Stable() {
		t.Fatal("expected Stable() == false when an item is still PROCESSING")
	}
}

func TestJobItem_LockedInvariant(t *testing.T) {
	it := JobItem{Status: ItemPending}
	if it.Locked() {
		t.Fatal("expected Locked() == false with no lock fields set")
	}
}
