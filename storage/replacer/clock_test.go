package replacer

import "testing"

func TestClockReplacerBasicEviction(t *testing.T) {
	r := NewClockReplacer(4)
	r.Unpin(0)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	if got := r.Size(); got != 4 {
		t.Fatalf("Size() = %d, want 4", got)
	}

	// Unpin set every frame's reference bit, so the first sweep only
	// clears bits; the second pass then evicts frame 0, the first
	// frame in clock order.
	id, ok := r.Victim()
	if !ok {
		t.Fatal("Victim() returned ok=false with frames available")
	}
	if id != 0 {
		t.Fatalf("Victim() = %d, want 0", id)
	}

	if got := r.Size(); got != 3 {
		t.Fatalf("Size() after one victim = %d, want 3", got)
	}
}

func TestClockReplacerPinPreventsEviction(t *testing.T) {
	r := NewClockReplacer(2)
	r.Unpin(0)
	r.Unpin(1)
	r.Pin(0)

	if got := r.Size(); got != 1 {
		t.Fatalf("Size() = %d, want 1", got)
	}

	victim, ok := r.Victim()
	if !ok {
		t.Fatal("expected a victim")
	}
	if victim != 1 {
		t.Fatalf("victim = %d, want 1 (only unpinned frame)", victim)
	}
}

func TestClockReplacerEmpty(t *testing.T) {
	r := NewClockReplacer(3)
	if _, ok := r.Victim(); ok {
		t.Fatal("expected no victim when replacer is empty")
	}
}

func TestClockReplacerSecondChance(t *testing.T) {
	r := NewClockReplacer(2)
	r.Unpin(0)
	r.Unpin(1)

	// Both frames start with their reference bit set. The first sweep
	// gives each a second chance by clearing its bit, so the frame
	// evicted is frame 0, reached first on the next pass.
	victim, ok := r.Victim()
	if !ok {
		t.Fatal("expected a victim")
	}
	if victim != 0 {
		t.Fatalf("victim = %d, want 0 (first in clock order)", victim)
	}
}
