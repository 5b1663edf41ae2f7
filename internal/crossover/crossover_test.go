package crossover

import "testing"

func TestTracker_FirstObservationIsNoEvent(t *testing.T) {
	var tr Tracker
	if ev := tr.Observe(5, 1); ev != NoEvent {
		t.Fatalf("first observation: expected NoEvent, got %v", ev)
	}
}

func TestTracker_CrossedUp(t *testing.T) {
	var tr Tracker
	tr.Observe(1, 2)
	if ev := tr.Observe(3, 2); ev != CrossedUp {
		t.Fatalf("expected CrossedUp, got %v", ev)
	}
}

func TestTracker_NoEventWhenStillBelow(t *testing.T) {
	var tr Tracker
	tr.Observe(1, 2)
	if ev := tr.Observe(0, 3); ev != NoEvent {
		t.Fatalf("expected NoEvent, got %v", ev)
	}
}

func TestTracker_CrossedDown(t *testing.T) {
	var tr Tracker
	tr.Observe(3, 2)
	if ev := tr.Observe(1, 2); ev != CrossedDown {
		t.Fatalf("expected CrossedDown, got %v", ev)
	}
}

func TestTracker_RepeatedPairNeverRefires(t *testing.T) {
	var tr Tracker
	tr.Observe(1, 2)
	if ev := tr.Observe(3, 2); ev != CrossedUp {
		t.Fatalf("expected CrossedUp, got %v", ev)
	}
	// Condition persists: a level comparison would fire again, a crossing
	// detector must not.
	if ev := tr.Observe(3, 2); ev != NoEvent {
		t.Fatalf("repeat pair: expected NoEvent, got %v", ev)
	}
	if ev := tr.Observe(4, 2); ev != NoEvent {
		t.Fatalf("still above: expected NoEvent, got %v", ev)
	}
}

func TestTracker_TouchThenCrossCounts(t *testing.T) {
	var tr Tracker
	tr.Observe(2, 2) // exactly on the line
	if ev := tr.Observe(3, 2); ev != CrossedUp {
		t.Fatalf("from-touch cross: expected CrossedUp, got %v", ev)
	}
}

func TestTracker_SequenceOfTransitions(t *testing.T) {
	var tr Tracker
	pairs := [][2]float64{{1, 2}, {3, 2}, {3.5, 2}, {1, 2}, {0.5, 2}, {3, 2}}
	want := []Event{NoEvent, CrossedUp, NoEvent, CrossedDown, NoEvent, CrossedUp}

	for i, p := range pairs {
		if ev := tr.Observe(p[0], p[1]); ev != want[i] {
			t.Errorf("step %d (%v): expected %v, got %v", i, p, want[i], ev)
		}
	}
}
