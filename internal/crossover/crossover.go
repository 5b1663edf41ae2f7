// Package crossover detects MACD/signal line crossings as discrete events.
//
// Comparing only the latest sample ("MACD above signal") is a level check,
// not a crossing: it would re-fire on every tick while the condition holds.
// The Tracker instead remembers the previous pair and reports the sign
// change between consecutive observations.
package crossover

// Event is the transition observed between two consecutive MACD/signal pairs.
type Event int

const (
	NoEvent Event = iota
	CrossedUp
	CrossedDown
)

func (e Event) String() string {
	switch e {
	case CrossedUp:
		return "crossed_up"
	case CrossedDown:
		return "crossed_down"
	default:
		return "no_event"
	}
}

// Tracker is a per-symbol two-state machine: Unknown until the first pair is
// observed, Tracking afterwards. Not safe for concurrent use; each symbol's
// evaluation unit owns its Tracker.
type Tracker struct {
	prevMACD   float64
	prevSignal float64
	tracking   bool
}

// Observe records a new (macdLine, signalLine) pair and returns the event it
// completes. The first observation for a symbol can never be a crossing.
// Stored previous values are always overwritten, whatever the outcome.
func (t *Tracker) Observe(macdLine, signalLine float64) Event {
	if !t.tracking {
		t.prevMACD, t.prevSignal = macdLine, signalLine
		t.tracking = true
		return NoEvent
	}

	event := NoEvent
	switch {
	case t.prevMACD <= t.prevSignal && macdLine > signalLine:
		event = CrossedUp
	case t.prevMACD >= t.prevSignal && macdLine < signalLine:
		event = CrossedDown
	}

	t.prevMACD, t.prevSignal = macdLine, signalLine
	return event
}
