// Package window provides the per-symbol rolling history the indicator
// pipeline reads from: a capped price series and a capped implied-volatility
// series. Both use fixed ring storage so appends stay O(1) and the oldest
// sample is evicted once capacity is reached.
//
// A Window is owned by exactly one symbol's evaluation unit and must be
// accessed under that symbol's lock; it does no locking of its own.
package window

import "time"

// Sample is one timestamped observation.
type Sample struct {
	TS    time.Time
	Value float64
}

// series is a capped, time-ordered ring of samples.
type series struct {
	buf  []Sample
	head int // index of oldest sample
	n    int
}

func newSeries(capacity int) *series {
	if capacity < 1 {
		capacity = 1
	}
	return &series{buf: make([]Sample, capacity)}
}

// append inserts a sample keeping the series time-ordered ascending.
// An equal timestamp replaces the latest sample instead of duplicating it;
// an older timestamp is rejected. Returns false on rejection.
func (s *series) append(ts time.Time, v float64) bool {
	if s.n > 0 {
		last := &s.buf[(s.head+s.n-1)%len(s.buf)]
		if ts.Equal(last.TS) {
			last.Value = v
			return true
		}
		if ts.Before(last.TS) {
			return false
		}
	}
	if s.n == len(s.buf) {
		// Evict oldest
		s.buf[s.head] = Sample{TS: ts, Value: v}
		s.head = (s.head + 1) % len(s.buf)
		return true
	}
	s.buf[(s.head+s.n)%len(s.buf)] = Sample{TS: ts, Value: v}
	s.n++
	return true
}

// values unrolls the ring into a fresh oldest-first slice.
func (s *series) values() []float64 {
	out := make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)].Value
	}
	return out
}

func (s *series) latest() (float64, bool) {
	if s.n == 0 {
		return 0, false
	}
	return s.buf[(s.head+s.n-1)%len(s.buf)].Value, true
}

// Window holds a symbol's rolling price history and IV history.
type Window struct {
	prices *series
	ivs    *series
}

// New creates a Window. maxLookback caps the price series (must exceed the
// largest indicator warmup; config validates >= 50), ivLookback caps the
// IV series (one sample per trading day).
func New(maxLookback, ivLookback int) *Window {
	return &Window{
		prices: newSeries(maxLookback),
		ivs:    newSeries(ivLookback),
	}
}

// AppendPrice records a price sample. Returns false if the sample is older
// than the latest one and was dropped.
func (w *Window) AppendPrice(ts time.Time, price float64) bool {
	return w.prices.append(ts, price)
}

// AppendIV records an implied-volatility sample. Same-timestamp writes
// replace, so repeated chain syncs within one day keep a single sample.
func (w *Window) AppendIV(ts time.Time, iv float64) bool {
	return w.ivs.append(ts, iv)
}

// Prices returns the price series oldest-first. The returned slice is a
// snapshot; mutating the window afterwards does not affect it.
func (w *Window) Prices() []float64 { return w.prices.values() }

// IVHistory returns the IV series oldest-first, as a snapshot.
func (w *Window) IVHistory() []float64 { return w.ivs.values() }

// LastPrice returns the most recent price, if any.
func (w *Window) LastPrice() (float64, bool) { return w.prices.latest() }

// PriceCount returns the number of price samples currently held.
func (w *Window) PriceCount() int { return w.prices.n }
