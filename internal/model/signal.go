package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StrategySignal is an immutable record of a fired trading signal.
// Constructed once by the evaluator and consumed once by the dispatcher.
type StrategySignal struct {
	ID        uuid.UUID `json:"id"`
	Ticker    string    `json:"ticker"`
	Strike    float64   `json:"strike"`
	Expiry    string    `json:"expiry"` // "2006-01-02", or "" when no contract known
	Rationale string    `json:"rationale"`
	FiredAt   time.Time `json:"fired_at"` // UTC
}

// DedupKey identifies the instrument a signal refers to. Two signals with the
// same key within the dedup window produce a single forwarded alert.
type DedupKey struct {
	Ticker string
	Strike float64
	Expiry string
}

// Key returns the dedup key for this signal.
func (s *StrategySignal) Key() DedupKey {
	return DedupKey{Ticker: s.Ticker, Strike: s.Strike, Expiry: s.Expiry}
}

// Text formats the signal for the outbound alert channel: instrument line,
// then the rationale line.
func (s *StrategySignal) Text() string {
	expiry := s.Expiry
	if expiry == "" {
		expiry = "n/a"
	}
	return fmt.Sprintf("%s %.2f expiring %s\nReason: %s", s.Ticker, s.Strike, expiry, s.Rationale)
}
