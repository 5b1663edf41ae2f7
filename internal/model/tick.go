package model

import "time"

// Tick is a single normalized market data tick from the provider WebSocket.
// Immutable once created; consumed exactly once by the per-symbol window.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"` // UTC
}
