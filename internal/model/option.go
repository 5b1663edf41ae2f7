package model

import "time"

// OptionType is the side of an option contract.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// OptionQuote is one contract from an option chain snapshot. Bid/Ask are
// optional pass-through metadata (nil when the provider omits them); only
// ImpliedVol feeds the indicator pipeline.
type OptionQuote struct {
	Symbol     string     `json:"symbol"`
	Expiration time.Time  `json:"expiration"` // date, UTC midnight
	Strike     float64    `json:"strike"`
	OptionType OptionType `json:"option_type"`
	Bid        *float64   `json:"bid,omitempty"`
	Ask        *float64   `json:"ask,omitempty"`
	ImpliedVol float64    `json:"implied_vol"`
	Timestamp  time.Time  `json:"timestamp"` // fetch time, UTC
}

// ExpiryString renders the expiration as a date string for alerts and keys.
func (q *OptionQuote) ExpiryString() string {
	return q.Expiration.Format("2006-01-02")
}
