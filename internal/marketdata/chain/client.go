// Package chain refreshes per-symbol option chain snapshots from the REST
// provider and feeds the derived implied volatility into the per-symbol
// rolling windows.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"options-signals/internal/model"
)

// Client fetches option chains from the provider REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a chain client for the given REST base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// contractDTO is the provider's wire shape for one contract.
type contractDTO struct {
	Expiration string   `json:"expiration"`
	Strike     float64  `json:"strike"`
	Type       string   `json:"type"`
	Bid        *float64 `json:"bid,omitempty"`
	Ask        *float64 `json:"ask,omitempty"`
	ImpliedVol float64  `json:"implied_vol"`
}

// FetchChain pulls the current chain snapshot for symbol. Contracts that
// fail validation are dropped and logged, not fatal to the fetch.
func (c *Client) FetchChain(ctx context.Context, symbol string) ([]model.OptionQuote, error) {
	url := fmt.Sprintf("%s/options/%s", c.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chain: fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain: fetch %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var dtos []contractDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("chain: decode %s: %w", symbol, err)
	}

	now := time.Now().UTC()
	quotes := make([]model.OptionQuote, 0, len(dtos))
	for _, dto := range dtos {
		q, err := dto.toQuote(symbol, now)
		if err != nil {
			log.Printf("[chain] %s: dropping contract: %v", symbol, err)
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (d *contractDTO) toQuote(symbol string, fetchedAt time.Time) (model.OptionQuote, error) {
	expiry, err := time.ParseInLocation("2006-01-02", d.Expiration, time.UTC)
	if err != nil {
		return model.OptionQuote{}, fmt.Errorf("bad expiration %q: %w", d.Expiration, err)
	}
	if d.Strike <= 0 {
		return model.OptionQuote{}, fmt.Errorf("bad strike %v", d.Strike)
	}
	var typ model.OptionType
	switch strings.ToLower(d.Type) {
	case "call":
		typ = model.OptionCall
	case "put":
		typ = model.OptionPut
	default:
		return model.OptionQuote{}, fmt.Errorf("bad option type %q", d.Type)
	}
	if d.ImpliedVol < 0 {
		return model.OptionQuote{}, fmt.Errorf("negative implied vol %v", d.ImpliedVol)
	}
	return model.OptionQuote{
		Symbol:     symbol,
		Expiration: expiry,
		Strike:     d.Strike,
		OptionType: typ,
		Bid:        d.Bid,
		Ask:        d.Ask,
		ImpliedVol: d.ImpliedVol,
		Timestamp:  fetchedAt,
	}, nil
}
