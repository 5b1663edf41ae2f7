// Package strategy decides whether one symbol's indicator state warrants a
// trading signal, and sizes the position for it.
//
// Firing condition (all from the same window snapshot):
//   - RSI below 30 (oversold)
//   - MACD line just crossed above the signal line
//   - IV rank above 50
package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"options-signals/internal/crossover"
	"options-signals/internal/indicator"
	"options-signals/internal/model"
)

const (
	rsiOversold = 30.0
	ivRankFloor = 50.0
)

// ErrInvalidPrice reports a non-positive price reaching position sizing.
// It indicates corrupt upstream data and halts that symbol's evaluation
// cycle; it is never swallowed into a zero-size signal.
var ErrInvalidPrice = errors.New("price must be positive")

// Dispatch forwards a fired signal toward the alert channel. A dispatch
// failure does not un-fire the signal.
type Dispatch func(model.StrategySignal)

// Evaluator holds the risk parameters and the dispatch hook.
type Evaluator struct {
	riskPerTrade   float64
	portfolioValue float64
	dispatch       Dispatch

	now func() time.Time
}

// NewEvaluator creates an Evaluator. riskPerTrade is the portfolio fraction
// risked per trade (0.02 = 2%).
func NewEvaluator(riskPerTrade, portfolioValue float64, dispatch Dispatch) *Evaluator {
	return &Evaluator{
		riskPerTrade:   riskPerTrade,
		portfolioValue: portfolioValue,
		dispatch:       dispatch,
		now:            time.Now,
	}
}

// PositionSize returns the number of shares/contracts the risk budget buys
// at the given price: floor(riskPerTrade * portfolioValue / price).
func (e *Evaluator) PositionSize(price float64) (int64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("position size at %.4f: %w", price, ErrInvalidPrice)
	}
	riskAmount := e.riskPerTrade * e.portfolioValue
	return int64(math.Floor(riskAmount / price)), nil
}

// Evaluate checks the firing condition against one indicator snapshot and
// crossover transition. On firing it builds a StrategySignal stamped with
// the symbol's nearest-the-money contract (when known) and hands it to the
// dispatch hook. Returns whether the signal fired, regardless of what the
// alert channel later does with it.
func (e *Evaluator) Evaluate(symbol string, snap indicator.Snapshot, ev crossover.Event, price float64, contract *model.OptionQuote) (bool, error) {
	if !snap.RSIReady || !snap.MACDReady {
		return false, nil
	}
	if snap.RSI >= rsiOversold || ev != crossover.CrossedUp || snap.IVRank <= ivRankFloor {
		return false, nil
	}

	size, err := e.PositionSize(price)
	if err != nil {
		return false, err
	}

	sig := model.StrategySignal{
		ID:     uuid.New(),
		Ticker: symbol,
		Rationale: fmt.Sprintf(
			"RSI %.1f oversold, MACD crossed above signal (%.4f > %.4f), IV rank %.1f; buy %d @ %.2f",
			snap.RSI, snap.MACDLine, snap.MACDSignal, snap.IVRank, size, price),
		FiredAt: e.now().UTC(),
	}
	if contract != nil {
		sig.Strike = contract.Strike
		sig.Expiry = contract.ExpiryString()
	}

	if e.dispatch != nil {
		e.dispatch(sig)
	}
	return true, nil
}
