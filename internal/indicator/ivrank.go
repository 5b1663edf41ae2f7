package indicator

import "github.com/montanaflynn/stats"

// IVRank places the current implied volatility inside its historical range:
// (current - min) / (max - min) * 100, clamped to [0, 100].
//
// A flat or empty history returns 0 — policy to avoid division by zero, not
// a fault: rank-above-50 conditions simply cannot fire without IV spread.
func IVRank(currentIV float64, history []float64) float64 {
	if len(history) == 0 {
		return 0
	}

	low, err := stats.Min(history)
	if err != nil {
		return 0
	}
	high, err := stats.Max(history)
	if err != nil {
		return 0
	}
	if high == low {
		return 0
	}

	rank := (currentIV - low) / (high - low) * 100
	if rank < 0 {
		return 0
	}
	if rank > 100 {
		return 100
	}
	return rank
}
