package indicator

// RSI computes the Relative Strength Index over the trailing `period` price
// deltas: mean gain / mean loss converted to 100 - 100/(1+rs).
//
// Readiness rules:
//   - fewer than period+1 samples: not ready
//   - flat series (no gains and no losses in the trailing window): not ready,
//     deliberately NOT reported as a neutral 50
//   - zero mean loss with positive gains: 100
func RSI(prices []float64, period int) (float64, bool) {
	if period < 1 || len(prices) < period+1 {
		return 0, false
	}

	var gainSum, lossSum float64
	start := len(prices) - period
	for i := start; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}

	if gainSum == 0 && lossSum == 0 {
		return 0, false
	}
	if lossSum == 0 {
		return 100, true
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}
