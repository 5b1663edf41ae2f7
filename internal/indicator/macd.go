package indicator

// ema computes an exponential moving average series with smoothing factor
// 2/(period+1), seeded by the first sample. No look-ahead: value i depends
// only on samples 0..i.
func ema(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// MACD computes the latest MACD line, signal line, and histogram for the
// price series. The MACD line is fastEMA - slowEMA; the signal line is an
// EMA of the MACD line itself.
//
// Values are defined from the first sample on (EMA seeding), but they carry
// little meaning before the slow EMA has seen a full period of data, so
// ready is false until len(prices) >= slow.
func MACD(prices []float64, fast, slow, signalPeriod int) (line, signal, histogram float64, ready bool) {
	if len(prices) == 0 || fast < 1 || slow < 1 || signalPeriod < 1 {
		return 0, 0, 0, false
	}

	fastEMA := ema(prices, fast)
	slowEMA := ema(prices, slow)

	macd := make([]float64, len(prices))
	for i := range prices {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	signalSeries := ema(macd, signalPeriod)

	last := len(prices) - 1
	line = macd[last]
	signal = signalSeries[last]
	histogram = line - signal
	ready = len(prices) >= slow
	return line, signal, histogram, ready
}
