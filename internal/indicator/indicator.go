// Package indicator computes the technical indicators the signal pipeline
// evaluates on every tick: RSI, MACD (line/signal/histogram), and IV rank.
//
// All functions operate on a snapshot of the symbol's rolling window taken
// under the symbol's lock, so one evaluation sees one consistent view of the
// data. Insufficient history is signalled through readiness flags, never as
// an error: a not-ready indicator simply cannot fire a signal.
package indicator

// Config holds the indicator periods. Defaults mirror the common RSI(14)
// and MACD(12,26,9) parameterization.
type Config struct {
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
}

// DefaultConfig returns the standard periods.
func DefaultConfig() Config {
	return Config{RSIPeriod: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9}
}

// Snapshot is the result of one evaluation pass. Values are only meaningful
// when the corresponding Ready flag is set.
type Snapshot struct {
	RSI      float64
	RSIReady bool

	MACDLine      float64
	MACDSignal    float64
	MACDHistogram float64
	MACDReady     bool

	IVRank float64
}

// Compute evaluates all indicators against one window snapshot.
func Compute(cfg Config, prices []float64, currentIV float64, ivHistory []float64) Snapshot {
	var snap Snapshot
	snap.RSI, snap.RSIReady = RSI(prices, cfg.RSIPeriod)
	snap.MACDLine, snap.MACDSignal, snap.MACDHistogram, snap.MACDReady =
		MACD(prices, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	snap.IVRank = IVRank(currentIV, ivHistory)
	return snap
}
