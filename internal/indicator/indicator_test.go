package indicator

import (
	"math"
	"testing"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (diff=%.6f)", label, got, want, math.Abs(got-want))
	}
}

func TestRSI_NotReadyBelowPeriodPlusOne(t *testing.T) {
	prices := make([]float64, 0, 14)
	for i := 0; i < 14; i++ {
		prices = append(prices, float64(100+i))
		if _, ready := RSI(prices, 14); ready {
			t.Fatalf("RSI ready with only %d samples, need 15", len(prices))
		}
	}

	prices = append(prices, 114)
	if _, ready := RSI(prices, 14); !ready {
		t.Fatal("RSI should be ready with 15 samples")
	}
}

func TestRSI_ConstantSeriesNotReady(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 50
	}

	// No gains and no losses: not-ready by policy, never a neutral 50.
	if v, ready := RSI(prices, 14); ready {
		t.Fatalf("flat series should be not-ready, got RSI=%.2f", v)
	}
}

func TestRSI_AllGainsIs100(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	v, ready := RSI(prices, 14)
	if !ready {
		t.Fatal("expected ready")
	}
	assertClose(t, "RSI all gains", v, 100, 1e-9)
}

func TestRSI_HandCalculated(t *testing.T) {
	// Trailing 3 deltas of {10, 11, 13, 12}: +1, +2, -1.
	// avgGain = 3/3 = 1, avgLoss = 1/3, rs = 3, RSI = 100 - 100/4 = 75.
	v, ready := RSI([]float64{10, 11, 13, 12}, 3)
	if !ready {
		t.Fatal("expected ready with 4 samples, period 3")
	}
	assertClose(t, "RSI(3)", v, 75, 1e-9)
}

func TestRSI_UsesTrailingWindowOnly(t *testing.T) {
	// The big early gain must not leak into the trailing window.
	a, _ := RSI([]float64{1, 100, 101, 102, 101}, 3)
	b, _ := RSI([]float64{99, 100, 101, 102, 101}, 3)
	assertClose(t, "trailing RSI", a, b, 1e-9)
}

func TestMACD_HandCalculated(t *testing.T) {
	// fast=2, slow=3, signal=2 over {1,2,3}:
	// fastEMA = [1, 5/3, 23/9], slowEMA = [1, 1.5, 2.25]
	// macd    = [0, 1/6, 11/36]
	// signal  = [0, 1/9, 13/54], histogram = 7/108
	line, sig, hist, ready := MACD([]float64{1, 2, 3}, 2, 3, 2)
	if !ready {
		t.Fatal("expected ready with len == slow")
	}
	assertClose(t, "macd line", line, 11.0/36.0, 1e-9)
	assertClose(t, "signal line", sig, 13.0/54.0, 1e-9)
	assertClose(t, "histogram", hist, 7.0/108.0, 1e-9)
}

func TestMACD_SeededByFirstValue(t *testing.T) {
	// A single sample seeds both EMAs at the sample itself: line must be 0.
	line, sig, hist, ready := MACD([]float64{42}, 12, 26, 9)
	if ready {
		t.Fatal("single sample should not be ready")
	}
	assertClose(t, "seed line", line, 0, 1e-12)
	assertClose(t, "seed signal", sig, 0, 1e-12)
	assertClose(t, "seed histogram", hist, 0, 1e-12)
}

func TestMACD_ReadyAtSlowPeriod(t *testing.T) {
	prices := make([]float64, 0, 26)
	for i := 0; i < 25; i++ {
		prices = append(prices, float64(100+i))
		if _, _, _, ready := MACD(prices, 12, 26, 9); ready {
			t.Fatalf("MACD ready with %d samples, need 26", len(prices))
		}
	}
	prices = append(prices, 125)
	if _, _, _, ready := MACD(prices, 12, 26, 9); !ready {
		t.Fatal("MACD should be ready at 26 samples")
	}
}

func TestMACD_RisingSeriesPositiveLine(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = float64(100 + i)
	}
	line, _, _, ready := MACD(prices, 12, 26, 9)
	if !ready || line <= 0 {
		t.Errorf("rising series: expected positive MACD line, got %.4f (ready=%v)", line, ready)
	}
}

func TestIVRank_HandCalculated(t *testing.T) {
	history := []float64{0.2, 0.25, 0.3, 0.28, 0.35, 0.4}
	// (0.3 - 0.2) / (0.4 - 0.2) * 100 = 50
	assertClose(t, "IV rank", IVRank(0.3, history), 50, 1e-9)
}

func TestIVRank_FlatHistoryIsZero(t *testing.T) {
	history := []float64{0.3, 0.3, 0.3}
	if got := IVRank(0.5, history); got != 0 {
		t.Errorf("flat history: expected exactly 0, got %v", got)
	}
}

func TestIVRank_EmptyHistoryIsZero(t *testing.T) {
	if got := IVRank(0.5, nil); got != 0 {
		t.Errorf("empty history: expected 0, got %v", got)
	}
}

func TestIVRank_Clamped(t *testing.T) {
	history := []float64{0.2, 0.4}
	if got := IVRank(0.5, history); got != 100 {
		t.Errorf("above range: expected clamp to 100, got %v", got)
	}
	if got := IVRank(0.1, history); got != 0 {
		t.Errorf("below range: expected clamp to 0, got %v", got)
	}
}

func TestCompute_OneSnapshot(t *testing.T) {
	cfg := DefaultConfig()
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = float64(100 - i) // falling series
	}

	snap := Compute(cfg, prices, 0.3, []float64{0.2, 0.25, 0.3, 0.28, 0.35, 0.4})
	if !snap.RSIReady {
		t.Error("RSI should be ready with 30 samples")
	}
	if snap.RSI >= 30 {
		t.Errorf("straight falling series should be deeply oversold, got RSI=%.2f", snap.RSI)
	}
	if !snap.MACDReady {
		t.Error("MACD should be ready with 30 samples")
	}
	if snap.MACDLine >= 0 {
		t.Errorf("falling series: expected negative MACD line, got %.4f", snap.MACDLine)
	}
	assertClose(t, "Compute IV rank", snap.IVRank, 50, 1e-9)
}
