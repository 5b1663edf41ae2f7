package config

import (
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SYMBOLS", "AAPL, MSFT ,NVDA")
}

func TestLoad_DefaultsAndSymbolList(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []string{"AAPL", "MSFT", "NVDA"}
	if len(cfg.Symbols) != len(want) {
		t.Fatalf("symbols = %v, want %v", cfg.Symbols, want)
	}
	for i, s := range want {
		if cfg.Symbols[i] != s {
			t.Errorf("symbols[%d] = %q, want %q", i, cfg.Symbols[i], s)
		}
	}

	if cfg.RSIPeriod != 14 || cfg.MACDFast != 12 || cfg.MACDSlow != 26 || cfg.MACDSignal != 9 {
		t.Errorf("indicator defaults = %d/%d/%d/%d, want 14/12/26/9",
			cfg.RSIPeriod, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	}
	if cfg.DedupWindow != 15*time.Minute {
		t.Errorf("dedup window = %v, want 15m", cfg.DedupWindow)
	}
	if cfg.RiskPerTrade != 0.02 {
		t.Errorf("risk per trade = %v, want 0.02", cfg.RiskPerTrade)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("RISK_PER_TRADE", "0.05")
	t.Setenv("DEDUP_WINDOW", "30m")
	t.Setenv("MACD_FAST", "5")
	t.Setenv("MACD_SLOW", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RiskPerTrade != 0.05 {
		t.Errorf("risk per trade = %v, want 0.05", cfg.RiskPerTrade)
	}
	if cfg.DedupWindow != 30*time.Minute {
		t.Errorf("dedup window = %v, want 30m", cfg.DedupWindow)
	}
	if cfg.MACDFast != 5 || cfg.MACDSlow != 10 {
		t.Errorf("macd periods = %d/%d, want 5/10", cfg.MACDFast, cfg.MACDSlow)
	}
}

func TestLoad_MalformedValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"risk not a number", map[string]string{"RISK_PER_TRADE": "abc"}},
		{"rsi period spelled out", map[string]string{"RSI_PERIOD": "fourteen"}},
		{"dedup window with spaces", map[string]string{"DEDUP_WINDOW": "15 minutes"}},
		{"portfolio not a number", map[string]string{"PORTFOLIO_VALUE": "100k"}},
		{"shard count fractional", map[string]string{"PIPELINE_SHARDS": "4.5"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load silently accepted a malformed value")
			}
		})
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"no symbols", map[string]string{"SYMBOLS": ""}},
		{"risk too high", map[string]string{"RISK_PER_TRADE": "1.5"}},
		{"risk zero", map[string]string{"RISK_PER_TRADE": "0"}},
		{"fast not below slow", map[string]string{"MACD_FAST": "26", "MACD_SLOW": "26"}},
		{"lookback too small", map[string]string{"MAX_LOOKBACK": "10"}},
		{"negative portfolio", map[string]string{"PORTFOLIO_VALUE": "-1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load accepted invalid configuration")
			}
		})
	}
}
