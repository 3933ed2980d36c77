package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDefaultsFor(t *testing.T) {
	rsi := defaultsFor("rsi")
	if rsi.trendThreshold != 90.0 {
		t.Errorf("rsi threshold = %v, want 90", rsi.trendThreshold)
	}
	if !rsi.profitThreshold.Equal(decimal.NewFromFloat(0.02)) {
		t.Errorf("rsi profit = %s, want 0.02", rsi.profitThreshold)
	}
	if rsi.lookback != 10 || rsi.useMACDSLFilter {
		t.Errorf("rsi lookback/filter = %d/%v, want 10/false", rsi.lookback, rsi.useMACDSLFilter)
	}

	macd := defaultsFor("macd")
	if macd.trendThreshold != 0.0 || macd.lookback != 26 || !macd.useMACDSLFilter {
		t.Errorf("macd defaults = %+v", macd)
	}

	sig := defaultsFor("macd_signal")
	if sig.useMACDSLFilter {
		t.Error("macd_signal enables the SL filter, want disabled")
	}
}

func TestApplyFile_ModeSwitchReappliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"trending_index": {"strategy": "macd", "threshold": 0.01}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ApplyFile(path); err != nil {
		t.Fatal(err)
	}

	if cfg.IndexMode != "macd" {
		t.Errorf("mode = %q, want macd", cfg.IndexMode)
	}
	// The macd mode defaults land first, then the file's threshold
	if cfg.TrendThreshold != 0.01 {
		t.Errorf("threshold = %v, want file override 0.01", cfg.TrendThreshold)
	}
	if cfg.Lookback != 26 {
		t.Errorf("lookback = %d, want macd default 26", cfg.Lookback)
	}
	if !cfg.ProfitThreshold.Equal(decimal.NewFromFloat(0.05)) {
		t.Errorf("profit = %s, want macd default 0.05", cfg.ProfitThreshold)
	}
	if !cfg.UseMACDSLFilter {
		t.Error("SL filter off, want macd default on")
	}
}

func TestApplyFile_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ApplyFile(filepath.Join(t.TempDir(), "nope.json")); err != nil {
		t.Errorf("ApplyFile on a missing file: %v", err)
	}
}

func TestApplyFile_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"simulate": false,
		"position_size_shares": 25,
		"check_interval_ms": 2000,
		"xrp_enabled": false,
		"stop_loss_threshold": 0.10
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ApplyFile(path); err != nil {
		t.Fatal(err)
	}

	if cfg.Simulate {
		t.Error("simulate = true, want file override false")
	}
	if !cfg.PositionSizeShares.Equal(decimal.NewFromInt(25)) {
		t.Errorf("shares = %s, want 25", cfg.PositionSizeShares)
	}
	if cfg.CheckInterval != 2*time.Second {
		t.Errorf("interval = %s, want 2s", cfg.CheckInterval)
	}
	if cfg.EnableXRP {
		t.Error("xrp enabled, want disabled by file")
	}
	if !cfg.SLThreshold.Equal(decimal.NewFromFloat(0.10)) {
		t.Errorf("sl = %s, want 0.10", cfg.SLThreshold)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default simulation config invalid: %v", err)
	}

	cfg.Simulate = false
	if err := cfg.Validate(); err == nil {
		t.Error("live mode with no credentials passed validation")
	}

	cfg.Simulate = true
	cfg.MACDFastPeriod = 30
	if err := cfg.Validate(); err == nil {
		t.Error("fast period above slow period passed validation")
	}
}

func TestAssets(t *testing.T) {
	cfg := &Config{EnableETH: true}
	got := cfg.Assets()
	if len(got) != 2 || got[0] != "BTC" || got[1] != "ETH" {
		t.Errorf("assets = %v, want [BTC ETH]", got)
	}
}
