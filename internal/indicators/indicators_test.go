package indicators

import (
	"math"
	"testing"
)

func TestRollingRSI_NotReadyBeforeWarmup(t *testing.T) {
	rsi := NewRollingRSI(3)
	rsi.AddPrice(0.50)
	rsi.AddPrice(0.51)
	rsi.AddPrice(0.52)
	// Only 2 changes observed, need 3
	if _, ok := rsi.Value(); ok {
		t.Errorf("RSI reported ready with %d changes, want not ready", 2)
	}

	rsi.AddPrice(0.53)
	if _, ok := rsi.Value(); !ok {
		t.Error("RSI not ready after warm-up window filled")
	}
}

func TestRollingRSI_FlatSequenceIsNeutral(t *testing.T) {
	rsi := NewRollingRSI(5)
	for i := 0; i < 10; i++ {
		rsi.AddPrice(0.50)
	}
	v, ok := rsi.Value()
	if !ok {
		t.Fatal("RSI not ready")
	}
	if v != 50.0 {
		t.Errorf("flat sequence RSI = %f, want 50", v)
	}
}

func TestRollingRSI_MonotonicUpIs100(t *testing.T) {
	rsi := NewRollingRSI(4)
	for i := 0; i < 8; i++ {
		rsi.AddPrice(0.40 + float64(i)*0.02)
	}
	v, ok := rsi.Value()
	if !ok {
		t.Fatal("RSI not ready")
	}
	if v != 100.0 {
		t.Errorf("monotonic rise RSI = %f, want 100", v)
	}
}

func TestRollingRSI_MonotonicDownIs0(t *testing.T) {
	rsi := NewRollingRSI(4)
	for i := 0; i < 8; i++ {
		rsi.AddPrice(0.80 - float64(i)*0.02)
	}
	v, ok := rsi.Value()
	if !ok {
		t.Fatal("RSI not ready")
	}
	if v != 0.0 {
		t.Errorf("monotonic fall RSI = %f, want 0", v)
	}
}

func TestRollingRSI_Bounds(t *testing.T) {
	prices := []float64{0.50, 0.55, 0.48, 0.52, 0.60, 0.41, 0.45, 0.70, 0.30, 0.35, 0.36}
	rsi := NewRollingRSI(3)
	for _, p := range prices {
		rsi.AddPrice(p)
		if v, ok := rsi.Value(); ok {
			if v < 0 || v > 100 {
				t.Errorf("RSI out of [0,100] after price %f: %f", p, v)
			}
		}
	}
}

func TestRSI_BatchMatchesRolling(t *testing.T) {
	prices := []float64{0.50, 0.52, 0.49, 0.55, 0.53, 0.58, 0.51, 0.60, 0.57, 0.62}
	period := 4

	rolling := NewRollingRSI(period)
	for _, p := range prices {
		rolling.AddPrice(p)
	}
	rv, ok := rolling.Value()
	if !ok {
		t.Fatal("rolling RSI not ready")
	}

	bv, ok := RSI(prices, period)
	if !ok {
		t.Fatal("batch RSI not ready")
	}

	if math.Abs(rv-bv) > 1e-9 {
		t.Errorf("batch RSI %f != rolling RSI %f", bv, rv)
	}
}

func TestRSI_BatchInsufficientData(t *testing.T) {
	if _, ok := RSI([]float64{0.5, 0.6}, 3); ok {
		t.Error("batch RSI reported ready with 2 prices for period 3")
	}
}

func TestRollingMACD_SeedsWithSMA(t *testing.T) {
	macd := NewRollingMACD(2, 4)
	prices := []float64{0.40, 0.44, 0.48, 0.52}
	for i, p := range prices {
		macd.AddPrice(p)
		if i < 3 {
			if _, ok := macd.MACD(); ok {
				t.Fatalf("MACD ready after %d prices, want %d for seed", i+1, 4)
			}
		}
	}
	v, ok := macd.MACD()
	if !ok {
		t.Fatal("MACD not ready after seed window")
	}
	// Both EMAs start from the same SMA, so the first value is exactly 0
	if v != 0 {
		t.Errorf("seeded MACD = %f, want 0", v)
	}
}

func TestRollingMACD_IncrementalMatchesReplay(t *testing.T) {
	prices := []float64{
		0.50, 0.51, 0.49, 0.53, 0.52, 0.55, 0.54, 0.58,
		0.57, 0.56, 0.60, 0.59, 0.62, 0.61, 0.63, 0.65,
	}

	incremental := NewRollingMACD(3, 6)
	var lastIncremental float64
	for _, p := range prices {
		incremental.AddPrice(p)
		if v, ok := incremental.MACD(); ok {
			lastIncremental = v
		}
	}

	replay := NewRollingMACD(3, 6)
	for _, p := range prices {
		replay.AddPrice(p)
	}
	replayed, ok := replay.MACD()
	if !ok {
		t.Fatal("replayed MACD not ready")
	}

	if math.Abs(lastIncremental-replayed) > 1e-12 {
		t.Errorf("incremental MACD %f != replayed MACD %f", lastIncremental, replayed)
	}
}

func TestRollingMACD_SignalLine(t *testing.T) {
	macd := NewRollingMACDWithSignal(2, 3, 2)
	prices := []float64{0.50, 0.52, 0.54, 0.56, 0.58, 0.60}
	for _, p := range prices {
		macd.AddPrice(p)
	}

	if !macd.SignalReady() {
		t.Fatal("signal line not seeded")
	}
	v, ok := macd.MACD()
	if !ok {
		t.Fatal("MACD not ready")
	}
	s, ok := macd.SignalLine()
	if !ok {
		t.Fatal("signal line not available")
	}
	h, ok := macd.Histogram()
	if !ok {
		t.Fatal("histogram not available")
	}
	if math.Abs(h-(v-s)) > 1e-12 {
		t.Errorf("histogram %f != macd-signal %f", h, v-s)
	}
}

func TestRollingMACD_NoSignalLineWithoutPeriod(t *testing.T) {
	macd := NewRollingMACD(2, 3)
	for _, p := range []float64{0.5, 0.6, 0.7, 0.8, 0.9} {
		macd.AddPrice(p)
	}
	if _, ok := macd.SignalLine(); ok {
		t.Error("signal line available without a signal period configured")
	}
}

func TestRollingMomentum(t *testing.T) {
	mom := NewRollingMomentum(3)
	mom.AddPrice(0.50)
	mom.AddPrice(0.52)
	mom.AddPrice(0.54)
	if _, ok := mom.Value(); ok {
		t.Error("momentum ready before window filled")
	}

	mom.AddPrice(0.55)
	v, ok := mom.Value()
	if !ok {
		t.Fatal("momentum not ready with full window")
	}
	want := ((0.55 - 0.50) / 0.50) * 100.0
	if math.Abs(v-want) > 1e-9 {
		t.Errorf("momentum = %f, want %f", v, want)
	}

	// Window slides: oldest price drops off
	mom.AddPrice(0.58)
	v, _ = mom.Value()
	want = ((0.58 - 0.52) / 0.52) * 100.0
	if math.Abs(v-want) > 1e-9 {
		t.Errorf("momentum after slide = %f, want %f", v, want)
	}
}

func TestRollingMomentum_ZeroPastUndefined(t *testing.T) {
	mom := NewRollingMomentum(2)
	mom.AddPrice(0.0)
	mom.AddPrice(0.10)
	mom.AddPrice(0.20)
	if _, ok := mom.Value(); ok {
		t.Error("momentum defined with zero past price")
	}
}
