package trading

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/updown/internal/config"
	"github.com/web3guy0/updown/internal/events"
	"github.com/web3guy0/updown/internal/monitor"
	"github.com/web3guy0/updown/internal/polymarket"
)

type captureSink struct {
	events    []events.Event
	summaries []events.Summary
}

func (c *captureSink) Emit(e events.Event)          { c.events = append(c.events, e) }
func (c *captureSink) EmitSummary(s events.Summary) { c.summaries = append(c.summaries, s) }

func (c *captureSink) last() events.Event {
	return c.events[len(c.events)-1]
}

func newTestTrader(tb testing.TB, mutate func(*config.Config)) (*Trader, *captureSink) {
	tb.Helper()

	cfg := &config.Config{
		Simulate:             true,
		IndexMode:            "rsi",
		TrendThreshold:       90,
		ProfitThreshold:      decimal.NewFromFloat(0.05),
		SLThreshold:          decimal.NewFromFloat(0.05),
		Lookback:             3,
		PositionSizeShares:   decimal.NewFromInt(10),
		MACDFastPeriod:       12,
		MACDSlowPeriod:       26,
		MACDSignalPeriod:     9,
		MomentumThresholdPct: 2.0,
		LateEntryPriceCap:    decimal.NewFromFloat(0.93),
		LateEntryMinElapsed:  13 * time.Minute,
		CheckInterval:        time.Second,
		InitialFund:          decimal.NewFromInt(1000),
	}
	if mutate != nil {
		mutate(cfg)
	}

	mon := monitor.New(polymarket.NewClient("http://localhost", "http://localhost"), nil, nil)
	sink := &captureSink{}

	tr, err := New(cfg, mon, ImmediateFill{}, nil, sink)
	if err != nil {
		tb.Fatalf("New: %v", err)
	}
	return tr, sink
}

func point(up, down float64) *monitor.PricePoint {
	return &monitor.PricePoint{
		Asset:     "BTC",
		UpAsk:     decimal.NewFromFloat(up),
		DownAsk:   decimal.NewFromFloat(down),
		HasUp:     true,
		HasDown:   true,
		Timestamp: time.Now(),
	}
}

func midWindow() *monitor.Snapshot {
	return &monitor.Snapshot{
		Elapsed:       13*time.Minute + 30*time.Second,
		TimeRemaining: 90 * time.Second,
	}
}

func feed(tr *Trader, a *assetState, snap *monitor.Snapshot, ups, downs []float64) {
	now := time.Now()
	for i := range ups {
		tr.processPoint(a, snap, point(ups[i], downs[i]), now)
		now = now.Add(5 * time.Second)
	}
}

func TestTrader_RSIEntryOpensUpCycle(t *testing.T) {
	tr, sink := newTestTrader(t, nil)
	a := tr.states["BTC"]

	// Three rising changes fill the lookback-3 RSI seed at RSI 100
	feed(tr, a, midWindow(), []float64{0.50, 0.55, 0.60, 0.70}, []float64{0.30, 0.30, 0.30, 0.28})

	if a.cycle == nil {
		t.Fatal("cycle = nil, want an open Up cycle")
	}
	if a.pending != nil {
		t.Error("pending non-nil alongside an open cycle")
	}
	if a.cycle.Side != SideUp {
		t.Errorf("side = %s, want UP", a.cycle.Side)
	}
	if want := decimal.NewFromFloat(0.70); !a.cycle.EntryPrice.Equal(want) {
		t.Errorf("entry = %s, want %s", a.cycle.EntryPrice, want)
	}
	if want := decimal.NewFromFloat(0.75); !a.cycle.TPPrice.Equal(want) {
		t.Errorf("tp = %s, want %s", a.cycle.TPPrice, want)
	}
	if want := decimal.NewFromFloat(0.65); !a.cycle.SLPrice.Equal(want) {
		t.Errorf("sl = %s, want %s", a.cycle.SLPrice, want)
	}
	if sink.last().Kind != events.KindEntry {
		t.Errorf("last event = %s, want ENTRY", sink.last().Kind)
	}
}

func TestTrader_DownSideEntryFromRebuiltWindow(t *testing.T) {
	tr, _ := newTestTrader(t, nil)
	a := tr.states["BTC"]

	// Up flat, Down rising: the per-tick rebuild must still see the
	// full down window
	feed(tr, a, midWindow(), []float64{0.50, 0.50, 0.50, 0.50}, []float64{0.30, 0.35, 0.40, 0.45})

	if a.cycle == nil {
		t.Fatal("cycle = nil, want an open Down cycle")
	}
	if a.cycle.Side != SideDown {
		t.Errorf("side = %s, want DOWN", a.cycle.Side)
	}
	if want := decimal.NewFromFloat(0.45); !a.cycle.EntryPrice.Equal(want) {
		t.Errorf("entry = %s, want %s", a.cycle.EntryPrice, want)
	}
}

func TestTrader_TakeProfit(t *testing.T) {
	tr, sink := newTestTrader(t, nil)
	a := tr.states["BTC"]

	a.cycle = &ActiveCycle{
		Side:       SideUp,
		EntryPrice: decimal.NewFromFloat(0.40),
		Size:       decimal.NewFromInt(10),
		TPPrice:    decimal.NewFromFloat(0.45),
		SLPrice:    decimal.NewFromFloat(0.35),
		OpenedAt:   time.Now().Add(-time.Minute), // past the sim hold delay
	}

	tr.processPoint(a, midWindow(), point(0.46, 0.50), time.Now())

	if a.cycle != nil {
		t.Fatal("cycle still open, want closed at take profit")
	}
	if a.stats.Wins != 1 {
		t.Errorf("wins = %d, want 1", a.stats.Wins)
	}
	e := sink.last()
	if e.Kind != events.KindTakeProfit {
		t.Fatalf("event = %s, want TAKE_PROFIT", e.Kind)
	}
	// pnl = (0.45 - 0.40) * 10
	if want := decimal.NewFromFloat(0.5); !e.PnL.Equal(want) {
		t.Errorf("pnl = %s, want %s", e.PnL, want)
	}
	if want := decimal.NewFromFloat(0.45); !e.ExitPrice.Equal(want) {
		t.Errorf("exit = %s, want %s", e.ExitPrice, want)
	}
}

func TestTrader_SimHoldDelaysTakeProfit(t *testing.T) {
	tr, _ := newTestTrader(t, nil)
	a := tr.states["BTC"]

	a.cycle = &ActiveCycle{
		Side:       SideUp,
		EntryPrice: decimal.NewFromFloat(0.40),
		Size:       decimal.NewFromInt(10),
		TPPrice:    decimal.NewFromFloat(0.45),
		SLPrice:    decimal.NewFromFloat(0.35),
		OpenedAt:   time.Now(), // just opened
	}

	tr.processPoint(a, midWindow(), point(0.46, 0.50), time.Now())

	if a.cycle == nil {
		t.Error("cycle closed instantly; simulation must hold before taking profit")
	}
}

func TestTrader_StopLossOnOppositeAsk(t *testing.T) {
	tr, sink := newTestTrader(t, nil)
	a := tr.states["BTC"]

	// Entry 0.40 with a 0.05 stop distance puts the stop at 0.35, so
	// the trigger level on the opposite ask is 1 - 0.35 = 0.65
	a.cycle = &ActiveCycle{
		Side:       SideUp,
		EntryPrice: decimal.NewFromFloat(0.40),
		Size:       decimal.NewFromInt(10),
		TPPrice:    decimal.NewFromFloat(0.45),
		SLPrice:    decimal.NewFromFloat(0.35),
		OpenedAt:   time.Now().Add(-time.Minute),
	}

	// Down ask 0.66 >= 0.65: the Up side fell through the stop
	tr.processPoint(a, midWindow(), point(0.20, 0.66), time.Now())

	if a.cycle != nil {
		t.Fatal("cycle still open, want stopped out")
	}
	if a.stats.Losses != 1 {
		t.Errorf("losses = %d, want 1", a.stats.Losses)
	}
	e := sink.last()
	if e.Kind != events.KindStopLoss {
		t.Fatalf("event = %s, want STOP_LOSS", e.Kind)
	}
	// pnl = (0.35 - 0.40) * 10
	if want := decimal.NewFromFloat(-0.5); !e.PnL.Equal(want) {
		t.Errorf("pnl = %s, want %s", e.PnL, want)
	}
	if want := decimal.NewFromFloat(0.35); !e.ExitPrice.Equal(want) {
		t.Errorf("exit = %s, want %s", e.ExitPrice, want)
	}
}

func TestTrader_StopLossTriggerTracksEntryLevel(t *testing.T) {
	tr, _ := newTestTrader(t, nil)
	a := tr.states["BTC"]

	a.cycle = &ActiveCycle{
		Side:       SideUp,
		EntryPrice: decimal.NewFromFloat(0.40),
		Size:       decimal.NewFromInt(10),
		TPPrice:    decimal.NewFromFloat(0.45),
		SLPrice:    decimal.NewFromFloat(0.35),
		OpenedAt:   time.Now().Add(-time.Minute),
	}

	// Just below the 0.65 trigger: the position must survive
	tr.processPoint(a, midWindow(), point(0.36, 0.64), time.Now())
	if a.cycle == nil {
		t.Fatal("stopped out below the trigger level")
	}

	// At the trigger it fires
	tr.processPoint(a, midWindow(), point(0.34, 0.65), time.Now())
	if a.cycle != nil {
		t.Error("cycle still open at the trigger level")
	}
	if a.stats.Losses != 1 {
		t.Errorf("losses = %d, want 1", a.stats.Losses)
	}
}

func TestTrader_MACDFilterSuppressesStopLoss(t *testing.T) {
	tr, _ := newTestTrader(t, func(cfg *config.Config) {
		cfg.UseMACDSLFilter = true
		cfg.MACDFastPeriod = 2
		cfg.MACDSlowPeriod = 3
	})
	a := tr.states["BTC"]

	a.cycle = &ActiveCycle{
		Side:       SideUp,
		EntryPrice: decimal.NewFromFloat(0.40),
		Size:       decimal.NewFromInt(10),
		TPPrice:    decimal.NewFromFloat(0.80),
		SLPrice:    decimal.NewFromFloat(0.35),
		OpenedAt:   time.Now().Add(-time.Minute),
	}

	// Warm the MACD on rising prices while the stop condition is off,
	// then hit the stop condition with a positive MACD
	feed(tr, a, midWindow(),
		[]float64{0.50, 0.55, 0.60, 0.70},
		[]float64{0.30, 0.30, 0.30, 0.66})

	if a.cycle == nil {
		t.Error("cycle closed; a rising MACD on the held side must suppress the stop")
	}
}

func TestTrader_SettlementWin(t *testing.T) {
	tr, sink := newTestTrader(t, nil)
	a := tr.states["BTC"]

	a.cycle = &ActiveCycle{
		Side:       SideUp,
		EntryPrice: decimal.NewFromFloat(0.40),
		Size:       decimal.NewFromInt(10),
	}

	tr.settleCycle(a, point(0.995, 0.01), time.Now())

	e := sink.last()
	if e.Kind != events.KindSettleWin {
		t.Fatalf("event = %s, want SETTLE_WIN", e.Kind)
	}
	// pnl = (1 - 0.40) * 10
	if want := decimal.NewFromInt(6); !e.PnL.Equal(want) {
		t.Errorf("pnl = %s, want %s", e.PnL, want)
	}
	if a.stats.Wins != 1 {
		t.Errorf("wins = %d, want 1", a.stats.Wins)
	}
}

func TestTrader_SettlementLossBelowWinAsk(t *testing.T) {
	tr, sink := newTestTrader(t, nil)
	a := tr.states["BTC"]

	a.cycle = &ActiveCycle{
		Side:       SideUp,
		EntryPrice: decimal.NewFromFloat(0.40),
		Size:       decimal.NewFromInt(10),
	}

	tr.settleCycle(a, point(0.97, 0.03), time.Now())

	e := sink.last()
	if e.Kind != events.KindSettleLoss {
		t.Fatalf("event = %s, want SETTLE_LOSS", e.Kind)
	}
	// Position expires worthless: pnl = -0.40 * 10
	if want := decimal.NewFromInt(-4); !e.PnL.Equal(want) {
		t.Errorf("pnl = %s, want %s", e.PnL, want)
	}
}

func TestTrader_RolloverResetsState(t *testing.T) {
	tr, sink := newTestTrader(t, nil)
	a := tr.states["BTC"]

	a.cycle = &ActiveCycle{
		Side:       SideUp,
		EntryPrice: decimal.NewFromFloat(0.40),
		Size:       decimal.NewFromInt(10),
	}
	a.stats.FundUsed = decimal.NewFromInt(4)
	a.upPrices = []float64{0.4, 0.5}
	tr.fundUsed = decimal.NewFromInt(4)

	tr.rollover(time.Now(), 1767708000)

	fresh := tr.states["BTC"]
	if fresh.cycle != nil || fresh.pending != nil {
		t.Error("state not cleared at rollover")
	}
	if len(fresh.upPrices) != 0 {
		t.Error("price window not cleared at rollover")
	}
	if !tr.fundUsed.IsZero() {
		t.Errorf("fundUsed = %s, want 0", tr.fundUsed)
	}

	// No terminal quote available: the held position settles as a loss
	var sawSettle bool
	for _, e := range sink.events {
		if e.Kind == events.KindSettleLoss {
			sawSettle = true
		}
	}
	if !sawSettle {
		t.Error("no settlement event emitted for the open cycle")
	}
	if len(sink.summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(sink.summaries))
	}
	if sink.summaries[0].Losses != 1 {
		t.Errorf("summary losses = %d, want 1", sink.summaries[0].Losses)
	}
}

func TestTrader_RolloverSummaryCoversQuietWindow(t *testing.T) {
	tr, sink := newTestTrader(t, nil)

	// No trades this window; the summary still goes out
	tr.rollover(time.Now(), 1767708000)

	if len(sink.summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(sink.summaries))
	}
	s := sink.summaries[0]
	if s.Wins != 0 || s.Losses != 0 {
		t.Errorf("wins/losses = %d/%d, want 0/0", s.Wins, s.Losses)
	}
	if !s.PnL.IsZero() || !s.FundUsed.IsZero() {
		t.Errorf("pnl/fund = %s/%s, want zero", s.PnL, s.FundUsed)
	}
	if s.Asset != "BTC" {
		t.Errorf("asset = %q, want BTC", s.Asset)
	}
}

func TestTrader_RSIUnavailableUntilSeedWindow(t *testing.T) {
	tr, _ := newTestTrader(t, nil)
	a := tr.states["BTC"]

	// Lookback 3 needs 4 prices before the RSI reports anything
	feed(tr, a, midWindow(), []float64{0.50, 0.55, 0.60}, []float64{0.30, 0.30, 0.30})

	if a.prevUp.hasIndex {
		t.Error("RSI reported a value before the seed window filled")
	}
	if a.cycle != nil || a.pending != nil {
		t.Error("entered before the seed window filled")
	}

	tr.processPoint(a, midWindow(), point(0.70, 0.28), time.Now())
	if a.cycle == nil {
		t.Error("no entry once the seed window filled at RSI 100")
	}
}

func TestTrader_PendingAndCycleNeverCoexist(t *testing.T) {
	tr, _ := newTestTrader(t, nil)
	a := tr.states["BTC"]

	rng := rand.New(rand.NewSource(7))
	now := time.Now()
	periodTs := int64(1767707100)

	for i := 0; i < 2000; i++ {
		if rng.Intn(40) == 0 {
			periodTs += 900
			tr.rollover(now, periodTs)
			a = tr.states["BTC"]
		}

		up := 0.01 + rng.Float64()*0.98
		down := 0.01 + rng.Float64()*0.98
		tr.processPoint(a, midWindow(), point(up, down), now)

		if a.pending != nil && a.cycle != nil {
			t.Fatalf("tick %d: pending entry and active cycle at once", i)
		}
		now = now.Add(5 * time.Second)
	}
}

func TestTrader_LateEntryGate(t *testing.T) {
	tr, _ := newTestTrader(t, nil)
	a := tr.states["BTC"]

	early := &monitor.Snapshot{
		Elapsed:       2 * time.Minute,
		TimeRemaining: 13 * time.Minute,
	}

	// RSI fires but the price is already near-certain this early
	feed(tr, a, early, []float64{0.80, 0.85, 0.90, 0.94}, []float64{0.10, 0.10, 0.10, 0.05})

	if a.cycle != nil || a.pending != nil {
		t.Error("entered at price above the late-entry cap early in the window")
	}
}

func TestTrader_LateEntryAllowedNearClose(t *testing.T) {
	tr, _ := newTestTrader(t, nil)
	a := tr.states["BTC"]

	// Same prices, but most of the window has elapsed
	feed(tr, a, midWindow(), []float64{0.80, 0.85, 0.90, 0.94}, []float64{0.10, 0.10, 0.10, 0.05})

	if a.cycle == nil {
		t.Error("no entry; the price cap only applies early in the window")
	}
}

func TestTrader_TradingStartGate(t *testing.T) {
	tr, _ := newTestTrader(t, func(cfg *config.Config) {
		cfg.TradingStartWhenRemainingMinutes = 5
	})
	a := tr.states["BTC"]

	tooEarly := &monitor.Snapshot{
		Elapsed:       4 * time.Minute,
		TimeRemaining: 11 * time.Minute,
	}
	feed(tr, a, tooEarly, []float64{0.50, 0.55, 0.60, 0.70}, []float64{0.30, 0.30, 0.30, 0.28})

	if a.cycle != nil || a.pending != nil {
		t.Error("entered before the trading-start gate opened")
	}

	open := &monitor.Snapshot{
		Elapsed:       11 * time.Minute,
		TimeRemaining: 4 * time.Minute,
	}
	tr.processPoint(a, open, point(0.75, 0.25), time.Now())

	if a.cycle == nil {
		t.Error("no entry after the gate opened")
	}
}

func TestTrader_FundGate(t *testing.T) {
	tr, _ := newTestTrader(t, func(cfg *config.Config) {
		cfg.InitialFund = decimal.NewFromInt(5) // entry would cost 7
	})
	a := tr.states["BTC"]

	feed(tr, a, midWindow(), []float64{0.50, 0.55, 0.60, 0.70}, []float64{0.30, 0.30, 0.30, 0.28})

	if a.cycle != nil || a.pending != nil {
		t.Error("entered beyond the configured fund")
	}
}

func TestTrader_FundUsedAccumulates(t *testing.T) {
	tr, _ := newTestTrader(t, nil)
	a := tr.states["BTC"]

	feed(tr, a, midWindow(), []float64{0.50, 0.55, 0.60, 0.70}, []float64{0.30, 0.30, 0.30, 0.28})

	if a.cycle == nil {
		t.Fatal("no cycle opened")
	}
	// 0.70 * 10 shares
	if want := decimal.NewFromInt(7); !tr.fundUsed.Equal(want) {
		t.Errorf("fundUsed = %s, want %s", tr.fundUsed, want)
	}
	if !a.stats.FundUsed.Equal(decimal.NewFromInt(7)) {
		t.Errorf("stats fund used = %s, want 7", a.stats.FundUsed)
	}
}
