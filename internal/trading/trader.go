package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/updown/internal/config"
	"github.com/web3guy0/updown/internal/events"
	"github.com/web3guy0/updown/internal/indicators"
	"github.com/web3guy0/updown/internal/monitor"
	"github.com/web3guy0/updown/internal/strategy"
)

// priceHistoryCap bounds the per-side price window kept per asset
const priceHistoryCap = 100

// settlementWinAsk is the terminal ask that counts a held side as the
// winning outcome at window close
var settlementWinAsk = decimal.NewFromFloat(0.99)

var one = decimal.NewFromInt(1)

// sideCalcs bundles one side's incremental calculators. All three run
// regardless of mode: the MACD value also feeds the stop-loss filter.
type sideCalcs struct {
	rsi      *indicators.RollingRSI
	macd     *indicators.RollingMACD
	momentum *indicators.RollingMomentum
}

func (c sideCalcs) add(price float64) {
	c.rsi.AddPrice(price)
	c.macd.AddPrice(price)
	c.momentum.AddPrice(price)
}

// prevReading is last tick's index values for one side
type prevReading struct {
	index     float64
	signal    float64
	hasIndex  bool
	hasSignal bool
}

// assetState is one asset's full window-scoped state
type assetState struct {
	asset string

	upPrices   []float64
	downPrices []float64
	up         sideCalcs // Up side is incremental; Down is rebuilt per tick

	prevUp   prevReading
	prevDown prevReading

	pending *PendingEntry
	cycle   *ActiveCycle
	stats   PeriodStats
}

// tickCtx is everything one asset's tick handler needs
type tickCtx struct {
	now   time.Time
	snap  *monitor.Snapshot
	point *monitor.PricePoint

	up   strategy.SideReading
	down strategy.SideReading

	upMACD      float64
	hasUpMACD   bool
	downMACD    float64
	hasDownMACD bool
}

// Trader drives the per-asset cycle state machines off a fixed tick
type Trader struct {
	cfg    *config.Config
	mode   strategy.IndexType
	params strategy.Params

	mon  *monitor.Monitor
	fill FillStrategy
	exch Exchange // nil in simulation
	sink events.Sink

	states   map[string]*assetState
	fundUsed decimal.Decimal

	// simulation holds positions a few seconds before allowing the
	// take-profit, so instant fills don't close on the same quote
	simTPDelay time.Duration
}

// New creates a trader. exch may be nil when fill is ImmediateFill.
func New(cfg *config.Config, mon *monitor.Monitor, fill FillStrategy, exch Exchange, sink events.Sink) (*Trader, error) {
	mode, err := strategy.ParseIndexType(cfg.IndexMode)
	if err != nil {
		return nil, err
	}

	t := &Trader{
		cfg:  cfg,
		mode: mode,
		params: strategy.Params{
			Mode:                 mode,
			TrendThreshold:       cfg.TrendThreshold,
			MomentumThresholdPct: cfg.MomentumThresholdPct,
			Shares:               cfg.PositionSizeShares,
		},
		mon:    mon,
		fill:   fill,
		exch:   exch,
		sink:   sink,
		states: make(map[string]*assetState),
	}
	if cfg.Simulate {
		t.simTPDelay = 5 * time.Second
	}

	for _, asset := range cfg.Assets() {
		t.states[asset] = t.freshState(asset)
	}

	return t, nil
}

func (t *Trader) freshState(asset string) *assetState {
	return &assetState{
		asset:      asset,
		upPrices:   make([]float64, 0, priceHistoryCap),
		downPrices: make([]float64, 0, priceHistoryCap),
		up:         t.newCalcs(),
	}
}

func (t *Trader) newCalcs() sideCalcs {
	var macd *indicators.RollingMACD
	if t.mode == strategy.IndexMACDSignal {
		macd = indicators.NewRollingMACDWithSignal(t.cfg.MACDFastPeriod, t.cfg.MACDSlowPeriod, t.cfg.MACDSignalPeriod)
	} else {
		macd = indicators.NewRollingMACD(t.cfg.MACDFastPeriod, t.cfg.MACDSlowPeriod)
	}
	return sideCalcs{
		rsi:      indicators.NewRollingRSI(t.cfg.Lookback),
		macd:     macd,
		momentum: indicators.NewRollingMomentum(t.cfg.Lookback),
	}
}

// Run ticks at the configured interval until the context is cancelled
func (t *Trader) Run(ctx context.Context) error {
	now := time.Now()
	t.mon.Refresh(monitor.PeriodTsFor(now))

	ticker := time.NewTicker(t.cfg.CheckInterval)
	defer ticker.Stop()

	log.Info().
		Str("mode", t.mode.String()).
		Dur("interval", t.cfg.CheckInterval).
		Bool("simulate", t.cfg.Simulate).
		Msg("Trader started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			t.Tick(now)
		}
	}
}

// Tick processes one sampling interval: rollover first when the
// window changed, then each asset's state machine.
func (t *Trader) Tick(now time.Time) {
	periodTs := monitor.PeriodTsFor(now)
	if periodTs != t.mon.PeriodTs() {
		t.rollover(now, periodTs)
	}

	snap := t.mon.Snapshot(now)
	for i := range snap.Points {
		point := &snap.Points[i]
		a := t.states[point.Asset]
		if a == nil {
			continue
		}
		t.processPoint(a, &snap, point, now)
	}
}

// rollover settles every asset against the closing window's final
// quotes, emits summaries, resets state, and resolves the new window
func (t *Trader) rollover(now time.Time, newPeriodTs int64) {
	log.Info().
		Int64("closed", t.mon.PeriodTs()).
		Int64("next", newPeriodTs).
		Msg("Window rollover")

	final := t.mon.Snapshot(now)
	finalByAsset := make(map[string]*monitor.PricePoint, len(final.Points))
	for i := range final.Points {
		finalByAsset[final.Points[i].Asset] = &final.Points[i]
	}

	for asset, a := range t.states {
		if a.pending != nil {
			t.fill.Abort(a.pending)
			t.emit(a, events.KindDiscard, a.pending.Side, a.pending.LimitPrice, decimal.Zero, a.pending.Size, decimal.Zero, now)
			a.pending = nil
		}
		if a.cycle != nil {
			t.settleCycle(a, finalByAsset[asset], now)
		}
		// Summaries go out even for a window with no activity, so
		// downstream consumers see every period
		t.sink.EmitSummary(events.Summary{
			Time:      now,
			Asset:     asset,
			PeriodTs:  t.mon.PeriodTs(),
			Wins:      a.stats.Wins,
			Losses:    a.stats.Losses,
			PnL:       a.stats.PnL,
			FundUsed:  a.stats.FundUsed,
			Simulated: t.cfg.Simulate,
		})
		t.states[asset] = t.freshState(asset)
	}

	t.fundUsed = decimal.Zero
	t.mon.Refresh(newPeriodTs)
}

// settleCycle resolves a position held through window close. The held
// side wins when its terminal ask pinned at (or above) 0.99; anything
// else expires worthless.
func (t *Trader) settleCycle(a *assetState, final *monitor.PricePoint, now time.Time) {
	c := a.cycle
	a.cycle = nil

	if c.TPOrderID != "" && t.exch != nil {
		if err := t.exch.CancelOrder(c.TPOrderID); err != nil {
			log.Debug().Err(err).Msg("Take-profit cancel at settlement returned error")
		}
	}

	won := false
	if final != nil {
		heldAsk, has := sideAsk(final, c.Side)
		won = has && heldAsk.GreaterThanOrEqual(settlementWinAsk)
	}

	if won {
		pnl := one.Sub(c.EntryPrice).Mul(c.Size)
		a.stats.recordWin(pnl)
		t.emit(a, events.KindSettleWin, c.Side, c.EntryPrice, one, c.Size, pnl, now)
	} else {
		pnl := c.EntryPrice.Neg().Mul(c.Size)
		a.stats.recordLoss(pnl)
		t.emit(a, events.KindSettleLoss, c.Side, c.EntryPrice, decimal.Zero, c.Size, pnl, now)
	}
}

func (t *Trader) processPoint(a *assetState, snap *monitor.Snapshot, point *monitor.PricePoint, now time.Time) {
	// Both sides must have quotes or the windows drift apart
	if !point.HasUp || !point.HasDown {
		return
	}

	upF := point.UpAsk.InexactFloat64()
	downF := point.DownAsk.InexactFloat64()

	a.upPrices = appendCapped(a.upPrices, upF, priceHistoryCap)
	a.downPrices = appendCapped(a.downPrices, downF, priceHistoryCap)

	// Up side advances incrementally; the Down side is rebuilt from
	// its retained window so a restart mid-window converges the same
	a.up.add(upF)
	downCalcs := t.rebuildCalcs(a.downPrices)

	tc := tickCtx{now: now, snap: snap, point: point}
	tc.up = t.reading(a.up, a.prevUp)
	tc.down = t.reading(downCalcs, a.prevDown)
	tc.upMACD, tc.hasUpMACD = a.up.macd.MACD()
	tc.downMACD, tc.hasDownMACD = downCalcs.macd.MACD()

	switch {
	case a.pending != nil:
		t.checkPending(a, &tc)
	case a.cycle != nil:
		t.manageCycle(a, &tc)
	default:
		t.maybeEnter(a, &tc)
	}

	a.prevUp = prevFrom(tc.up)
	a.prevDown = prevFrom(tc.down)
}

// rebuildCalcs replays a price window through fresh calculators
func (t *Trader) rebuildCalcs(prices []float64) sideCalcs {
	c := t.newCalcs()
	for _, p := range prices {
		c.add(p)
	}
	return c
}

// reading extracts the active mode's index from one side's calculators
func (t *Trader) reading(c sideCalcs, prev prevReading) strategy.SideReading {
	r := strategy.SideReading{
		PrevIndex:     prev.index,
		HasPrev:       prev.hasIndex,
		PrevSignal:    prev.signal,
		HasPrevSignal: prev.hasSignal,
	}

	switch t.mode {
	case strategy.IndexRSI:
		if v, ok := c.rsi.Value(); ok {
			r.Index, r.HasIndex = v, true
		}

	case strategy.IndexMACD:
		if v, ok := c.macd.MACD(); ok {
			r.Index, r.HasIndex = v, true
		}

	case strategy.IndexMACDSignal:
		if v, ok := c.macd.MACD(); ok {
			r.Index, r.HasIndex = v, true
		}
		if v, ok := c.macd.SignalLine(); ok {
			r.Signal, r.HasSignal = v, true
		}

	case strategy.IndexMomentum:
		if v, ok := c.momentum.Value(); ok {
			r.Index, r.HasIndex = v, true
		}
	}

	return r
}

func prevFrom(r strategy.SideReading) prevReading {
	return prevReading{
		index:     r.Index,
		hasIndex:  r.HasIndex,
		signal:    r.Signal,
		hasSignal: r.HasSignal,
	}
}

// checkPending polls the fill strategy and opens, loses, or discards
func (t *Trader) checkPending(a *assetState, tc *tickCtx) {
	p := a.pending

	oppAsk, hasOpp := sideAsk(tc.point, p.Side.Opposite())
	heldMACD, hasMACD := tc.upMACD, tc.hasUpMACD
	if p.Side == SideDown {
		heldMACD, hasMACD = tc.downMACD, tc.hasDownMACD
	}

	env := FillEnv{
		Now:             tc.now,
		OppositeTokenID: t.tokenFor(a.asset, p.Side.Opposite()),
		OppositeAsk:     oppAsk,
		HasOppositeAsk:  hasOpp,
		HeldMACD:        heldMACD,
		HasHeldMACD:     hasMACD,
	}

	res := t.fill.Check(p, env)
	switch res.Outcome {
	case FillPending:
		return

	case FillDiscarded:
		t.emit(a, events.KindDiscard, p.Side, p.LimitPrice, decimal.Zero, p.Size, decimal.Zero, tc.now)
		a.pending = nil

	case FillOpened:
		cost := p.LimitPrice.Mul(res.Size)
		t.fundUsed = t.fundUsed.Add(cost)
		a.stats.FundUsed = a.stats.FundUsed.Add(cost)

		a.cycle = &ActiveCycle{
			Side:       p.Side,
			EntryPrice: p.LimitPrice,
			Size:       res.Size,
			TPPrice:    p.LimitPrice.Add(t.cfg.ProfitThreshold),
			SLPrice:    p.LimitPrice.Sub(t.cfg.SLThreshold),
			TPOrderID:  res.TPOrderID,
			OpenedAt:   tc.now,
		}
		t.emit(a, events.KindEntry, p.Side, p.LimitPrice, decimal.Zero, res.Size, decimal.Zero, tc.now)
		a.pending = nil

	case FillImmediateLoss:
		cost := p.LimitPrice.Mul(res.Size)
		t.fundUsed = t.fundUsed.Add(cost)
		a.stats.FundUsed = a.stats.FundUsed.Add(cost)

		a.stats.recordLoss(res.PnL)
		t.emit(a, events.KindStopLoss, p.Side, p.LimitPrice, res.ExitPrice, res.Size, res.PnL, tc.now)
		a.pending = nil
	}
}

// manageCycle watches an open position for its take-profit and
// stop-loss exits
func (t *Trader) manageCycle(a *assetState, tc *tickCtx) {
	c := a.cycle

	heldAsk, hasHeld := sideAsk(tc.point, c.Side)
	oppAsk, hasOpp := sideAsk(tc.point, c.Side.Opposite())

	// Take profit: the held side trades at or above the target. A
	// target above 1.00 can never print, so it is skipped outright.
	if hasHeld && c.TPPrice.LessThanOrEqual(one) && heldAsk.GreaterThanOrEqual(c.TPPrice) {
		if tc.now.Sub(c.OpenedAt) >= t.simTPDelay {
			pnl := c.TPPrice.Sub(c.EntryPrice).Mul(c.Size)
			a.stats.recordWin(pnl)
			t.emit(a, events.KindTakeProfit, c.Side, c.EntryPrice, c.TPPrice, c.Size, pnl, tc.now)
			a.cycle = nil
			return
		}
	}

	// Stop loss: the opposite ask at or above 1 - stop price means the
	// held side's implied value fell through the stop level
	if hasOpp && oppAsk.GreaterThanOrEqual(one.Sub(c.SLPrice)) {
		heldMACD, hasMACD := tc.upMACD, tc.hasUpMACD
		if c.Side == SideDown {
			heldMACD, hasMACD = tc.downMACD, tc.hasDownMACD
		}
		if t.cfg.UseMACDSLFilter && hasMACD && heldMACD > 0 {
			log.Info().
				Str("asset", a.asset).
				Float64("macd", heldMACD).
				Msg("Stop-loss suppressed by MACD filter")
			return
		}

		if t.exch != nil {
			// Hedge out by buying the opposite token at market
			oppToken := t.tokenFor(a.asset, c.Side.Opposite())
			if _, err := t.exch.PlaceLimitOrder(oppToken, "BUY", oppAsk.Round(2), c.Size, "GTC"); err != nil {
				log.Error().Err(err).Msg("Stop-loss hedge order failed")
			}
			if c.TPOrderID != "" {
				if err := t.exch.CancelOrder(c.TPOrderID); err != nil {
					log.Debug().Err(err).Msg("Take-profit cancel returned error")
				}
			}
		}

		pnl := c.SLPrice.Sub(c.EntryPrice).Mul(c.Size)
		a.stats.recordLoss(pnl)
		t.emit(a, events.KindStopLoss, c.Side, c.EntryPrice, c.SLPrice, c.Size, pnl, tc.now)
		a.cycle = nil
	}
}

// maybeEnter runs the entry gates and, when the index says so, places
// an entry order
func (t *Trader) maybeEnter(a *assetState, tc *tickCtx) {
	// Optional start gate: wait until the window has this little time
	// left before trading at all
	if m := t.cfg.TradingStartWhenRemainingMinutes; m > 0 {
		if tc.snap.TimeRemaining > time.Duration(m)*time.Minute {
			return
		}
	}

	action := strategy.Decide(t.params, tc.up, tc.down, tc.point.UpAsk, tc.point.DownAsk)
	if action.Type == strategy.ActionNone {
		return
	}

	// Late-entry guard: a near-certain price early in the window is
	// all risk and no payoff
	if action.Price.GreaterThan(t.cfg.LateEntryPriceCap) && tc.snap.Elapsed < t.cfg.LateEntryMinElapsed {
		log.Debug().
			Str("asset", a.asset).
			Str("price", action.Price.String()).
			Msg("Entry price too high this early, skipping")
		return
	}

	cost := action.Price.Mul(action.Shares)
	if t.fundUsed.Add(cost).GreaterThan(t.cfg.InitialFund) {
		log.Warn().
			Str("asset", a.asset).
			Str("cost", cost.String()).
			Str("fund_used", t.fundUsed.String()).
			Msg("Fund exhausted, skipping entry")
		return
	}

	side := SideUp
	if action.Type == strategy.ActionBuyDown {
		side = SideDown
	}

	pending, err := t.fill.Submit(t.tokenFor(a.asset, side), side, action.Price, action.Shares)
	if err != nil {
		log.Error().Err(err).Str("asset", a.asset).Msg("Entry order failed")
		return
	}
	a.pending = pending

	log.Info().
		Str("asset", a.asset).
		Str("side", side.String()).
		Str("price", action.Price.String()).
		Str("shares", action.Shares.String()).
		Msg("Entry order placed")

	// Simulation fills instantly; confirm in the same tick
	t.checkPending(a, tc)
}

func (t *Trader) tokenFor(asset string, side Side) string {
	am := t.mon.Market(asset)
	if am == nil || am.Tokens == nil {
		return ""
	}
	if side == SideDown {
		return am.Tokens.DownTokenID
	}
	return am.Tokens.UpTokenID
}

func (t *Trader) emit(a *assetState, kind events.Kind, side Side, entry, exit, size, pnl decimal.Decimal, now time.Time) {
	t.sink.Emit(events.Event{
		Time:       now,
		Kind:       kind,
		Asset:      a.asset,
		PeriodTs:   t.mon.PeriodTs(),
		Side:       side.String(),
		EntryPrice: entry,
		ExitPrice:  exit,
		Size:       size,
		PnL:        pnl,
		Simulated:  t.cfg.Simulate,
	})
}

func sideAsk(p *monitor.PricePoint, side Side) (decimal.Decimal, bool) {
	if side == SideDown {
		return p.DownAsk, p.HasDown
	}
	return p.UpAsk, p.HasUp
}

func appendCapped(s []float64, v float64, max int) []float64 {
	s = append(s, v)
	if len(s) > max {
		s = s[1:]
	}
	return s
}
