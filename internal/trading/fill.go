package trading

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Exchange is what fill confirmation needs from the venue
type Exchange interface {
	PlaceLimitOrder(tokenID, side string, price, size decimal.Decimal, orderType string) (string, error)
	CancelOrder(orderID string) error
	BalanceRaw(tokenID string) (int64, error)
}

// FillOutcome is the result of checking a pending entry
type FillOutcome int

const (
	// FillPending means the entry is still unconfirmed
	FillPending FillOutcome = iota
	// FillOpened means the entry filled and a cycle should open
	FillOpened
	// FillImmediateLoss means the entry filled but the stop-loss
	// already triggered during confirmation; position was exited
	FillImmediateLoss
	// FillDiscarded means the entry timed out and was cancelled
	FillDiscarded
)

// FillResult carries the confirmed fill details
type FillResult struct {
	Outcome   FillOutcome
	Size      decimal.Decimal // confirmed filled size in shares
	TPOrderID string          // resting take-profit order, if placed
	ExitPrice decimal.Decimal // immediate-loss exit level
	PnL       decimal.Decimal // immediate-loss realized pnl
}

// FillEnv is the market context for one confirmation check
type FillEnv struct {
	Now             time.Time
	OppositeTokenID string
	OppositeAsk     decimal.Decimal
	HasOppositeAsk  bool
	HeldMACD        float64 // held side's MACD, for the stop-loss filter
	HasHeldMACD     bool
}

// FillStrategy abstracts how entries reach a confirmed fill. The live
// implementation polls token balances; simulation fills instantly.
type FillStrategy interface {
	Submit(tokenID string, side Side, price, size decimal.Decimal) (*PendingEntry, error)
	Check(p *PendingEntry, env FillEnv) FillResult
	Abort(p *PendingEntry)
}

// ImmediateFill confirms every entry instantly at its limit price.
// Used in simulation, where there is no venue to poll.
type ImmediateFill struct{}

func (ImmediateFill) Submit(tokenID string, side Side, price, size decimal.Decimal) (*PendingEntry, error) {
	return &PendingEntry{
		Side:       side,
		TokenID:    tokenID,
		LimitPrice: price,
		Size:       size,
		PlacedAt:   time.Now(),
	}, nil
}

func (ImmediateFill) Check(p *PendingEntry, env FillEnv) FillResult {
	return FillResult{Outcome: FillOpened, Size: p.Size}
}

func (ImmediateFill) Abort(p *PendingEntry) {}

// BalancePollFill confirms entries by watching the outcome-token
// balance. Order status on these markets lags badly, so the balance
// delta is the only trustworthy fill signal.
type BalancePollFill struct {
	Exchange Exchange

	ProfitThreshold decimal.Decimal
	SLThreshold     decimal.Decimal
	UseMACDSLFilter bool

	// MinDelta is the raw-unit dust threshold; a balance increase must
	// STRICTLY exceed it to count as a fill
	MinDelta int64
	// SettleDelay is how long to wait before re-reading a balance
	SettleDelay time.Duration
	// PendingTimeout discards entries that never fill
	PendingTimeout time.Duration
}

// NewBalancePollFill creates the live fill strategy with the
// confirmation constants
func NewBalancePollFill(exch Exchange, profit, sl decimal.Decimal, useMACDSLFilter bool) *BalancePollFill {
	return &BalancePollFill{
		Exchange:        exch,
		ProfitThreshold: profit,
		SLThreshold:     sl,
		UseMACDSLFilter: useMACDSLFilter,
		MinDelta:        1000,
		SettleDelay:     500 * time.Millisecond,
		PendingTimeout:  10 * time.Second,
	}
}

// Submit snapshots the pre-order balance, places a resting GTC buy,
// and returns the pending state for later confirmation checks.
func (f *BalancePollFill) Submit(tokenID string, side Side, price, size decimal.Decimal) (*PendingEntry, error) {
	pre, err := f.stableBalance(tokenID)
	if err != nil {
		return nil, fmt.Errorf("pre-order balance read failed: %w", err)
	}

	orderID, err := f.Exchange.PlaceLimitOrder(tokenID, "BUY", price, size, "GTC")
	if err != nil {
		return nil, err
	}

	return &PendingEntry{
		Side:       side,
		TokenID:    tokenID,
		LimitPrice: price,
		Size:       size,
		OrderID:    orderID,
		PreBalance: pre,
		PlacedAt:   time.Now(),
	}, nil
}

// stableBalance reads the balance twice across the settle delay so a
// snapshot taken mid-settlement doesn't poison the fill baseline
func (f *BalancePollFill) stableBalance(tokenID string) (int64, error) {
	first, err := f.Exchange.BalanceRaw(tokenID)
	if err != nil {
		return 0, err
	}
	time.Sleep(f.SettleDelay)
	second, err := f.Exchange.BalanceRaw(tokenID)
	if err != nil {
		return 0, err
	}
	if diff := second - first; diff > f.MinDelta || diff < -f.MinDelta {
		log.Warn().
			Int64("first", first).
			Int64("second", second).
			Msg("Balance moving while snapshotting, using the later read")
	}
	return second, nil
}

// Check polls the token balance for the fill. On confirmation it
// cancels the entry remainder, places the resting take-profit sell,
// and runs the stop-loss check once before the cycle opens.
func (f *BalancePollFill) Check(p *PendingEntry, env FillEnv) FillResult {
	current, err := f.Exchange.BalanceRaw(p.TokenID)
	if err != nil {
		log.Warn().Err(err).Str("token", shortToken(p.TokenID)).Msg("Balance poll failed")
		return FillResult{Outcome: FillPending}
	}

	// Balance went down: something else spent this token. Re-baseline
	// so the eventual fill is measured from the new floor.
	if current < p.PreBalance {
		log.Warn().
			Int64("was", p.PreBalance).
			Int64("now", current).
			Msg("Token balance decreased while pending, re-baselining")
		p.PreBalance = current
		return FillResult{Outcome: FillPending}
	}

	if current > p.PreBalance+f.MinDelta {
		return f.confirm(p, env)
	}

	if env.Now.Sub(p.PlacedAt) > f.PendingTimeout {
		log.Info().
			Str("side", p.Side.String()).
			Str("price", p.LimitPrice.String()).
			Msg("Entry never filled, discarding")
		f.Abort(p)
		return FillResult{Outcome: FillDiscarded}
	}

	return FillResult{Outcome: FillPending}
}

func (f *BalancePollFill) confirm(p *PendingEntry, env FillEnv) FillResult {
	// Cancel whatever part of the entry is still resting; a full fill
	// makes this a no-op error
	if p.OrderID != "" {
		if err := f.Exchange.CancelOrder(p.OrderID); err != nil {
			log.Debug().Err(err).Msg("Entry remainder cancel returned error")
		}
	}

	// Let partial fills settle, then re-read. An unstable read keeps
	// the entry pending for another tick.
	time.Sleep(f.SettleDelay)
	confirmed, err := f.Exchange.BalanceRaw(p.TokenID)
	if err != nil || confirmed < p.PreBalance+f.MinDelta {
		log.Warn().Err(err).Msg("Fill confirmation unstable, retrying next tick")
		return FillResult{Outcome: FillPending}
	}

	filledSize := decimal.NewFromInt(confirmed - p.PreBalance).
		Div(decimal.NewFromInt(tokenDecimals))

	log.Info().
		Str("side", p.Side.String()).
		Str("size", filledSize.String()).
		Str("entry", p.LimitPrice.String()).
		Msg("Entry fill confirmed via balance")

	// Take-profit first: get the exit resting before anything else
	var tpOrderID string
	tp := p.LimitPrice.Add(f.ProfitThreshold)
	if tp.LessThanOrEqual(decimal.NewFromInt(1)) {
		tpOrderID, err = f.Exchange.PlaceLimitOrder(p.TokenID, "SELL", tp.Round(2), filledSize, "GTC")
		if err != nil {
			log.Error().Err(err).Msg("Take-profit placement failed")
		}
	}

	// Stop-loss may have triggered while the fill was confirming
	if f.slTriggered(p, env) {
		return f.exitImmediately(p, env, filledSize, tpOrderID)
	}

	return FillResult{Outcome: FillOpened, Size: filledSize, TPOrderID: tpOrderID}
}

func (f *BalancePollFill) slTriggered(p *PendingEntry, env FillEnv) bool {
	if !env.HasOppositeAsk {
		return false
	}
	// The stop sits SLThreshold below the entry; it fires when the
	// opposite ask reaches 1 minus that level
	slPrice := p.LimitPrice.Sub(f.SLThreshold)
	if !env.OppositeAsk.GreaterThanOrEqual(decimal.NewFromInt(1).Sub(slPrice)) {
		return false
	}
	// A positive MACD on the held side says the trend is intact;
	// suppress the stop when the filter is on
	if f.UseMACDSLFilter && env.HasHeldMACD && env.HeldMACD > 0 {
		log.Info().Float64("macd", env.HeldMACD).Msg("Stop-loss suppressed by MACD filter")
		return false
	}
	return true
}

// exitImmediately hedges out of a just-confirmed fill by buying the
// opposite token at its current ask
func (f *BalancePollFill) exitImmediately(p *PendingEntry, env FillEnv, size decimal.Decimal, tpOrderID string) FillResult {
	if _, err := f.Exchange.PlaceLimitOrder(env.OppositeTokenID, "BUY", env.OppositeAsk.Round(2), size, "GTC"); err != nil {
		log.Error().Err(err).Msg("Stop-loss hedge order failed")
	}
	if tpOrderID != "" {
		if err := f.Exchange.CancelOrder(tpOrderID); err != nil {
			log.Debug().Err(err).Msg("Take-profit cancel returned error")
		}
	}

	exit := p.LimitPrice.Sub(f.SLThreshold)
	pnl := exit.Sub(p.LimitPrice).Mul(size)

	log.Info().
		Str("side", p.Side.String()).
		Str("exit", exit.String()).
		Str("pnl", pnl.String()).
		Msg("Stop-loss hit during fill confirmation")

	return FillResult{Outcome: FillImmediateLoss, Size: size, ExitPrice: exit, PnL: pnl}
}

// Abort cancels the resting entry order
func (f *BalancePollFill) Abort(p *PendingEntry) {
	if p.OrderID == "" {
		return
	}
	if err := f.Exchange.CancelOrder(p.OrderID); err != nil {
		log.Debug().Err(err).Msg("Entry cancel returned error")
	}
}

const tokenDecimals = 1_000_000

func shortToken(id string) string {
	if len(id) > 16 {
		return id[:16] + "..."
	}
	return id
}
