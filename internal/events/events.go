// Package events fans trading lifecycle events out to sinks.
//
// The trader emits an Event at each state change (entry fill, take
// profit, stop loss, rollover settlement) and a summary at each window
// close. Sinks decide what to do with them: console log, database row,
// Telegram message.
package events

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Kind classifies a lifecycle event
type Kind string

const (
	KindEntry      Kind = "ENTRY"
	KindTakeProfit Kind = "TAKE_PROFIT"
	KindStopLoss   Kind = "STOP_LOSS"
	KindSettleWin  Kind = "SETTLE_WIN"
	KindSettleLoss Kind = "SETTLE_LOSS"
	KindDiscard    Kind = "DISCARD"
)

// Event is one trading lifecycle event
type Event struct {
	Time       time.Time
	Kind       Kind
	Asset      string
	PeriodTs   int64
	Side       string // UP or DOWN
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Size       decimal.Decimal
	PnL        decimal.Decimal
	Simulated  bool
}

// Summary totals one asset's window
type Summary struct {
	Time      time.Time
	Asset     string
	PeriodTs  int64
	Wins      int
	Losses    int
	PnL       decimal.Decimal
	FundUsed  decimal.Decimal
	Simulated bool
}

// Sink receives lifecycle events. Implementations must not block the
// tick loop for long; slow transports buffer internally.
type Sink interface {
	Emit(e Event)
	EmitSummary(s Summary)
}

// LogSink writes events to the structured log
type LogSink struct{}

func (LogSink) Emit(e Event) {
	ev := log.Info().
		Str("kind", string(e.Kind)).
		Str("asset", e.Asset).
		Str("side", e.Side).
		Int64("period", e.PeriodTs)

	switch e.Kind {
	case KindEntry:
		ev.Str("entry", e.EntryPrice.String()).Str("size", e.Size.String())
	case KindDiscard:
		ev.Str("entry", e.EntryPrice.String())
	default:
		ev.Str("entry", e.EntryPrice.String()).
			Str("exit", e.ExitPrice.String()).
			Str("size", e.Size.String()).
			Str("pnl", e.PnL.String())
	}

	ev.Msg("Cycle event")
}

func (LogSink) EmitSummary(s Summary) {
	log.Info().
		Str("asset", s.Asset).
		Int64("period", s.PeriodTs).
		Int("wins", s.Wins).
		Int("losses", s.Losses).
		Str("pnl", s.PnL.String()).
		Str("fund_used", s.FundUsed.String()).
		Msg("Window closed")
}

// MultiSink fans out to several sinks in order
type MultiSink []Sink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

func (m MultiSink) EmitSummary(s Summary) {
	for _, sink := range m {
		sink.EmitSummary(s)
	}
}
