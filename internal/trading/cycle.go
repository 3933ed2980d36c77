// Package trading runs the per-asset trading cycle state machine.
//
// Each asset is in exactly one of three states per 15-minute window:
// idle (no position), pending (entry order placed, fill unconfirmed),
// or cycling (position held, watching take-profit and stop-loss). A
// window rollover settles whatever is open and resets every asset.
package trading

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a position
type Side int

const (
	SideUp Side = iota
	SideDown
)

func (s Side) String() string {
	if s == SideDown {
		return "DOWN"
	}
	return "UP"
}

// Opposite returns the other side of the market
func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

// ActiveCycle is an open position with its exit levels
type ActiveCycle struct {
	Side       Side
	EntryPrice decimal.Decimal
	Size       decimal.Decimal
	TPPrice    decimal.Decimal // entry + profit threshold
	SLPrice    decimal.Decimal // entry - stop-loss threshold
	TPOrderID  string          // resting take-profit sell, live mode only
	OpenedAt   time.Time
}

// PendingEntry is a placed entry order whose fill is unconfirmed
type PendingEntry struct {
	Side       Side
	TokenID    string
	LimitPrice decimal.Decimal
	Size       decimal.Decimal
	OrderID    string
	PreBalance int64 // raw token balance before the order
	PlacedAt   time.Time
}

// PeriodStats accumulates one asset's results within a window
type PeriodStats struct {
	Wins     int
	Losses   int
	PnL      decimal.Decimal
	FundUsed decimal.Decimal
}

func (p *PeriodStats) recordWin(pnl decimal.Decimal) {
	p.Wins++
	p.PnL = p.PnL.Add(pnl)
}

func (p *PeriodStats) recordLoss(pnl decimal.Decimal) {
	p.Losses++
	p.PnL = p.PnL.Add(pnl)
}
