// Package strategy decides directional entries from trending-index values.
//
// The trend index is a closed set of modes (RSI, MACD, MACD signal-line
// crossover, Momentum). Decide is the ONLY entry-decision path; the
// trader never branches on the mode anywhere else.
package strategy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// IndexType selects which trending index drives entries
type IndexType int

const (
	IndexRSI IndexType = iota
	IndexMACD
	IndexMACDSignal
	IndexMomentum
)

// ParseIndexType parses a config string into an IndexType
func ParseIndexType(s string) (IndexType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rsi":
		return IndexRSI, nil
	case "macd":
		return IndexMACD, nil
	case "macd_signal", "macdsignal":
		return IndexMACDSignal, nil
	case "momentum":
		return IndexMomentum, nil
	default:
		return IndexRSI, fmt.Errorf("unknown index type: %q", s)
	}
}

func (t IndexType) String() string {
	switch t {
	case IndexRSI:
		return "rsi"
	case IndexMACD:
		return "macd"
	case IndexMACDSignal:
		return "macd_signal"
	case IndexMomentum:
		return "momentum"
	default:
		return "unknown"
	}
}

// ActionType is the kind of decision Decide produces
type ActionType int

const (
	ActionNone ActionType = iota
	ActionBuyUp
	ActionBuyDown
)

func (a ActionType) String() string {
	switch a {
	case ActionBuyUp:
		return "BUY_UP"
	case ActionBuyDown:
		return "BUY_DOWN"
	default:
		return "NO_ACTION"
	}
}

// Action is a directional entry decision with the price and size to use
type Action struct {
	Type   ActionType
	Price  decimal.Decimal
	Shares decimal.Decimal
}

// NoAction is the empty decision
var NoAction = Action{Type: ActionNone}

// SideReading carries one side's indicator state for the current tick
// plus the previous tick's values for acceleration/crossover checks.
type SideReading struct {
	Index    float64
	HasIndex bool

	Signal    float64 // MACD signal line, MACDSignal mode only
	HasSignal bool

	PrevIndex float64
	HasPrev   bool

	PrevSignal    float64
	HasPrevSignal bool
}

// Params is the immutable decision configuration
type Params struct {
	Mode                 IndexType
	TrendThreshold       float64
	MomentumThresholdPct float64
	Shares               decimal.Decimal
}

// Decide evaluates both sides' readings and returns a directional entry
// or NoAction. Up is always evaluated before Down, so when both sides
// qualify the Up side wins deterministically.
//
// Mode rules:
//   - RSI: index above TrendThreshold.
//   - MACD: index above TrendThreshold AND strictly greater than the
//     side's previous value; the first reading passes the acceleration
//     gate since there is nothing to compare against.
//   - MACDSignal: the index crossed its signal line between ticks
//     (prev <= prevSignal, now > signal); with no previous values the
//     first evaluation treats index > signal as a crossover.
//   - Momentum: index above MomentumThresholdPct.
func Decide(p Params, up, down SideReading, upAsk, downAsk decimal.Decimal) Action {
	if sideTrending(p, up) {
		return Action{Type: ActionBuyUp, Price: upAsk, Shares: p.Shares}
	}
	if sideTrending(p, down) {
		return Action{Type: ActionBuyDown, Price: downAsk, Shares: p.Shares}
	}
	return NoAction
}

func sideTrending(p Params, r SideReading) bool {
	if !r.HasIndex {
		return false
	}

	switch p.Mode {
	case IndexRSI:
		return r.Index > p.TrendThreshold

	case IndexMACD:
		if r.Index <= p.TrendThreshold {
			return false
		}
		// Acceleration gate: the index must still be rising
		if r.HasPrev && r.Index <= r.PrevIndex {
			return false
		}
		return true

	case IndexMACDSignal:
		if !r.HasSignal {
			return false
		}
		if r.HasPrev && r.HasPrevSignal {
			return r.PrevIndex <= r.PrevSignal && r.Index > r.Signal
		}
		// First evaluation: being above the signal line counts
		return r.Index > r.Signal

	case IndexMomentum:
		return r.Index > p.MomentumThresholdPct
	}

	return false
}
