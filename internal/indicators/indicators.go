// Package indicators provides technical analysis calculations
//
// indicators.go - Batch helpers over a full price window.
// The rolling calculators in rolling.go are the primary path; these
// functions cover one-shot recomputation of an index from a retained
// window and pin down the values the rolling path must agree with.
package indicators

import (
	"github.com/shopspring/decimal"
)

// SMA calculates Simple Moving Average over the last period values
func SMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < period {
		return average(prices)
	}
	return average(prices[len(prices)-period:])
}

// RSI calculates the Relative Strength Index over a full price window
// using Wilder's smoothing. Needs at least period+1 prices.
// Edge cases: flat window -> 50, gains only -> 100, losses only -> 0.
func RSI(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}

	gains := make([]float64, 0, len(prices)-1)
	losses := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	avgGain := average(gains[:period])
	avgLoss := average(losses[:period])

	// Wilder's smoothing over the remainder of the window
	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
	}

	return rsiFromAverages(avgGain, avgLoss), true
}

// rsiFromAverages maps a smoothed gain/loss pair to an RSI value.
// Shared with RollingRSI so batch and incremental paths agree exactly.
func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgGain == 0 && avgLoss == 0 {
		return 50.0
	}
	if avgLoss == 0 {
		return 100.0
	}
	if avgGain == 0 {
		return 0.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func average(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// DecimalToFloat converts a decimal price to float64 for indicator math
func DecimalToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// FloatToDecimal converts an indicator value back to decimal
func FloatToDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
