// rolling.go - Incremental indicator calculators.
// Each instance consumes one price per tick and is thrown away at every
// period rollover, so all state here is scoped to a single 15m window.
package indicators

// RollingRSI maintains a Wilder-smoothed RSI over a stream of prices.
// The first period gain/loss samples are simple-averaged to seed the
// smoothing; after that avg = (avg*(period-1) + new) / period.
type RollingRSI struct {
	period      int
	prices      []float64
	gains       []float64
	losses      []float64
	avgGain     float64
	avgLoss     float64
	initialized bool
}

// NewRollingRSI creates a rolling RSI calculator with the given period
func NewRollingRSI(period int) *RollingRSI {
	return &RollingRSI{
		period: period,
		prices: make([]float64, 0, period+1),
		gains:  make([]float64, 0, period),
		losses: make([]float64, 0, period),
	}
}

// AddPrice feeds the next price sample into the calculator
func (r *RollingRSI) AddPrice(price float64) {
	r.prices = append(r.prices, price)
	if len(r.prices) < 2 {
		return
	}

	change := price - r.prices[len(r.prices)-2]
	gain := 0.0
	loss := 0.0
	if change > 0 {
		gain = change
	} else if change < 0 {
		loss = -change
	}
	r.gains = append(r.gains, gain)
	r.losses = append(r.losses, loss)

	if !r.initialized {
		if len(r.gains) == r.period {
			r.avgGain = average(r.gains)
			r.avgLoss = average(r.losses)
			r.initialized = true
		}
	} else {
		r.avgGain = (r.avgGain*float64(r.period-1) + gain) / float64(r.period)
		r.avgLoss = (r.avgLoss*float64(r.period-1) + loss) / float64(r.period)
		if len(r.gains) > r.period {
			r.gains = r.gains[1:]
		}
		if len(r.losses) > r.period {
			r.losses = r.losses[1:]
		}
	}

	if len(r.prices) > r.period+1 {
		r.prices = r.prices[1:]
	}
}

// Value returns the current RSI, or false until the seed window is full
func (r *RollingRSI) Value() (float64, bool) {
	if !r.initialized {
		return 0, false
	}
	return rsiFromAverages(r.avgGain, r.avgLoss), true
}

// Ready reports whether the seed window has filled
func (r *RollingRSI) Ready() bool {
	return r.initialized
}

// RollingMACD maintains fast/slow EMAs over a price stream. Both EMAs
// are seeded with the simple average of the first slowPeriod prices,
// then updated with alpha = 2/(n+1). With a signal period configured it
// also tracks an EMA of the MACD series itself, seeded the same way.
type RollingMACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int // 0 disables the signal line
	prices       []float64
	emaFast      float64
	emaSlow      float64
	macdHistory  []float64
	signalLine   float64
	signalInit   bool
	initialized  bool
}

// NewRollingMACD creates a MACD calculator without a signal line
func NewRollingMACD(fastPeriod, slowPeriod int) *RollingMACD {
	return &RollingMACD{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		prices:     make([]float64, 0, slowPeriod+1),
	}
}

// NewRollingMACDWithSignal creates a MACD calculator that also tracks
// a signal line (EMA of the MACD series)
func NewRollingMACDWithSignal(fastPeriod, slowPeriod, signalPeriod int) *RollingMACD {
	return &RollingMACD{
		fastPeriod:   fastPeriod,
		slowPeriod:   slowPeriod,
		signalPeriod: signalPeriod,
		prices:       make([]float64, 0, slowPeriod+1),
		macdHistory:  make([]float64, 0, signalPeriod+1),
	}
}

// AddPrice feeds the next price sample into the calculator
func (m *RollingMACD) AddPrice(price float64) {
	m.prices = append(m.prices, price)

	if !m.initialized {
		if len(m.prices) >= m.slowPeriod {
			sma := average(m.prices)
			m.emaFast = sma
			m.emaSlow = sma
			m.initialized = true
		}
	} else {
		fastAlpha := 2.0 / (float64(m.fastPeriod) + 1.0)
		slowAlpha := 2.0 / (float64(m.slowPeriod) + 1.0)
		m.emaFast = price*fastAlpha + m.emaFast*(1.0-fastAlpha)
		m.emaSlow = price*slowAlpha + m.emaSlow*(1.0-slowAlpha)
	}

	if m.initialized && m.signalPeriod > 0 {
		macdValue := m.emaFast - m.emaSlow
		m.macdHistory = append(m.macdHistory, macdValue)
		if len(m.macdHistory) > m.signalPeriod+1 {
			m.macdHistory = m.macdHistory[1:]
		}

		if !m.signalInit {
			if len(m.macdHistory) >= m.signalPeriod {
				m.signalLine = average(m.macdHistory)
				m.signalInit = true
			}
		} else {
			signalAlpha := 2.0 / (float64(m.signalPeriod) + 1.0)
			m.signalLine = macdValue*signalAlpha + m.signalLine*(1.0-signalAlpha)
		}
	}

	if len(m.prices) > m.slowPeriod+1 {
		m.prices = m.prices[1:]
	}
}

// MACD returns fastEMA - slowEMA, or false until the seed window is full
func (m *RollingMACD) MACD() (float64, bool) {
	if !m.initialized {
		return 0, false
	}
	return m.emaFast - m.emaSlow, true
}

// SignalLine returns the signal line value once it has seeded
func (m *RollingMACD) SignalLine() (float64, bool) {
	if m.signalPeriod == 0 || !m.signalInit {
		return 0, false
	}
	return m.signalLine, true
}

// Histogram returns MACD - signal once both are available
func (m *RollingMACD) Histogram() (float64, bool) {
	macd, ok := m.MACD()
	if !ok {
		return 0, false
	}
	signal, ok := m.SignalLine()
	if !ok {
		return 0, false
	}
	return macd - signal, true
}

// Ready reports whether the EMAs have seeded
func (m *RollingMACD) Ready() bool {
	return m.initialized
}

// SignalReady reports whether the signal line has seeded
func (m *RollingMACD) SignalReady() bool {
	return m.signalInit
}

// RollingMomentum tracks percentage change between the oldest and
// newest price in a window of period+1 samples.
type RollingMomentum struct {
	period int
	prices []float64
}

// NewRollingMomentum creates a momentum calculator with the given period
func NewRollingMomentum(period int) *RollingMomentum {
	return &RollingMomentum{
		period: period,
		prices: make([]float64, 0, period+1),
	}
}

// AddPrice feeds the next price sample into the window
func (m *RollingMomentum) AddPrice(price float64) {
	m.prices = append(m.prices, price)
	if len(m.prices) > m.period+1 {
		m.prices = m.prices[1:]
	}
}

// Value returns ((current-past)/past)*100, or false while the window is
// short or the past price is zero
func (m *RollingMomentum) Value() (float64, bool) {
	if len(m.prices) < m.period+1 {
		return 0, false
	}
	past := m.prices[0]
	if past == 0 {
		return 0, false
	}
	current := m.prices[len(m.prices)-1]
	return ((current - past) / past) * 100.0, true
}

// Ready reports whether the window has filled
func (m *RollingMomentum) Ready() bool {
	return len(m.prices) >= m.period+1
}
