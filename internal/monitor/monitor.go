// Package monitor tracks the active 15-minute market windows and
// samples both sides' prices each tick.
//
// Windows are aligned to wall-clock 15-minute boundaries: the window
// timestamp is unix time floored to 900 seconds. At each rollover the
// monitor re-resolves every asset's market and token pair; assets
// whose series can't be found get a dummy placeholder so one missing
// market never stalls the others.
package monitor

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/updown/internal/polymarket"
)

// PricePoint is one asset's quote sample for a tick
type PricePoint struct {
	Asset     string
	PeriodTs  int64
	UpAsk     decimal.Decimal
	DownAsk   decimal.Decimal
	HasUp     bool
	HasDown   bool
	Timestamp time.Time
}

// Snapshot is one tick's view of all tracked markets
type Snapshot struct {
	PeriodTs      int64
	Elapsed       time.Duration
	TimeRemaining time.Duration
	Points        []PricePoint
}

// AssetMarket is the resolved market state for one asset in the
// current window
type AssetMarket struct {
	Market *polymarket.MarketRef
	Tokens *polymarket.TokenPair
}

// Monitor resolves markets per window and samples prices
type Monitor struct {
	client *polymarket.Client
	ws     *polymarket.WSClient // nil when REST-only
	assets []string

	periodTs int64
	markets  map[string]*AssetMarket
}

// New creates a monitor for the given assets. ws may be nil; when set,
// cached WebSocket quotes are preferred over REST lookups.
func New(client *polymarket.Client, ws *polymarket.WSClient, assets []string) *Monitor {
	return &Monitor{
		client:  client,
		ws:      ws,
		assets:  assets,
		markets: make(map[string]*AssetMarket),
	}
}

// PeriodTsFor floors a time to its 15-minute window timestamp
func PeriodTsFor(t time.Time) int64 {
	return t.Unix() / polymarket.PeriodSeconds * polymarket.PeriodSeconds
}

// PeriodTs returns the window the monitor last resolved
func (m *Monitor) PeriodTs() int64 {
	return m.periodTs
}

// Market returns the resolved state for an asset, nil before the
// first Refresh
func (m *Monitor) Market(asset string) *AssetMarket {
	return m.markets[asset]
}

// Refresh resolves every asset's market and token pair for the given
// window. Failures degrade to dummy markets rather than erroring; the
// trader skips dummies every tick.
func (m *Monitor) Refresh(periodTs int64) {
	markets := make(map[string]*AssetMarket, len(m.assets))

	for _, asset := range m.assets {
		am := m.resolveAsset(asset, periodTs)
		markets[asset] = am
	}

	m.periodTs = periodTs
	m.markets = markets

	if m.ws != nil && m.ws.IsConnected() {
		var ids []string
		for _, am := range markets {
			if am.Tokens != nil {
				ids = append(ids, am.Tokens.UpTokenID, am.Tokens.DownTokenID)
			}
		}
		if len(ids) > 0 {
			if err := m.ws.Subscribe(ids); err != nil {
				log.Warn().Err(err).Msg("WebSocket resubscribe failed, falling back to REST")
			}
		}
	}
}

func (m *Monitor) resolveAsset(asset string, periodTs int64) *AssetMarket {
	ref, err := m.client.ResolveMarket(asset, periodTs)
	if err != nil {
		log.Warn().Str("asset", asset).Err(err).Msg("No market this window, using placeholder")
		return &AssetMarket{Market: polymarket.DummyMarket(asset, periodTs)}
	}

	tokens, err := m.client.ResolveTokens(ref.ConditionID)
	if err != nil {
		log.Warn().Str("asset", asset).Err(err).Msg("Token lookup failed, using placeholder")
		return &AssetMarket{Market: polymarket.DummyMarket(asset, periodTs)}
	}

	log.Info().
		Str("asset", asset).
		Str("slug", ref.Slug).
		Str("question", ref.Question).
		Msg("Market resolved")

	return &AssetMarket{Market: ref, Tokens: tokens}
}

// Snapshot samples both sides of every live market. Each asset's Up
// and Down quotes are fetched concurrently; a failed quote leaves its
// Has flag false instead of failing the tick.
func (m *Monitor) Snapshot(now time.Time) Snapshot {
	periodTs := m.periodTs
	elapsed := now.Sub(time.Unix(periodTs, 0))
	remaining := time.Duration(polymarket.PeriodSeconds)*time.Second - elapsed
	if remaining < 0 {
		remaining = 0
	}

	points := make([]PricePoint, 0, len(m.assets))
	for _, asset := range m.assets {
		am := m.markets[asset]
		if am == nil || am.Market.Dummy || am.Tokens == nil {
			continue
		}
		points = append(points, m.sample(asset, am, now))
	}

	return Snapshot{
		PeriodTs:      periodTs,
		Elapsed:       elapsed,
		TimeRemaining: remaining,
		Points:        points,
	}
}

func (m *Monitor) sample(asset string, am *AssetMarket, now time.Time) PricePoint {
	point := PricePoint{
		Asset:     asset,
		PeriodTs:  m.periodTs,
		Timestamp: now,
	}

	// WebSocket cache first: both sides or neither, so the two quotes
	// come from the same book update
	if m.ws != nil {
		if up, down, ok := m.ws.MarketAsks(am.Tokens.UpTokenID, am.Tokens.DownTokenID); ok {
			point.UpAsk, point.HasUp = up, true
			point.DownAsk, point.HasDown = down, true
			return point
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		ask, err := m.client.BestAsk(am.Tokens.UpTokenID)
		if err != nil {
			log.Debug().Str("asset", asset).Err(err).Msg("Up ask fetch failed")
			return
		}
		point.UpAsk, point.HasUp = ask, true
	}()

	go func() {
		defer wg.Done()
		ask, err := m.client.BestAsk(am.Tokens.DownTokenID)
		if err != nil {
			log.Debug().Str("asset", asset).Err(err).Msg("Down ask fetch failed")
			return
		}
		point.DownAsk, point.HasDown = ask, true
	}()

	wg.Wait()
	return point
}
