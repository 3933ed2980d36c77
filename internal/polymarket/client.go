// Package polymarket provides Polymarket API integration
//
// client.go - Unauthenticated market-data client.
// Resolves 15-minute up/down markets by timestamp slug via the gamma
// API, resolves their Up/Down token IDs via the CLOB API, and fetches
// best bid/ask quotes.
package polymarket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PeriodSeconds is the market window length
const PeriodSeconds = 900

// discoveryFallbacks is how many previous windows to try when the
// current window's slug has no event yet
const discoveryFallbacks = 3

// MarketRef identifies one 15-minute up/down market window
type MarketRef struct {
	Asset       string
	Slug        string
	ConditionID string
	Question    string
	PeriodTs    int64
	EndDate     time.Time
	Active      bool
	Closed      bool
	Dummy       bool // placeholder for assets without a live series
}

// TokenPair holds the Up and Down outcome token IDs of a market
type TokenPair struct {
	UpTokenID   string
	DownTokenID string
}

// Client fetches market data from the gamma and CLOB APIs
type Client struct {
	gammaURL   string
	clobURL    string
	httpClient *http.Client
}

// NewClient creates a market-data client
func NewClient(gammaURL, clobURL string) *Client {
	return &Client{
		gammaURL:   strings.TrimRight(gammaURL, "/"),
		clobURL:    strings.TrimRight(clobURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SlugFor builds the timestamp slug for an asset's 15-minute window,
// e.g. btc-updown-15m-1767707100
func SlugFor(asset string, periodTs int64) string {
	return fmt.Sprintf("%s-updown-15m-%d", strings.ToLower(asset), periodTs)
}

// ResolveMarket finds the market for the given window, falling back
// across the previous few windows when the current slug is not listed
// yet. Returns an error only when every candidate slug misses.
func (c *Client) ResolveMarket(asset string, periodTs int64) (*MarketRef, error) {
	for i := int64(0); i <= discoveryFallbacks; i++ {
		ts := periodTs - i*PeriodSeconds
		slug := SlugFor(asset, ts)

		ref, err := c.fetchEventBySlug(slug)
		if err != nil {
			log.Debug().Str("slug", slug).Err(err).Msg("Market lookup failed")
			continue
		}
		if ref == nil {
			continue
		}

		ref.Asset = strings.ToUpper(asset)
		ref.PeriodTs = ts
		if i > 0 {
			log.Debug().
				Str("asset", ref.Asset).
				Str("slug", slug).
				Int64("windows_back", i).
				Msg("Resolved market from a previous window")
		}
		return ref, nil
	}

	return nil, fmt.Errorf("no %s market found for window %d or the %d before it",
		asset, periodTs, discoveryFallbacks)
}

// DummyMarket returns an inactive placeholder for assets whose series
// does not exist; the trader skips it every tick without erroring.
func DummyMarket(asset string, periodTs int64) *MarketRef {
	return &MarketRef{
		Asset:    strings.ToUpper(asset),
		Slug:     SlugFor(asset, periodTs),
		PeriodTs: periodTs,
		Dummy:    true,
	}
}

func (c *Client) fetchEventBySlug(slug string) (*MarketRef, error) {
	url := fmt.Sprintf("%s/events?slug=%s", c.gammaURL, slug)

	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gamma API returned %d", resp.StatusCode)
	}

	var events []struct {
		Title   string `json:"title"`
		Slug    string `json:"slug"`
		Active  bool   `json:"active"`
		Closed  bool   `json:"closed"`
		EndDate string `json:"endDate"`
		Markets []struct {
			ConditionID string `json:"conditionId"`
			Question    string `json:"question"`
		} `json:"markets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, err
	}

	if len(events) == 0 || len(events[0].Markets) == 0 {
		return nil, nil
	}

	event := events[0]
	market := event.Markets[0]

	var endDate time.Time
	if event.EndDate != "" {
		endDate, _ = time.Parse(time.RFC3339, event.EndDate)
	}

	return &MarketRef{
		Slug:        event.Slug,
		ConditionID: market.ConditionID,
		Question:    event.Title,
		EndDate:     endDate,
		Active:      event.Active,
		Closed:      event.Closed,
	}, nil
}

// ResolveTokens fetches the Up/Down token IDs for a market from the
// CLOB API, matching on outcome labels
func (c *Client) ResolveTokens(conditionID string) (*TokenPair, error) {
	url := fmt.Sprintf("%s/markets/%s", c.clobURL, conditionID)

	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CLOB market lookup failed: %d", resp.StatusCode)
	}

	var market struct {
		Tokens []struct {
			TokenID string `json:"token_id"`
			Outcome string `json:"outcome"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&market); err != nil {
		return nil, err
	}

	if len(market.Tokens) < 2 {
		return nil, fmt.Errorf("market %s has %d tokens, want 2", conditionID, len(market.Tokens))
	}

	pair := &TokenPair{}
	for _, tok := range market.Tokens {
		switch strings.ToLower(tok.Outcome) {
		case "up", "yes":
			pair.UpTokenID = tok.TokenID
		case "down", "no":
			pair.DownTokenID = tok.TokenID
		}
	}
	// Outcome labels missing: fall back to listing order
	if pair.UpTokenID == "" || pair.DownTokenID == "" {
		pair.UpTokenID = market.Tokens[0].TokenID
		pair.DownTokenID = market.Tokens[1].TokenID
	}

	return pair, nil
}

// BestAsk returns the price a buyer pays for the token right now
func (c *Client) BestAsk(tokenID string) (decimal.Decimal, error) {
	return c.sidePrice(tokenID, "BUY")
}

// BestBid returns the price a seller receives for the token right now
func (c *Client) BestBid(tokenID string) (decimal.Decimal, error) {
	return c.sidePrice(tokenID, "SELL")
}

func (c *Client) sidePrice(tokenID, side string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/price?token_id=%s&side=%s", c.clobURL, tokenID, side)

	resp, err := c.httpClient.Get(url)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price lookup failed: %d", resp.StatusCode)
	}

	var result struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, err
	}

	return decimal.NewFromString(result.Price)
}
