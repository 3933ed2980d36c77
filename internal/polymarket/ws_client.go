// ws_client.go - WebSocket best-price cache.
// Subscribes to the CLOB market channel and keeps the latest best
// bid/ask per token so the tick loop can read quotes without an HTTP
// round trip. Entries expire after a staleness window; readers fall
// back to the REST price endpoint when the cache misses.
package polymarket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	marketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	// quoteMaxAge bounds how stale a cached quote may be before
	// readers are told to fall back to REST
	quoteMaxAge = 30 * time.Second

	reconnectDelay = 5 * time.Second
)

// WSQuote is the cached top of book for one token
type WSQuote struct {
	TokenID   string
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	UpdatedAt time.Time
}

// WSClient maintains a live best-price cache over the market channel
type WSClient struct {
	mu          sync.RWMutex
	conn        *websocket.Conn
	isConnected bool
	assetIDs    []string // tokens to (re)subscribe

	quotesMu sync.RWMutex
	quotes   map[string]*WSQuote

	stopCh chan struct{}
}

type wsBookSnapshot struct {
	AssetID string `json:"asset_id"`
	Bids    []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"asks"`
}

type wsPriceChange struct {
	EventType    string `json:"event_type"`
	PriceChanges []struct {
		AssetID string `json:"asset_id"`
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	} `json:"price_changes"`
}

// NewWSClient creates a disconnected price cache
func NewWSClient() *WSClient {
	return &WSClient{
		quotes: make(map[string]*WSQuote),
		stopCh: make(chan struct{}),
	}
}

// Connect dials the market channel and starts the reader
func (c *WSClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isConnected {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.Dial(marketWSURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	c.conn = conn
	c.isConnected = true

	go c.readMessages()

	log.Info().Msg("Connected to market WebSocket")
	return nil
}

// Subscribe replaces the watched token set. At each period rollover
// the trader re-subscribes with the new window's tokens.
func (c *WSClient) Subscribe(assetIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected {
		return fmt.Errorf("not connected")
	}

	msg := map[string]interface{}{
		"type":       "market",
		"assets_ids": assetIDs,
	}

	msgBytes, _ := json.Marshal(msg)
	if err := c.conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	c.assetIDs = assetIDs
	log.Debug().Int("tokens", len(assetIDs)).Msg("Subscribed to market channel")

	return nil
}

// BestAsk returns the cached ask for a token. ok is false when the
// token is unknown, the quote is stale, or the book has no asks.
func (c *WSClient) BestAsk(tokenID string) (decimal.Decimal, bool) {
	c.quotesMu.RLock()
	defer c.quotesMu.RUnlock()

	q, ok := c.quotes[tokenID]
	if !ok || time.Since(q.UpdatedAt) > quoteMaxAge || q.BestAsk.IsZero() {
		return decimal.Zero, false
	}
	return q.BestAsk, true
}

// MarketAsks returns cached asks for both sides of a market. ok is
// false unless both sides have a fresh quote.
func (c *WSClient) MarketAsks(upTokenID, downTokenID string) (upAsk, downAsk decimal.Decimal, ok bool) {
	upAsk, okUp := c.BestAsk(upTokenID)
	downAsk, okDown := c.BestAsk(downTokenID)
	if !okUp || !okDown {
		return decimal.Zero, decimal.Zero, false
	}
	return upAsk, downAsk, true
}

func (c *WSClient) readMessages() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			log.Error().Err(err).Msg("WebSocket read error")
			c.handleDisconnect()
			return
		}

		c.handleMessage(message)
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var pc wsPriceChange
	if err := json.Unmarshal(data, &pc); err == nil && pc.EventType == "price_change" {
		c.applyPriceChange(&pc)
		return
	}

	// Initial subscription response is an array of book snapshots
	var snapshots []wsBookSnapshot
	if err := json.Unmarshal(data, &snapshots); err == nil && len(snapshots) > 0 {
		for i := range snapshots {
			c.applySnapshot(&snapshots[i])
		}
	}
}

func (c *WSClient) applySnapshot(snap *wsBookSnapshot) {
	var bestBid, bestAsk decimal.Decimal

	if len(snap.Bids) > 0 {
		bestBid, _ = decimal.NewFromString(snap.Bids[0].Price)
	}
	if len(snap.Asks) > 0 {
		bestAsk, _ = decimal.NewFromString(snap.Asks[0].Price)
	}

	c.quotesMu.Lock()
	c.quotes[snap.AssetID] = &WSQuote{
		TokenID:   snap.AssetID,
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		UpdatedAt: time.Now(),
	}
	c.quotesMu.Unlock()
}

func (c *WSClient) applyPriceChange(pc *wsPriceChange) {
	c.quotesMu.Lock()
	defer c.quotesMu.Unlock()

	for _, change := range pc.PriceChanges {
		bestBid, _ := decimal.NewFromString(change.BestBid)
		bestAsk, _ := decimal.NewFromString(change.BestAsk)

		q, ok := c.quotes[change.AssetID]
		if !ok {
			q = &WSQuote{TokenID: change.AssetID}
			c.quotes[change.AssetID] = q
		}
		q.BestBid = bestBid
		q.BestAsk = bestAsk
		q.UpdatedAt = time.Now()
	}
}

func (c *WSClient) handleDisconnect() {
	c.mu.Lock()
	c.isConnected = false
	assetIDs := c.assetIDs
	c.mu.Unlock()

	log.Warn().Msg("WebSocket disconnected, reconnecting in 5s...")
	time.Sleep(reconnectDelay)

	if err := c.Connect(); err != nil {
		log.Error().Err(err).Msg("Reconnect failed")
		return
	}
	if len(assetIDs) > 0 {
		if err := c.Subscribe(assetIDs); err != nil {
			log.Error().Err(err).Msg("Resubscribe failed")
		}
	}
}

// Close shuts down the connection and the reader
func (c *WSClient) Close() {
	close(c.stopCh)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}
	c.isConnected = false
}

// IsConnected reports whether the channel is up
func (c *WSClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}
