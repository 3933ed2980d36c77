// Package config loads bot configuration.
//
// Precedence, lowest to highest: per-index-mode defaults, environment
// variables, config.json, CLI flags (applied by the caller in main).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the bot
type Config struct {
	// Mode
	Simulate bool
	Debug    bool

	// Strategy
	IndexMode            string // rsi, macd, macd_signal, momentum
	TrendThreshold       float64
	ProfitThreshold      decimal.Decimal
	SLThreshold          decimal.Decimal
	Lookback             int
	PositionSizeShares   decimal.Decimal
	MACDFastPeriod       int
	MACDSlowPeriod       int
	MACDSignalPeriod     int
	MomentumThresholdPct float64
	UseMACDSLFilter      bool

	// Entry gates
	TradingStartWhenRemainingMinutes int             // 0 disables the gate
	LateEntryPriceCap                decimal.Decimal // skip entries above this price early in the window
	LateEntryMinElapsed              time.Duration   // until this much of the window has elapsed

	// Loop
	CheckInterval time.Duration
	InitialFund   decimal.Decimal

	// Assets (BTC is always traded)
	EnableETH bool
	EnableSOL bool
	EnableXRP bool

	// Polymarket API
	GammaAPIURL        string
	CLOBAPIURL         string
	UseWebSocketPrices bool

	// CLOB credentials
	CLOBApiKey     string
	CLOBApiSecret  string
	CLOBPassphrase string

	// Wallet
	WalletPrivateKey string
	SignerAddress    string
	FunderAddress    string
	SignatureType    int // 0=EOA, 1=Magic/Email, 2=Proxy

	// Telegram (optional)
	TelegramToken  string
	TelegramChatID int64

	// Database
	DatabasePath string
}

// strategy defaults per index mode
type modeDefaults struct {
	trendThreshold  float64
	profitThreshold decimal.Decimal
	slThreshold     decimal.Decimal
	lookback        int
	useMACDSLFilter bool
}

func defaultsFor(mode string) modeDefaults {
	switch mode {
	case "macd":
		return modeDefaults{0.0, decimal.NewFromFloat(0.05), decimal.NewFromFloat(0.05), 26, true}
	case "macd_signal", "macdsignal":
		return modeDefaults{0.0, decimal.NewFromFloat(0.05), decimal.NewFromFloat(0.05), 26, false}
	case "momentum":
		return modeDefaults{0.0, decimal.NewFromFloat(0.05), decimal.NewFromFloat(0.05), 10, false}
	default: // rsi
		return modeDefaults{90.0, decimal.NewFromFloat(0.02), decimal.NewFromFloat(0.02), 10, false}
	}
}

// Load loads configuration from environment variables, applying the
// per-mode strategy defaults for anything not set
func Load() (*Config, error) {
	mode := getEnv("INDEX_MODE", "rsi")
	md := defaultsFor(mode)

	cfg := &Config{
		// Mode
		Simulate: getEnvBool("SIMULATE", true),
		Debug:    getEnvBool("DEBUG", false),

		// Strategy
		IndexMode:            mode,
		TrendThreshold:       getEnvFloat("TREND_THRESHOLD", md.trendThreshold),
		ProfitThreshold:      getEnvDecimal("PROFIT_THRESHOLD", md.profitThreshold),
		SLThreshold:          getEnvDecimal("SL_THRESHOLD", md.slThreshold),
		Lookback:             getEnvInt("LOOKBACK", md.lookback),
		PositionSizeShares:   getEnvDecimal("POSITION_SIZE_SHARES", decimal.NewFromInt(10)),
		MACDFastPeriod:       getEnvInt("MACD_FAST_PERIOD", 12),
		MACDSlowPeriod:       getEnvInt("MACD_SLOW_PERIOD", 26),
		MACDSignalPeriod:     getEnvInt("MACD_SIGNAL_PERIOD", 9),
		MomentumThresholdPct: getEnvFloat("MOMENTUM_THRESHOLD_PCT", 2.0),
		UseMACDSLFilter:      getEnvBool("USE_MACD_SL_FILTER", md.useMACDSLFilter),

		// Entry gates
		TradingStartWhenRemainingMinutes: getEnvInt("TRADING_START_WHEN_REMAINING_MINUTES", 0),
		LateEntryPriceCap:                getEnvDecimal("LATE_ENTRY_PRICE_CAP", decimal.NewFromFloat(0.93)),
		LateEntryMinElapsed:              getEnvDuration("LATE_ENTRY_MIN_ELAPSED", 13*time.Minute),

		// Loop
		CheckInterval: getEnvDuration("CHECK_INTERVAL", 5000*time.Millisecond),
		InitialFund:   getEnvDecimal("INITIAL_FUND", decimal.NewFromInt(1000)),

		// Assets
		EnableETH: getEnvBool("ETH_ENABLED", true),
		EnableSOL: getEnvBool("SOLANA_ENABLED", true),
		EnableXRP: getEnvBool("XRP_ENABLED", true),

		// Polymarket API
		GammaAPIURL:        getEnv("POLYMARKET_API_URL", "https://gamma-api.polymarket.com"),
		CLOBAPIURL:         getEnv("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		UseWebSocketPrices: getEnvBool("USE_WEBSOCKET_PRICES", false),

		// CLOB credentials
		CLOBApiKey:     os.Getenv("CLOB_API_KEY"),
		CLOBApiSecret:  os.Getenv("CLOB_API_SECRET"),
		CLOBPassphrase: os.Getenv("CLOB_PASSPHRASE"),

		// Wallet
		WalletPrivateKey: os.Getenv("WALLET_PRIVATE_KEY"),
		SignerAddress:    os.Getenv("SIGNER_ADDRESS"),
		FunderAddress:    os.Getenv("FUNDER_ADDRESS"),
		SignatureType:    getEnvInt("SIGNATURE_TYPE", 0),

		// Telegram
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		// Database
		DatabasePath: getEnv("DATABASE_PATH", "data/updown.db"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

// fileConfig mirrors the optional config.json layout. Pointer fields
// distinguish "absent" from zero values.
type fileConfig struct {
	Simulate        *bool    `json:"simulate"`
	ProfitThreshold *float64 `json:"profit_threshold"`
	SLThreshold     *float64 `json:"stop_loss_threshold"`

	TrendingIndex *struct {
		Strategy         *string  `json:"strategy"`
		Threshold        *float64 `json:"threshold"`
		Lookback         *int     `json:"lookback"`
		MACDFastPeriod   *int     `json:"macd_fast_period"`
		MACDSlowPeriod   *int     `json:"macd_slow_period"`
		MACDSignalPeriod *int     `json:"macd_signal_period"`
		UseMACDSLFilter  *bool    `json:"use_macd_sl_filter"`
	} `json:"trending_index"`

	PositionSizeShares               *float64 `json:"position_size_shares"`
	TradingStartWhenRemainingMinutes *int     `json:"trading_start_when_remaining_minutes"`
	CheckIntervalMs                  *int     `json:"check_interval_ms"`
	InitialFund                      *float64 `json:"initial_fund"`

	ETHEnabled    *bool `json:"eth_enabled"`
	SolanaEnabled *bool `json:"solana_enabled"`
	XRPEnabled    *bool `json:"xrp_enabled"`

	GammaAPIURL   *string `json:"gamma_api_url"`
	CLOBAPIURL    *string `json:"clob_api_url"`
	SignatureType *int    `json:"signature_type"`
	FunderAddress *string `json:"funder_address"`

	DatabasePath *string `json:"database_path"`
}

// ApplyFile overlays settings from a JSON config file. A missing file
// is not an error; a malformed one is.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.TrendingIndex != nil && fc.TrendingIndex.Strategy != nil {
		// Switching mode re-applies that mode's defaults before any
		// other file overrides land on top
		c.IndexMode = *fc.TrendingIndex.Strategy
		md := defaultsFor(c.IndexMode)
		c.TrendThreshold = md.trendThreshold
		c.ProfitThreshold = md.profitThreshold
		c.SLThreshold = md.slThreshold
		c.Lookback = md.lookback
		c.UseMACDSLFilter = md.useMACDSLFilter
	}

	if fc.Simulate != nil {
		c.Simulate = *fc.Simulate
	}
	if fc.ProfitThreshold != nil {
		c.ProfitThreshold = decimal.NewFromFloat(*fc.ProfitThreshold)
	}
	if fc.SLThreshold != nil {
		c.SLThreshold = decimal.NewFromFloat(*fc.SLThreshold)
	}
	if ti := fc.TrendingIndex; ti != nil {
		if ti.Threshold != nil {
			c.TrendThreshold = *ti.Threshold
		}
		if ti.Lookback != nil {
			c.Lookback = *ti.Lookback
		}
		if ti.MACDFastPeriod != nil {
			c.MACDFastPeriod = *ti.MACDFastPeriod
		}
		if ti.MACDSlowPeriod != nil {
			c.MACDSlowPeriod = *ti.MACDSlowPeriod
		}
		if ti.MACDSignalPeriod != nil {
			c.MACDSignalPeriod = *ti.MACDSignalPeriod
		}
		if ti.UseMACDSLFilter != nil {
			c.UseMACDSLFilter = *ti.UseMACDSLFilter
		}
	}
	if fc.PositionSizeShares != nil {
		c.PositionSizeShares = decimal.NewFromFloat(*fc.PositionSizeShares)
	}
	if fc.TradingStartWhenRemainingMinutes != nil {
		c.TradingStartWhenRemainingMinutes = *fc.TradingStartWhenRemainingMinutes
	}
	if fc.CheckIntervalMs != nil {
		c.CheckInterval = time.Duration(*fc.CheckIntervalMs) * time.Millisecond
	}
	if fc.InitialFund != nil {
		c.InitialFund = decimal.NewFromFloat(*fc.InitialFund)
	}
	if fc.ETHEnabled != nil {
		c.EnableETH = *fc.ETHEnabled
	}
	if fc.SolanaEnabled != nil {
		c.EnableSOL = *fc.SolanaEnabled
	}
	if fc.XRPEnabled != nil {
		c.EnableXRP = *fc.XRPEnabled
	}
	if fc.GammaAPIURL != nil {
		c.GammaAPIURL = *fc.GammaAPIURL
	}
	if fc.CLOBAPIURL != nil {
		c.CLOBAPIURL = *fc.CLOBAPIURL
	}
	if fc.SignatureType != nil {
		c.SignatureType = *fc.SignatureType
	}
	if fc.FunderAddress != nil {
		c.FunderAddress = *fc.FunderAddress
	}
	if fc.DatabasePath != nil {
		c.DatabasePath = *fc.DatabasePath
	}

	return nil
}

// Validate checks that the configuration can actually run. Live mode
// needs signing material for the CLOB; simulation has no requirements.
func (c *Config) Validate() error {
	if c.Lookback <= 0 {
		return fmt.Errorf("lookback must be positive, got %d", c.Lookback)
	}
	if c.MACDFastPeriod >= c.MACDSlowPeriod {
		return fmt.Errorf("macd fast period %d must be below slow period %d", c.MACDFastPeriod, c.MACDSlowPeriod)
	}
	if c.PositionSizeShares.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("position size must be positive")
	}
	if !c.Simulate {
		if c.WalletPrivateKey == "" && (c.CLOBApiKey == "" || c.CLOBApiSecret == "") {
			return fmt.Errorf("live mode requires WALLET_PRIVATE_KEY or CLOB_API_KEY/CLOB_API_SECRET")
		}
	}
	return nil
}

// Assets returns the list of assets to trade. BTC is always included.
func (c *Config) Assets() []string {
	assets := []string{"BTC"}
	if c.EnableETH {
		assets = append(assets, "ETH")
	}
	if c.EnableSOL {
		assets = append(assets, "SOL")
	}
	if c.EnableXRP {
		assets = append(assets, "XRP")
	}
	return assets
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
