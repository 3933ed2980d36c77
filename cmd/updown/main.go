// Updown - 15-minute Up/Down market trading bot for Polymarket
//
// Trades the binary "will the price be up or down" markets that roll
// every 15 minutes. A trend index (RSI, MACD, MACD signal crossover,
// or momentum) over the outcome-token prices picks a side; entries are
// confirmed by balance polling; positions exit via take-profit,
// stop-loss, or window settlement.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/updown/internal/config"
	"github.com/web3guy0/updown/internal/database"
	"github.com/web3guy0/updown/internal/events"
	"github.com/web3guy0/updown/internal/monitor"
	"github.com/web3guy0/updown/internal/notify"
	"github.com/web3guy0/updown/internal/polymarket"
	"github.com/web3guy0/updown/internal/trading"
)

const version = "1.2.0"

// liveGateway satisfies trading.Exchange with the authenticated client
type liveGateway struct {
	*polymarket.CLOBClient
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Flags beat config.json beats environment beats mode defaults
	var (
		flagConfig   = flag.String("config", "config.json", "path to config file")
		flagSimulate = flag.Bool("simulate", false, "force simulation mode")
		flagLive     = flag.Bool("live", false, "force live trading mode")
		flagMode     = flag.String("index", "", "trend index: rsi, macd, macd_signal, momentum")
		flagShares   = flag.Float64("shares", 0, "position size in shares")
		flagDebug    = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.ApplyFile(*flagConfig); err != nil {
		log.Fatal().Err(err).Msg("Failed to load config file")
	}

	if *flagMode != "" {
		cfg.IndexMode = *flagMode
	}
	if *flagShares > 0 {
		cfg.PositionSizeShares = decimal.NewFromFloat(*flagShares)
	}
	if *flagSimulate {
		cfg.Simulate = true
	}
	if *flagLive {
		cfg.Simulate = false
	}
	if *flagDebug {
		cfg.Debug = true
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("version", version).
		Str("index", cfg.IndexMode).
		Strs("assets", cfg.Assets()).
		Bool("simulate", cfg.Simulate).
		Msg("Updown bot starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ====== SINKS ======

	sinks := events.MultiSink{events.LogSink{}}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	sinks = append(sinks, database.NewStoreSink(db))

	var telegram *notify.TelegramSink
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		telegram, err = notify.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram disabled")
		} else {
			sinks = append(sinks, telegram)
		}
	}

	// ====== MARKET DATA ======

	marketClient := polymarket.NewClient(cfg.GammaAPIURL, cfg.CLOBAPIURL)

	var ws *polymarket.WSClient
	if cfg.UseWebSocketPrices {
		ws = polymarket.NewWSClient()
		if err := ws.Connect(); err != nil {
			log.Warn().Err(err).Msg("WebSocket connect failed, using HTTP polling")
			ws = nil
		}
	}

	mon := monitor.New(marketClient, ws, cfg.Assets())

	// ====== EXECUTION ======

	var fill trading.FillStrategy = trading.ImmediateFill{}
	var exch trading.Exchange
	if !cfg.Simulate {
		clob, err := polymarket.NewCLOBClient(
			cfg.CLOBAPIURL,
			cfg.CLOBApiKey,
			cfg.CLOBApiSecret,
			cfg.CLOBPassphrase,
			cfg.WalletPrivateKey,
			cfg.SignerAddress,
			cfg.FunderAddress,
			cfg.SignatureType,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize CLOB client")
		}
		if err := clob.TestConnection(); err != nil {
			log.Fatal().Err(err).Msg("CLOB API unreachable")
		}
		if balance, err := clob.CollateralBalance(); err == nil {
			log.Info().Str("usdc", balance.StringFixed(2)).Msg("Collateral balance")
		}

		exch = liveGateway{clob}
		fill = trading.NewBalancePollFill(exch, cfg.ProfitThreshold, cfg.SLThreshold, cfg.UseMACDSLFilter)
	} else {
		log.Info().Msg("Simulation mode: fills are instant, no orders are sent")
	}

	trader, err := trading.New(cfg, mon, fill, exch, sinks)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create trader")
	}

	go func() {
		if err := trader.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Trader stopped")
			cancel()
		}
	}()

	log.Info().Msg("All systems online")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Received shutdown signal")
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down...")
	cancel()

	if telegram != nil {
		telegram.Close()
	}
	if ws != nil {
		ws.Close()
	}
	time.Sleep(200 * time.Millisecond)

	log.Info().Msg("Goodbye!")
}
