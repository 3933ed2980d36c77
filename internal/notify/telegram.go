// Package notify sends trading notifications to Telegram.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/updown/internal/events"
)

// TelegramSink pushes cycle closes and window summaries to a chat.
// Sends run on a buffered channel so a slow Telegram API never blocks
// the tick loop; when the buffer fills, messages are dropped.
type TelegramSink struct {
	api    *tgbotapi.BotAPI
	chatID int64
	sendCh chan string
	stopCh chan struct{}
}

// NewTelegramSink connects to the Telegram API and starts the sender
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	s := &TelegramSink{
		api:    api,
		chatID: chatID,
		sendCh: make(chan string, 64),
		stopCh: make(chan struct{}),
	}
	go s.sendLoop()

	log.Info().Str("username", api.Self.UserName).Msg("Telegram notifications enabled")
	return s, nil
}

func (s *TelegramSink) Emit(e events.Event) {
	var text string

	switch e.Kind {
	case events.KindEntry:
		text = fmt.Sprintf("🟢 %s %s entry @ %s × %s",
			e.Asset, e.Side, e.EntryPrice.StringFixed(2), e.Size.String())
	case events.KindTakeProfit:
		text = fmt.Sprintf("💰 %s %s take profit @ %s (entry %s, PnL %s)",
			e.Asset, e.Side, e.ExitPrice.StringFixed(2), e.EntryPrice.StringFixed(2), e.PnL.StringFixed(2))
	case events.KindStopLoss:
		text = fmt.Sprintf("🛑 %s %s stop loss @ %s (entry %s, PnL %s)",
			e.Asset, e.Side, e.ExitPrice.StringFixed(2), e.EntryPrice.StringFixed(2), e.PnL.StringFixed(2))
	case events.KindSettleWin:
		text = fmt.Sprintf("✅ %s %s settled as win (entry %s, PnL %s)",
			e.Asset, e.Side, e.EntryPrice.StringFixed(2), e.PnL.StringFixed(2))
	case events.KindSettleLoss:
		text = fmt.Sprintf("❌ %s %s settled as loss (entry %s, PnL %s)",
			e.Asset, e.Side, e.EntryPrice.StringFixed(2), e.PnL.StringFixed(2))
	default:
		return // discards are log-only noise for chat
	}

	if e.Simulated {
		text = "[SIM] " + text
	}
	s.enqueue(text)
}

func (s *TelegramSink) EmitSummary(sum events.Summary) {
	text := fmt.Sprintf("📊 %s window closed: %dW/%dL, PnL %s, fund used %s",
		sum.Asset, sum.Wins, sum.Losses, sum.PnL.StringFixed(2), sum.FundUsed.StringFixed(2))
	if sum.Simulated {
		text = "[SIM] " + text
	}
	s.enqueue(text)
}

func (s *TelegramSink) enqueue(text string) {
	select {
	case s.sendCh <- text:
	default:
		log.Warn().Msg("Telegram send buffer full, dropping message")
	}
}

func (s *TelegramSink) sendLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case text := <-s.sendCh:
			msg := tgbotapi.NewMessage(s.chatID, text)
			if _, err := s.api.Send(msg); err != nil {
				log.Error().Err(err).Msg("Telegram send failed")
			}
		}
	}
}

// Close stops the sender
func (s *TelegramSink) Close() {
	close(s.stopCh)
}
