package notify

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier is the fire-and-forget operator channel. Delivery failures are
// logged and never escalated to the caller.
type Notifier interface {
	Send(text string)
}

// TelegramNotifier delivers messages to a fixed operator chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

func NewTelegram(token string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}, nil
}

func (n *TelegramNotifier) Send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("Telegram send failed", zap.Error(err))
	}
}

// Nop discards notifications. Used when no channel is configured.
type Nop struct{}

func (Nop) Send(string) {}
