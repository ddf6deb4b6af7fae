package wizard

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Bot bridges the Telegram long-polling API and the wizard state machine:
// messages and callback queries become inputs, replies become messages with
// inline keyboards.
type Bot struct {
	api    *tgbotapi.BotAPI
	wizard *Wizard
	logger *zap.Logger
}

func NewBot(token string, wizard *Wizard, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Bot{api: api, wizard: wizard, logger: logger}, nil
}

// Run consumes updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := b.api.GetUpdatesChan(updateCfg)

	b.logger.Info("Telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var input Input
	var chatID int64

	switch {
	case update.Message != nil:
		input = Input{
			UserID: update.Message.From.ID,
			Text:   update.Message.Text,
		}
		chatID = update.Message.Chat.ID
	case update.CallbackQuery != nil:
		input = Input{
			UserID: update.CallbackQuery.From.ID,
			Data:   update.CallbackQuery.Data,
		}
		chatID = update.CallbackQuery.Message.Chat.ID
		// Stop the client-side spinner; errors only affect UI polish.
		if _, err := b.api.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "")); err != nil {
			b.logger.Warn("Failed to answer callback query", zap.Error(err))
		}
	default:
		return
	}

	reply, err := b.wizard.Handle(ctx, input)
	if err != nil {
		b.logger.Error("Wizard input failed",
			zap.Int64("user_id", input.UserID),
			zap.Error(err))
		reply = &Reply{Text: "❌ Something went wrong, try again."}
	}
	if reply == nil {
		return
	}

	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if len(reply.Menu) > 0 {
		msg.ReplyMarkup = keyboard(reply.Menu)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send wizard reply", zap.Error(err))
	}
}

func keyboard(menu [][]Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(menu))
	for _, row := range menu {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(button.Label, button.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
