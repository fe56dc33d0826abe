package deliver

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ChatSender delivers one digest message to the chat channel.
type ChatSender interface {
	Send(ctx context.Context, text string) error
}

// Telegram sends digest messages to one chat, splitting long texts.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot and returns a sender for chatID.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Send delivers text, split into chunks under the per-message limit.
func (t *Telegram) Send(ctx context.Context, text string) error {
	for _, chunk := range SplitMessage(text, maxMessageLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(t.chatID, chunk)
		msg.DisableWebPagePreview = true
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("sending telegram message: %w", err)
		}
	}
	return nil
}
