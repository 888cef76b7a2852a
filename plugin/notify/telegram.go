package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/hrygo/tutorsense/ai/session"
)

// TelegramChannel sends guardian events to a Telegram chat.
type TelegramChannel struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramChannel creates a Telegram channel for the configured bot token
// and guardian chat.
func NewTelegramChannel(botToken string, chatID int64) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	return &TelegramChannel{bot: bot, chatID: chatID}, nil
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

// Send delivers the event as a plain-text Telegram message.
func (t *TelegramChannel) Send(event session.GuardianEvent) error {
	text := fmt.Sprintf("[%s] %s\nlearner: %s module: %s session: %s",
		event.Kind, event.Message, event.UserID, event.Module, event.SessionID)

	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrap(err, "failed to send telegram notification")
	}
	return nil
}
