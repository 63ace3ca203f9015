package notify

import (
	"context"
	"errors"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramConfig struct {
	Token  string `yaml:"-" json:"-"`
	ChatID int64  `yaml:"chat_id" json:"chat_id"`
	// Endpoint overrides the Bot API URL format, e.g. for a local bot server.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// Telegram sends plain-text messages to one chat.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, errors.New("telegram: token and chat id are required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbot.APIEndpoint
	}
	b, err := tgbot.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{bot: b, chatID: cfg.ChatID}, nil
}

var levelPrefix = map[Level]string{
	Info:  "ℹ️ ",
	Warn:  "⚠️ ",
	Alert: "🚨 ",
}

func (t *Telegram) Notify(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbot.NewMessage(t.chatID, levelPrefix[m.Level]+m.String())
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
