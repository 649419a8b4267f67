package alert

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier delivers visual notifications as bot messages to one chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier authenticates the bot and resolves the notification
// permission: no credentials is default, a rejected token is denied. Every
// bot API request is bounded by timeout.
func NewTelegramNotifier(token string, chatID int64, timeout time.Duration, logger *slog.Logger) (*TelegramNotifier, Permission) {
	if token == "" || chatID == 0 {
		logger.Info("telegram notifications not configured")
		return nil, PermissionDefault
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		logger.Warn("telegram bot authentication failed, notifications denied", "error", err)
		return nil, PermissionDenied
	}

	logger.Info("telegram notifications enabled", "bot", api.Self.UserName)
	return &TelegramNotifier{api: api, chatID: chatID}, PermissionGranted
}

func (t *TelegramNotifier) Notify(_ context.Context, title, body string) error {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("%s\n%s", title, body))
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
