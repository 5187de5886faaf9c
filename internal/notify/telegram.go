package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

type TelegramConfig struct {
	Token               string
	NotificationChannel string
	// ServerURL overrides the Bot API endpoint.
	ServerURL  string
	HTTPClient *http.Client
}

// TelegramNotifier sends plain messages through the Bot API.
type TelegramNotifier struct {
	bot     *bot.Bot
	channel string
	log     *zap.Logger
}

// NewTelegram skips getMe so startup does not depend on Telegram being reachable.
func NewTelegram(cfg TelegramConfig, log *zap.Logger) (*TelegramNotifier, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	opts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(client.Timeout, client),
	}
	if url := strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/"); url != "" {
		opts = append(opts, bot.WithServerURL(url))
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{
		bot:     b,
		channel: strings.TrimSpace(cfg.NotificationChannel),
		log:     log.Named("notify.telegram"),
	}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, userID int64, text string) error {
	if userID == 0 {
		return ErrInvalidRecipient
	}
	return n.send(ctx, userID, text)
}

// NotifyAdmins posts to the notification channel. Without a channel it is a no-op.
func (n *TelegramNotifier) NotifyAdmins(ctx context.Context, text string) error {
	if n.channel == "" {
		return nil
	}
	if id, err := strconv.ParseInt(n.channel, 10, 64); err == nil {
		return n.send(ctx, id, text)
	}
	return n.send(ctx, n.channel, text)
}

func (n *TelegramNotifier) send(ctx context.Context, chatID any, text string) error {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		n.log.Warn("telegram send rejected", zap.Any("chat_id", chatID), zap.Error(err))
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
