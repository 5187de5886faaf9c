package notify

import (
	"github.com/badrx15/creavisionbot/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notify",
	fx.Provide(NewFromConfig),
)

// NewFromConfig selects the Telegram transport when a bot token is set.
func NewFromConfig(cfg config.Config, log *zap.Logger) (Notifier, error) {
	if cfg.Telegram.Token == "" {
		log.Warn("TELEGRAM_TOKEN not set, notifications are logged only")
		return NewLogNotifier(log), nil
	}
	n, err := NewTelegram(TelegramConfig{
		Token:               cfg.Telegram.Token,
		NotificationChannel: cfg.Telegram.NotificationChannel,
	}, log)
	if err != nil {
		return nil, err
	}
	return n, nil
}
