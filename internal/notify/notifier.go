package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Notifier delivers out-of-band text to users and to the admin channel.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
	NotifyAdmins(ctx context.Context, text string) error
}

var ErrInvalidRecipient = errors.New("invalid_recipient")

// LogNotifier writes notifications to the log. Used when no chat transport is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify.log")}
}

func (n *LogNotifier) Notify(ctx context.Context, userID int64, text string) error {
	if userID == 0 {
		return ErrInvalidRecipient
	}
	n.log.Info("user notification", zap.Int64("user_id", userID), zap.String("text", text))
	return nil
}

func (n *LogNotifier) NotifyAdmins(ctx context.Context, text string) error {
	n.log.Info("admin notification", zap.String("text", text))
	return nil
}

type NoOpNotifier struct{}

func (NoOpNotifier) Notify(ctx context.Context, userID int64, text string) error { return nil }

func (NoOpNotifier) NotifyAdmins(ctx context.Context, text string) error { return nil }
