package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Service interface {
	// GetContext returns the stored history, or nothing when absent or idle past the timeout.
	GetContext(ctx context.Context, userID int64) ([]Message, error)
	// AppendTurn records a user/assistant pair. The caller holds the user's lock;
	// tx joins the caller's transaction when non-nil.
	AppendTurn(ctx context.Context, tx *gorm.DB, userID int64, userText, assistantText string) error
	Reset(ctx context.Context, userID int64) error
	// Sweep deletes every conversation idle longer than timeout and returns the affected users.
	Sweep(ctx context.Context, timeout time.Duration) ([]int64, error)
}

var (
	ErrInvalidUser    = errors.New("invalid_user")
	ErrInvalidTimeout = errors.New("invalid_timeout")
	ErrCorruptHistory = errors.New("corrupt_history")
)
