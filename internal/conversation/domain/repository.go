package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, userID int64) (*Conversation, error)
	Upsert(ctx context.Context, db *gorm.DB, conversation *Conversation) error
	Delete(ctx context.Context, db *gorm.DB, userID int64) (int64, error)
	ListIdle(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]int64, error)
	// DeleteIdle deletes the row only if it is still older than cutoff.
	DeleteIdle(ctx context.Context, db *gorm.DB, userID int64, cutoff time.Time) (int64, error)
}
