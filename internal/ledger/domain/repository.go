package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Balance(ctx context.Context, db *gorm.DB, userID int64) (int64, bool, error)
	// DecrementClamped subtracts amount and floors the balance at zero.
	DecrementClamped(ctx context.Context, db *gorm.DB, userID, amount int64, now time.Time) (int64, error)
	Increment(ctx context.Context, db *gorm.DB, userID, amount int64, now time.Time) (int64, error)
	// InsertRecord reports false when a record for the same payment id already exists.
	InsertRecord(ctx context.Context, db *gorm.DB, record *UsageRecord) (bool, error)
	ListRecords(ctx context.Context, db *gorm.DB, userID int64, beforeID snowflake.ID, limit int) ([]*UsageRecord, error)
}
