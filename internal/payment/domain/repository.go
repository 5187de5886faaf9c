package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, paymentID string) (*Payment, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID int64, limit int) ([]*Payment, error)
	MarkOrderCreated(ctx context.Context, db *gorm.DB, paymentID, orderID, checkoutURL string, now time.Time) (int64, error)
	// MarkCompleted only transitions rows that are not completed yet.
	MarkCompleted(ctx context.Context, db *gorm.DB, paymentID, captureID string, now time.Time) (int64, error)
	MarkFailed(ctx context.Context, db *gorm.DB, paymentID string, now time.Time) (int64, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID string, processedAt time.Time) error
}
