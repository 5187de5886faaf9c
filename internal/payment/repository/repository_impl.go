package repository

import (
	"context"
	"errors"
	"time"

	"github.com/badrx15/creavisionbot/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, paymentID string) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Take(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID int64, limit int) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, payment_id desc").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) MarkOrderCreated(ctx context.Context, db *gorm.DB, paymentID, orderID, checkoutURL string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, provider_order_id = ?, checkout_url = ?, updated_at = ?
		 WHERE payment_id = ? AND status = ?`,
		domain.StatusOrderCreated,
		orderID,
		checkoutURL,
		now,
		paymentID,
		domain.StatusPending,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, paymentID, captureID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?,
		     provider_capture_id = CASE WHEN ? <> '' THEN ? ELSE provider_capture_id END,
		     completed_at = ?,
		     updated_at = ?
		 WHERE payment_id = ? AND status <> ?`,
		domain.StatusCompleted,
		captureID,
		captureID,
		now,
		now,
		paymentID,
		domain.StatusCompleted,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, paymentID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payments SET status = ?, updated_at = ?
		 WHERE payment_id = ? AND status IN (?, ?)`,
		domain.StatusFailed,
		now,
		paymentID,
		domain.StatusPending,
		domain.StatusOrderCreated,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events SET processed_at = ?, payment_id = ? WHERE id = ?`,
		processedAt,
		paymentID,
		id,
	).Error
}
