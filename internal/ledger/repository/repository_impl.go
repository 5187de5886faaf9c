package repository

import (
	"context"
	"time"

	"github.com/badrx15/creavisionbot/internal/ledger/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Balance(ctx context.Context, db *gorm.DB, userID int64) (int64, bool, error) {
	var rows []int64
	err := db.WithContext(ctx).Raw(
		`SELECT credits FROM accounts WHERE user_id = ?`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0], true, nil
}

func (r *repo) DecrementClamped(ctx context.Context, db *gorm.DB, userID, amount int64, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET credits = CASE WHEN credits >= ? THEN credits - ? ELSE 0 END,
		     updated_at = ?
		 WHERE user_id = ?`,
		amount,
		amount,
		now,
		userID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, userID, amount int64, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts SET credits = credits + ?, updated_at = ? WHERE user_id = ?`,
		amount,
		now,
		userID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) InsertRecord(ctx context.Context, db *gorm.DB, record *domain.UsageRecord) (bool, error) {
	stmt := db.WithContext(ctx)
	if record.PaymentID != nil {
		stmt = stmt.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}},
			DoNothing: true,
		})
	}
	result := stmt.Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListRecords(ctx context.Context, db *gorm.DB, userID int64, beforeID snowflake.ID, limit int) ([]*domain.UsageRecord, error) {
	var records []*domain.UsageRecord
	stmt := db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Where("user_id = ?", userID)
	if beforeID != 0 {
		stmt = stmt.Where("id < ?", beforeID)
	}
	err := stmt.
		Order("id desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
