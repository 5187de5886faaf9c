package repository

import (
	"context"
	"errors"
	"time"

	"github.com/badrx15/creavisionbot/internal/conversation/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID int64) (*domain.Conversation, error) {
	var conversation domain.Conversation
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, conversation *domain.Conversation) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"messages", "last_activity", "created_at"}),
		}).
		Create(conversation).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, userID int64) (int64, error) {
	result := db.WithContext(ctx).Exec(`DELETE FROM conversations WHERE user_id = ?`, userID)
	return result.RowsAffected, result.Error
}

func (r *repo) ListIdle(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]int64, error) {
	var userIDs []int64
	err := db.WithContext(ctx).Raw(
		`SELECT user_id FROM conversations WHERE last_activity < ? ORDER BY user_id`,
		cutoff,
	).Scan(&userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

func (r *repo) DeleteIdle(ctx context.Context, db *gorm.DB, userID int64, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM conversations WHERE user_id = ? AND last_activity < ?`,
		userID,
		cutoff,
	)
	return result.RowsAffected, result.Error
}
