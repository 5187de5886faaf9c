package repository

import (
	"context"
	"errors"
	"time"

	"github.com/badrx15/creavisionbot/internal/account/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, account *domain.Account) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(account)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID int64) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repo) UpdateProfile(ctx context.Context, db *gorm.DB, profile domain.Profile, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET username = ?, first_name = ?, last_name = ?, updated_at = ?
		 WHERE user_id = ?`,
		profile.Username,
		profile.FirstName,
		profile.LastName,
		now,
		profile.UserID,
	).Error
}

func (r *repo) SetAdmin(ctx context.Context, db *gorm.DB, userID int64, isAdmin bool, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts SET is_admin = ?, updated_at = ? WHERE user_id = ?`,
		isAdmin,
		now,
		userID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, afterUserID int64, limit int) ([]*domain.Account, error) {
	var accounts []*domain.Account
	stmt := db.WithContext(ctx).Model(&domain.Account{})
	if afterUserID != 0 {
		stmt = stmt.Where("user_id > ?", afterUserID)
	}
	err := stmt.
		Order("user_id asc").
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) FindPreference(ctx context.Context, db *gorm.DB, userID int64, key string) (*domain.Preference, error) {
	var pref domain.Preference
	err := db.WithContext(ctx).
		Where("user_id = ? AND pref_key = ?", userID, key).
		Take(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *repo) UpsertPreference(ctx context.Context, db *gorm.DB, pref *domain.Preference) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "pref_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(pref).Error
}

// DeleteCascade removes dependents before the account row. Callers pass a transaction.
func (r *repo) DeleteCascade(ctx context.Context, db *gorm.DB, userID int64) (int64, error) {
	dependents := []string{
		`DELETE FROM conversations WHERE user_id = ?`,
		`DELETE FROM usage_records WHERE user_id = ?`,
		`DELETE FROM payments WHERE user_id = ?`,
		`DELETE FROM user_preferences WHERE user_id = ?`,
	}
	for _, stmt := range dependents {
		if err := db.WithContext(ctx).Exec(stmt, userID).Error; err != nil {
			return 0, err
		}
	}

	result := db.WithContext(ctx).Exec(`DELETE FROM accounts WHERE user_id = ?`, userID)
	return result.RowsAffected, result.Error
}
