package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, account *Account) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, userID int64) (*Account, error)
	UpdateProfile(ctx context.Context, db *gorm.DB, profile Profile, now time.Time) error
	SetAdmin(ctx context.Context, db *gorm.DB, userID int64, isAdmin bool, now time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, afterUserID int64, limit int) ([]*Account, error)
	FindPreference(ctx context.Context, db *gorm.DB, userID int64, key string) (*Preference, error)
	UpsertPreference(ctx context.Context, db *gorm.DB, pref *Preference) error
	DeleteCascade(ctx context.Context, db *gorm.DB, userID int64) (int64, error)
}
