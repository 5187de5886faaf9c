package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/badrx15/creavisionbot/internal/account/domain"
	"github.com/badrx15/creavisionbot/internal/account/repository"
	"github.com/badrx15/creavisionbot/internal/clock"
	"github.com/badrx15/creavisionbot/internal/config"
	conversationdomain "github.com/badrx15/creavisionbot/internal/conversation/domain"
	ledgerdomain "github.com/badrx15/creavisionbot/internal/ledger/domain"
	"github.com/badrx15/creavisionbot/internal/locks"
	"github.com/badrx15/creavisionbot/internal/migration"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type adminRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *adminRecorder) Notify(ctx context.Context, userID int64, text string) error { return nil }

func (r *adminRecorder) NotifyAdmins(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	return nil
}

func setupAccountService(t *testing.T) (domain.Service, *gorm.DB, *adminRecorder) {
	t.Helper()
	return setupAccountServiceWithLocker(t, locks.NewKeyedMutex())
}

func setupAccountServiceWithLocker(t *testing.T, locker locks.Locker) (domain.Service, *gorm.DB, *adminRecorder) {
	t.Helper()

	dsn := fmt.Sprintf("file:account_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	recorder := &adminRecorder{}
	svc := New(Params{
		DB:  db,
		Log: zap.NewNop(),
		Cfg: config.Config{
			Credits:      config.CreditsConfig{Default: 5},
			AdminUserIDs: []int64{100},
		},
		Catalog:  config.NewStaticCatalogHolder(config.DefaultCatalog()),
		Clock:    clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		Locker:   locker,
		Notifier: recorder,
	})
	return svc, db, recorder
}

func TestEnsureCreatesOnce(t *testing.T) {
	svc, _, recorder := setupAccountService(t)
	ctx := context.Background()

	account, created, err := svc.Ensure(ctx, domain.Profile{UserID: 1, Username: "@alice", FirstName: "Alice"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(5), account.Credits)
	assert.Equal(t, "alice", account.Username)
	assert.False(t, account.IsAdmin)

	account, created, err = svc.Ensure(ctx, domain.Profile{UserID: 1, Username: "alice_new", FirstName: "Alice"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "alice_new", account.Username)
	assert.Equal(t, int64(5), account.Credits)

	require.Len(t, recorder.messages, 1)
	assert.Contains(t, recorder.messages[0], "@alice")

	_, _, err = svc.Ensure(ctx, domain.Profile{})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestEnsureMarksConfiguredAdmins(t *testing.T) {
	svc, _, _ := setupAccountService(t)

	account, _, err := svc.Ensure(context.Background(), domain.Profile{UserID: 100})
	require.NoError(t, err)
	assert.True(t, account.IsAdmin)
}

func TestListPaginates(t *testing.T) {
	svc, _, _ := setupAccountService(t)
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		_, _, err := svc.Ensure(ctx, domain.Profile{UserID: id})
		require.NoError(t, err)
	}

	first, err := svc.List(ctx, domain.ListAccountRequest{PageSize: 3})
	require.NoError(t, err)
	require.Len(t, first.Accounts, 3)
	assert.True(t, first.HasMore)

	second, err := svc.List(ctx, domain.ListAccountRequest{PageSize: 3, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Accounts, 2)
	assert.Equal(t, int64(4), second.Accounts[0].UserID)
	assert.False(t, second.HasMore)
}

func TestSetAdmin(t *testing.T) {
	svc, _, _ := setupAccountService(t)
	ctx := context.Background()

	_, _, err := svc.Ensure(ctx, domain.Profile{UserID: 3})
	require.NoError(t, err)
	require.NoError(t, svc.SetAdmin(ctx, 3, true))

	account, err := svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.True(t, account.IsAdmin)

	assert.ErrorIs(t, svc.SetAdmin(ctx, 99, true), domain.ErrAccountNotFound)
}

func TestPersonaPreference(t *testing.T) {
	svc, _, _ := setupAccountService(t)
	ctx := context.Background()

	persona, err := svc.Persona(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPersonaID, persona.ID)

	persona, err = svc.SetPersona(ctx, 1, "translator")
	require.NoError(t, err)
	assert.Equal(t, "translator", persona.ID)

	persona, err = svc.Persona(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "translator", persona.ID)

	_, err = svc.SetPersona(ctx, 1, "pirate")
	assert.ErrorIs(t, err, domain.ErrUnknownPersona)

	require.NoError(t, svc.SetPreference(ctx, 1, domain.PreferenceKeyPersona, "retired"))
	persona, err = svc.Persona(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPersonaID, persona.ID)

	assert.ErrorIs(t, svc.SetPreference(ctx, 1, " ", "x"), domain.ErrInvalidPreference)
}

func TestDeleteCascades(t *testing.T) {
	svc, db, _ := setupAccountService(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, _, err := svc.Ensure(ctx, domain.Profile{UserID: 8})
	require.NoError(t, err)
	require.NoError(t, svc.SetPreference(ctx, 8, "lang", "es"))
	require.NoError(t, db.Create(&ledgerdomain.UsageRecord{
		ID: 1, UserID: 8, SourceType: ledgerdomain.SourceTypeTurn, CreditsDelta: -1, CreatedAt: now,
	}).Error)
	require.NoError(t, db.Create(&conversationdomain.Conversation{
		UserID: 8, Messages: datatypes.JSON(`[]`), LastActivity: now, CreatedAt: now,
	}).Error)

	require.NoError(t, svc.Delete(ctx, 8))

	_, err = svc.Get(ctx, 8)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	for _, table := range []string{"usage_records", "conversations", "user_preferences"} {
		var count int64
		require.NoError(t, db.Table(table).Where("user_id = ?", 8).Count(&count).Error)
		assert.Zero(t, count, table)
	}

	assert.ErrorIs(t, svc.Delete(ctx, 8), domain.ErrAccountNotFound)
}

func TestDeleteWaitsForUserLock(t *testing.T) {
	locker := locks.NewKeyedMutex()
	svc, _, _ := setupAccountServiceWithLocker(t, locker)
	ctx := context.Background()

	_, _, err := svc.Ensure(ctx, domain.Profile{UserID: 9})
	require.NoError(t, err)

	unlock, err := locker.Lock(ctx, locks.UserKey(9))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.Delete(ctx, 9) }()

	select {
	case err := <-done:
		t.Fatalf("delete finished while the user lock was held: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	_, err = svc.Get(ctx, 9)
	require.NoError(t, err)

	unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("delete did not finish after the lock was released")
	}

	_, err = svc.Get(ctx, 9)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestDeleteHonorsCancelledLockWait(t *testing.T) {
	locker := locks.NewKeyedMutex()
	svc, _, _ := setupAccountServiceWithLocker(t, locker)

	_, _, err := svc.Ensure(context.Background(), domain.Profile{UserID: 10})
	require.NoError(t, err)

	unlock, err := locker.Lock(context.Background(), locks.UserKey(10))
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Delete(ctx, 10), context.DeadlineExceeded)

	_, err = svc.Get(context.Background(), 10)
	assert.NoError(t, err)
}
