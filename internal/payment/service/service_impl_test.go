package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	accountdomain "github.com/badrx15/creavisionbot/internal/account/domain"
	"github.com/badrx15/creavisionbot/internal/clock"
	"github.com/badrx15/creavisionbot/internal/config"
	ledgerdomain "github.com/badrx15/creavisionbot/internal/ledger/domain"
	ledgerrepo "github.com/badrx15/creavisionbot/internal/ledger/repository"
	ledgerservice "github.com/badrx15/creavisionbot/internal/ledger/service"
	"github.com/badrx15/creavisionbot/internal/locks"
	"github.com/badrx15/creavisionbot/internal/migration"
	"github.com/badrx15/creavisionbot/internal/payment/adapters"
	paymentdomain "github.com/badrx15/creavisionbot/internal/payment/domain"
	"github.com/badrx15/creavisionbot/internal/payment/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeAdapter struct {
	mu          sync.Mutex
	status      paymentdomain.OrderStatus
	captureErr  error
	createErr   error
	lastRequest paymentdomain.OrderRequest
	captures    int32
}

func (f *fakeAdapter) CreateOrder(ctx context.Context, req paymentdomain.OrderRequest) (paymentdomain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return paymentdomain.Order{}, f.createErr
	}
	f.lastRequest = req
	return paymentdomain.Order{
		OrderID:     "ORDER-" + req.PaymentID,
		CheckoutURL: "https://pay.example.com/checkout/" + req.PaymentID,
		Status:      paymentdomain.OrderStatusCreated,
	}, nil
}

func (f *fakeAdapter) GetOrderStatus(ctx context.Context, orderID string) (paymentdomain.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeAdapter) CaptureOrder(ctx context.Context, orderID string) (paymentdomain.Capture, error) {
	atomic.AddInt32(&f.captures, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return paymentdomain.Capture{}, f.captureErr
	}
	f.status = paymentdomain.OrderStatusCompleted
	return paymentdomain.Capture{Status: paymentdomain.OrderStatusCompleted, CaptureID: "CAP-" + orderID}, nil
}

func (f *fakeAdapter) ParseWebhook(ctx context.Context, payload []byte, headers http.Header) (*paymentdomain.WebhookEvent, error) {
	return nil, paymentdomain.ErrWebhookMalformed
}

func (f *fakeAdapter) setStatus(status paymentdomain.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

type recordingNotifier struct {
	mu     sync.Mutex
	users  []int64
	admins []string
}

func (n *recordingNotifier) Notify(ctx context.Context, userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
	return nil
}

func (n *recordingNotifier) NotifyAdmins(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admins = append(n.admins, text)
	return nil
}

func (n *recordingNotifier) userCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.users)
}

type fixture struct {
	db       *gorm.DB
	svc      paymentdomain.Service
	ledger   ledgerdomain.Service
	adapter  *fakeAdapter
	notifier *recordingNotifier
	clock    *clock.FakeClock
}

func setupPaymentService(t *testing.T) *fixture {
	t.Helper()
	return setupPaymentServiceWithCatalog(t, config.DefaultCatalog())
}

func setupPaymentServiceWithCatalog(t *testing.T, catalog config.Catalog) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:payment_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fakeClock,
		Repo:  ledgerrepo.Provide(),
	})

	adapter := &fakeAdapter{status: paymentdomain.OrderStatusCreated}
	registry := adapters.NewRegistry()
	registry.Use("paypal", adapter)

	notifier := &recordingNotifier{}
	cfg := config.Config{
		PublicBaseURL: "https://bot.example.com",
		Payment:       config.PaymentConfig{Provider: "paypal"},
	}

	svc := NewService(Params{
		DB:        db,
		Log:       log,
		Cfg:       cfg,
		Catalog:   config.NewStaticCatalogHolder(catalog),
		Clock:     fakeClock,
		Locker:    locks.NewKeyedMutex(),
		LedgerSvc: ledgerSvc,
		Repo:      repository.Provide(),
		Adapters:  registry,
		Notifier:  notifier,
	})

	return &fixture{db: db, svc: svc, ledger: ledgerSvc, adapter: adapter, notifier: notifier, clock: fakeClock}
}

func (f *fixture) seedAccount(t *testing.T, userID, credits int64) {
	t.Helper()
	now := f.clock.Now()
	if err := f.db.Create(&accountdomain.Account{
		UserID:       userID,
		Credits:      credits,
		RegisteredAt: now,
		UpdatedAt:    now,
	}).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func (f *fixture) purchaseRecords(t *testing.T, paymentID string) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&ledgerdomain.UsageRecord{}).
		Where("payment_id = ? AND source_type = ?", paymentID, ledgerdomain.SourceTypePurchase).
		Count(&count).Error; err != nil {
		t.Fatalf("count records: %v", err)
	}
	return count
}

func TestInitiatePurchaseCreatesOrder(t *testing.T) {
	f := setupPaymentService(t)
	f.seedAccount(t, 42, 0)
	ctx := context.Background()

	checkout, err := f.svc.InitiatePurchase(ctx, 42, "basic")
	require.NoError(t, err)
	assert.NotEmpty(t, checkout.PaymentID)
	assert.Equal(t, int64(50), checkout.Credits)
	assert.Equal(t, int64(500), checkout.AmountMinor)
	assert.Equal(t, "USD", checkout.Currency)
	assert.Contains(t, checkout.CheckoutURL, checkout.PaymentID)

	payment, err := f.svc.Get(ctx, checkout.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusOrderCreated, payment.Status)
	assert.Equal(t, "ORDER-"+checkout.PaymentID, payment.ProviderOrderID)

	req := f.adapter.lastRequest
	assert.Equal(t, "https://bot.example.com/payments/success?payment_id="+checkout.PaymentID, req.ReturnURL)
	assert.Equal(t, "https://bot.example.com/payments/cancel?payment_id="+checkout.PaymentID, req.CancelURL)

	correlation, err := paymentdomain.ParseCorrelation(req.CorrelationToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), correlation.UserID)
	assert.Equal(t, checkout.PaymentID, correlation.PaymentID)
	assert.Equal(t, int64(50), correlation.Credits)
}

func TestInitiatePurchaseRejectsUnknownPackage(t *testing.T) {
	f := setupPaymentService(t)

	_, err := f.svc.InitiatePurchase(context.Background(), 42, "gold")
	assert.ErrorIs(t, err, paymentdomain.ErrUnknownPackage)

	_, err = f.svc.InitiatePurchase(context.Background(), 0, "basic")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidUser)
}

func TestInitiatePurchaseProviderFailureLeavesPending(t *testing.T) {
	f := setupPaymentService(t)
	f.adapter.createErr = errors.New("connection refused")

	_, err := f.svc.InitiatePurchase(context.Background(), 42, "basic")
	require.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)

	var payments []paymentdomain.Payment
	require.NoError(t, f.db.Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, paymentdomain.StatusPending, payments[0].Status)
}

func TestVerifyApprovedCapturesAndCredits(t *testing.T) {
	f := setupPaymentService(t)
	f.seedAccount(t, 42, 3)
	ctx := context.Background()

	checkout, err := f.svc.InitiatePurchase(ctx, 42, "basic")
	require.NoError(t, err)

	f.adapter.setStatus(paymentdomain.OrderStatusApproved)
	ok, err := f.svc.Verify(ctx, checkout.PaymentID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.adapter.captures))

	payment, err := f.svc.Get(ctx, checkout.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCompleted, payment.Status)
	assert.Equal(t, "CAP-ORDER-"+checkout.PaymentID, payment.ProviderCaptureID)
	assert.NotNil(t, payment.CompletedAt)

	balance, err := f.ledger.Balance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(53), balance)
	assert.Equal(t, int64(1), f.purchaseRecords(t, checkout.PaymentID))
	assert.Equal(t, 1, f.notifier.userCount())
}

func TestVerifyTwiceCreditsOnce(t *testing.T) {
	f := setupPaymentService(t)
	f.seedAccount(t, 7, 0)
	ctx := context.Background()

	checkout, err := f.svc.InitiatePurchase(ctx, 7, "standard")
	require.NoError(t, err)
	f.adapter.setStatus(paymentdomain.OrderStatusCompleted)

	for i := 0; i < 2; i++ {
		ok, err := f.svc.Verify(ctx, checkout.PaymentID)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	balance, err := f.ledger.Balance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance)
	assert.Equal(t, int64(1), f.purchaseRecords(t, checkout.PaymentID))
	assert.Equal(t, 1, f.notifier.userCount())
}

func TestVerifyAndWebhookRaceCreditsOnce(t *testing.T) {
	f := setupPaymentService(t)
	f.seedAccount(t, 9, 1)
	ctx := context.Background()

	checkout, err := f.svc.InitiatePurchase(ctx, 9, "basic")
	require.NoError(t, err)
	f.adapter.setStatus(paymentdomain.OrderStatusCompleted)

	token := paymentdomain.Correlation{UserID: 9, PaymentID: checkout.PaymentID, PackageID: "basic", Credits: 50}.Token()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Verify(ctx, checkout.PaymentID); err != nil {
				errs <- err
			}
		}()
		go func(i int) {
			defer wg.Done()
			errs <- f.svc.HandleWebhookEvent(ctx, &paymentdomain.WebhookEvent{
				Provider:         "paypal",
				ProviderEventID:  fmt.Sprintf("WH-%d", i),
				Type:             "PAYMENT.CAPTURE.COMPLETED",
				Kind:             paymentdomain.EventKindCaptureCompleted,
				CorrelationToken: token,
				CaptureID:        "CAP-1",
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	balance, err := f.ledger.Balance(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(51), balance)
	assert.Equal(t, int64(1), f.purchaseRecords(t, checkout.PaymentID))
	assert.Equal(t, 1, f.notifier.userCount())
}

func TestVerifyPendingStatuses(t *testing.T) {
	f := setupPaymentService(t)
	f.seedAccount(t, 5, 0)
	ctx := context.Background()

	checkout, err := f.svc.InitiatePurchase(ctx, 5, "basic")
	require.NoError(t, err)

	f.adapter.setStatus(paymentdomain.OrderStatusCreated)
	ok, err := f.svc.Verify(ctx, checkout.PaymentID)
	require.NoError(t, err)
	assert.False(t, ok)

	f.adapter.mu.Lock()
	f.adapter.status = paymentdomain.OrderStatusApproved
	f.adapter.captureErr = errors.New("capture declined")
	f.adapter.mu.Unlock()
	ok, err = f.svc.Verify(ctx, checkout.PaymentID)
	require.NoError(t, err)
	assert.False(t, ok)

	balance, err := f.ledger.Balance(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestVerifyUnknownPayment(t *testing.T) {
	f := setupPaymentService(t)

	ok, err := f.svc.Verify(context.Background(), "does-not-exist")
	assert.False(t, ok)
	assert.ErrorIs(t, err, paymentdomain.ErrUnknownPayment)
}

func TestHandleWebhookDropsMalformedAndMismatched(t *testing.T) {
	f := setupPaymentService(t)
	f.seedAccount(t, 11, 0)
	ctx := context.Background()

	checkout, err := f.svc.InitiatePurchase(ctx, 11, "basic")
	require.NoError(t, err)

	events := []*paymentdomain.WebhookEvent{
		{Kind: paymentdomain.EventKindCaptureCompleted, CorrelationToken: "garbage"},
		{Kind: paymentdomain.EventKindCaptureCompleted, CorrelationToken: "11:unknown-payment:basic:50"},
		{Kind: paymentdomain.EventKindCaptureCompleted, CorrelationToken: fmt.Sprintf("12:%s:basic:50", checkout.PaymentID)},
		{Kind: paymentdomain.EventKindCaptureCompleted, CorrelationToken: fmt.Sprintf("11:%s:basic:5000", checkout.PaymentID)},
		{Kind: paymentdomain.EventKindIgnored},
		nil,
	}
	for _, event := range events {
		require.NoError(t, f.svc.HandleWebhookEvent(ctx, event))
	}

	payment, err := f.svc.Get(ctx, checkout.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusOrderCreated, payment.Status)

	balance, err := f.ledger.Balance(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestHandleWebhookApprovedTriggersCapture(t *testing.T) {
	f := setupPaymentService(t)
	f.seedAccount(t, 13, 0)
	ctx := context.Background()

	checkout, err := f.svc.InitiatePurchase(ctx, 13, "basic")
	require.NoError(t, err)
	f.adapter.setStatus(paymentdomain.OrderStatusApproved)

	err = f.svc.HandleWebhookEvent(ctx, &paymentdomain.WebhookEvent{
		Provider:         "paypal",
		Kind:             paymentdomain.EventKindOrderApproved,
		CorrelationToken: paymentdomain.Correlation{UserID: 13, PaymentID: checkout.PaymentID, PackageID: "basic", Credits: 50}.Token(),
	})
	require.NoError(t, err)

	balance, err := f.ledger.Balance(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
}

func TestCancel(t *testing.T) {
	f := setupPaymentService(t)
	f.seedAccount(t, 21, 0)
	ctx := context.Background()

	checkout, err := f.svc.InitiatePurchase(ctx, 21, "basic")
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, checkout.PaymentID))
	require.NoError(t, f.svc.Cancel(ctx, checkout.PaymentID))

	payment, err := f.svc.Get(ctx, checkout.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusFailed, payment.Status)

	assert.ErrorIs(t, f.svc.Cancel(ctx, "missing"), paymentdomain.ErrUnknownPayment)

	second, err := f.svc.InitiatePurchase(ctx, 21, "basic")
	require.NoError(t, err)
	f.adapter.setStatus(paymentdomain.OrderStatusCompleted)
	ok, err := f.svc.Verify(ctx, second.PaymentID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ErrorIs(t, f.svc.Cancel(ctx, second.PaymentID), paymentdomain.ErrInvalidTransition)
}

func TestListByUser(t *testing.T) {
	f := setupPaymentService(t)
	f.seedAccount(t, 31, 0)
	ctx := context.Background()

	for _, pkg := range []string{"basic", "premium"} {
		_, err := f.svc.InitiatePurchase(ctx, 31, pkg)
		require.NoError(t, err)
	}

	payments, err := f.svc.ListByUser(ctx, 31)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	_, err = f.svc.ListByUser(ctx, 0)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidUser)
}

func TestInitiatePurchaseUsesCurrencyMinorUnits(t *testing.T) {
	catalog := config.DefaultCatalog()
	catalog.Packages = append(catalog.Packages,
		config.CreditPackage{ID: "yen", Name: "Yen Pack", Credits: 40, Price: 500, Currency: "jpy"},
		config.CreditPackage{ID: "cents", Name: "Cents Pack", Credits: 20, Price: 19.99, Currency: "EUR"},
	)
	f := setupPaymentServiceWithCatalog(t, catalog)
	f.seedAccount(t, 41, 0)
	ctx := context.Background()

	_, err := f.svc.InitiatePurchase(ctx, 41, "yen")
	require.NoError(t, err)
	assert.Equal(t, int64(500), f.adapter.lastRequest.AmountMinor)
	assert.Equal(t, "JPY", f.adapter.lastRequest.Currency)

	_, err = f.svc.InitiatePurchase(ctx, 41, "cents")
	require.NoError(t, err)
	assert.Equal(t, int64(1999), f.adapter.lastRequest.AmountMinor)
}

func TestInitiatePurchaseRejectsUnsupportedCurrency(t *testing.T) {
	catalog := config.DefaultCatalog()
	catalog.Packages = append(catalog.Packages,
		config.CreditPackage{ID: "forint", Name: "Forint Pack", Credits: 40, Price: 1500, Currency: "HUF"},
	)
	f := setupPaymentServiceWithCatalog(t, catalog)

	_, err := f.svc.InitiatePurchase(context.Background(), 41, "forint")
	require.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)

	var count int64
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}
