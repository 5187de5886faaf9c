package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/badrx15/creavisionbot/internal/clock"
	"github.com/badrx15/creavisionbot/internal/config"
	ledgerdomain "github.com/badrx15/creavisionbot/internal/ledger/domain"
	"github.com/badrx15/creavisionbot/internal/locks"
	"github.com/badrx15/creavisionbot/internal/notify"
	obsmetrics "github.com/badrx15/creavisionbot/internal/observability/metrics"
	"github.com/badrx15/creavisionbot/internal/payment/adapters"
	paymentdomain "github.com/badrx15/creavisionbot/internal/payment/domain"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const listLimit = 50

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Catalog    *config.CatalogHolder
	Clock      clock.Clock
	Locker     locks.Locker
	LedgerSvc  ledgerdomain.Service
	Repo       paymentdomain.Repository
	Adapters   *adapters.Registry
	Notifier   notify.Notifier     `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.Config
	catalog    *config.CatalogHolder
	clock      clock.Clock
	locker     locks.Locker
	ledgerSvc  ledgerdomain.Service
	repo       paymentdomain.Repository
	adapters   *adapters.Registry
	notifier   notify.Notifier
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		cfg:        p.Cfg,
		catalog:    p.Catalog,
		clock:      p.Clock,
		locker:     p.Locker,
		ledgerSvc:  p.LedgerSvc,
		repo:       p.Repo,
		adapters:   p.Adapters,
		notifier:   notifier,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Packages() []config.CreditPackage {
	return s.catalog.Get().Packages
}

func (s *Service) InitiatePurchase(ctx context.Context, userID int64, packageID string) (paymentdomain.Checkout, error) {
	if userID == 0 {
		return paymentdomain.Checkout{}, paymentdomain.ErrInvalidUser
	}
	pkg, ok := s.catalog.Get().Package(strings.TrimSpace(packageID))
	if !ok {
		return paymentdomain.Checkout{}, paymentdomain.ErrUnknownPackage
	}
	amountMinor, err := config.ToMinor(pkg.Price, pkg.Currency)
	if err != nil {
		s.log.Error("package priced in unsupported currency", zap.String("package_id", pkg.ID), zap.Error(err))
		return paymentdomain.Checkout{}, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidConfig, err)
	}

	provider := s.cfg.Payment.Provider
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		s.log.Error("payment adapter unavailable", zap.String("provider", provider), zap.Error(err))
		return paymentdomain.Checkout{}, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}

	now := s.clock.Now()
	payment := paymentdomain.Payment{
		PaymentID:   ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		UserID:      userID,
		PackageID:   pkg.ID,
		AmountMinor: amountMinor,
		Currency:    strings.ToUpper(pkg.Currency),
		Credits:     pkg.Credits,
		Status:      paymentdomain.StatusPending,
		Provider:    provider,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return paymentdomain.Checkout{}, err
	}

	correlation := paymentdomain.Correlation{
		UserID:    userID,
		PaymentID: payment.PaymentID,
		PackageID: pkg.ID,
		Credits:   pkg.Credits,
	}
	order, err := adapter.CreateOrder(ctx, paymentdomain.OrderRequest{
		PaymentID:        payment.PaymentID,
		Description:      pkg.Name,
		AmountMinor:      payment.AmountMinor,
		Currency:         payment.Currency,
		CorrelationToken: correlation.Token(),
		ReturnURL:        s.callbackURL("/payments/success", payment.PaymentID),
		CancelURL:        s.callbackURL("/payments/cancel", payment.PaymentID),
	})
	if err != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, provider, "provider_error")
		s.log.Warn("create order failed",
			zap.String("payment_id", payment.PaymentID),
			zap.String("provider", provider),
			zap.Error(err),
		)
		return paymentdomain.Checkout{}, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}

	if _, err := s.repo.MarkOrderCreated(ctx, s.db, payment.PaymentID, order.OrderID, order.CheckoutURL, s.clock.Now()); err != nil {
		return paymentdomain.Checkout{}, err
	}
	s.obsMetrics.RecordPaymentEvent(ctx, provider, "order_created")
	s.log.Info("payment order created",
		zap.String("payment_id", payment.PaymentID),
		zap.Int64("user_id", userID),
		zap.String("package_id", pkg.ID),
		zap.String("provider_order_id", order.OrderID),
	)

	return paymentdomain.Checkout{
		PaymentID:   payment.PaymentID,
		CheckoutURL: order.CheckoutURL,
		PackageID:   pkg.ID,
		Credits:     pkg.Credits,
		AmountMinor: payment.AmountMinor,
		Currency:    payment.Currency,
	}, nil
}

// Verify asks the provider for the order state and completes the payment when it is paid.
// A completed record returns true without contacting the provider.
func (s *Service) Verify(ctx context.Context, paymentID string) (bool, error) {
	paymentID = strings.TrimSpace(paymentID)
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return false, err
	}
	if payment == nil {
		return false, paymentdomain.ErrUnknownPayment
	}
	if payment.Status == paymentdomain.StatusCompleted {
		return true, nil
	}
	if payment.ProviderOrderID == "" {
		return false, nil
	}

	adapter, err := s.adapters.Adapter(payment.Provider)
	if err != nil {
		return false, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}

	status, err := adapter.GetOrderStatus(ctx, payment.ProviderOrderID)
	if err != nil {
		s.log.Warn("order status lookup failed",
			zap.String("payment_id", paymentID),
			zap.String("provider_order_id", payment.ProviderOrderID),
			zap.Error(err),
		)
		return false, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}

	switch status {
	case paymentdomain.OrderStatusCompleted:
		if _, err := s.completeAndCredit(ctx, paymentID, ""); err != nil {
			return false, err
		}
		return true, nil
	case paymentdomain.OrderStatusApproved:
		capture, err := adapter.CaptureOrder(ctx, payment.ProviderOrderID)
		if err != nil {
			s.log.Warn("order capture failed",
				zap.String("payment_id", paymentID),
				zap.String("provider_order_id", payment.ProviderOrderID),
				zap.Error(err),
			)
			return false, nil
		}
		if capture.Status != paymentdomain.OrderStatusCompleted {
			return false, nil
		}
		if _, err := s.completeAndCredit(ctx, paymentID, capture.CaptureID); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}

// HandleWebhookEvent applies a verified provider event. Malformed correlation
// tokens and events for unknown payments are logged and dropped.
func (s *Service) HandleWebhookEvent(ctx context.Context, event *paymentdomain.WebhookEvent) error {
	if event == nil || event.Kind == paymentdomain.EventKindIgnored {
		return nil
	}

	correlation, err := paymentdomain.ParseCorrelation(event.CorrelationToken)
	if err != nil {
		s.log.Warn("dropping webhook with malformed correlation token",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("event_type", event.Type),
		)
		return nil
	}

	payment, err := s.repo.FindByID(ctx, s.db, correlation.PaymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		s.log.Warn("dropping webhook for unknown payment",
			zap.String("payment_id", correlation.PaymentID),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return nil
	}
	if payment.UserID != correlation.UserID || payment.Credits != correlation.Credits {
		s.log.Warn("dropping webhook whose correlation does not match the payment",
			zap.String("payment_id", payment.PaymentID),
			zap.Int64("token_user_id", correlation.UserID),
			zap.Int64("payment_user_id", payment.UserID),
		)
		return nil
	}

	s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, string(event.Kind))

	switch event.Kind {
	case paymentdomain.EventKindCaptureCompleted:
		_, err := s.completeAndCredit(ctx, payment.PaymentID, event.CaptureID)
		return err
	case paymentdomain.EventKindOrderApproved:
		_, err := s.Verify(ctx, payment.PaymentID)
		if errors.Is(err, paymentdomain.ErrProviderUnavailable) {
			s.log.Warn("verify after approval failed", zap.String("payment_id", payment.PaymentID), zap.Error(err))
			return nil
		}
		return err
	default:
		return nil
	}
}

// completeAndCredit is the single gate that moves a payment to completed.
// The status flip and the ledger credit commit together, and the credit is
// keyed by payment id, so concurrent triggers credit once.
func (s *Service) completeAndCredit(ctx context.Context, paymentID, captureID string) (bool, error) {
	unlock, err := s.locker.Lock(ctx, locks.PaymentKey(paymentID))
	if err != nil {
		return false, err
	}
	defer unlock()

	var (
		payment  *paymentdomain.Payment
		credited ledgerdomain.CreditResult
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.repo.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrUnknownPayment
		}

		affected, err := s.repo.MarkCompleted(ctx, tx, paymentID, captureID, s.clock.Now())
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}

		credited, err = s.ledgerSvc.Credit(ctx, tx, ledgerdomain.CreditRequest{
			UserID:     payment.UserID,
			Amount:     payment.Credits,
			SourceType: ledgerdomain.SourceTypePurchase,
			PaymentID:  paymentID,
			Note:       fmt.Sprintf("purchase %s (%d credits)", payment.PackageID, payment.Credits),
		})
		return err
	})
	if err != nil {
		return false, err
	}
	if !credited.Applied {
		return false, nil
	}

	s.obsMetrics.RecordPaymentEvent(ctx, payment.Provider, "completed")
	s.log.Info("payment completed",
		zap.String("payment_id", paymentID),
		zap.Int64("user_id", payment.UserID),
		zap.Int64("credits", payment.Credits),
		zap.Int64("balance", credited.Balance),
	)

	userMsg := fmt.Sprintf("Payment completed! %d credits were added to your account. Current balance: %d credits.", payment.Credits, credited.Balance)
	if err := s.notifier.Notify(ctx, payment.UserID, userMsg); err != nil {
		s.log.Warn("purchase notification failed", zap.Int64("user_id", payment.UserID), zap.Error(err))
	}
	adminMsg := fmt.Sprintf("Purchase completed: user %d bought %s (%d credits, %s %s)",
		payment.UserID, payment.PackageID, payment.Credits, config.FormatMinor(payment.AmountMinor, payment.Currency), payment.Currency)
	if err := s.notifier.NotifyAdmins(ctx, adminMsg); err != nil {
		s.log.Warn("admin purchase notification failed", zap.Error(err))
	}
	return true, nil
}

func (s *Service) Cancel(ctx context.Context, paymentID string) error {
	paymentID = strings.TrimSpace(paymentID)
	affected, err := s.repo.MarkFailed(ctx, s.db, paymentID, s.clock.Now())
	if err != nil {
		return err
	}
	if affected > 0 {
		s.log.Info("payment cancelled", zap.String("payment_id", paymentID))
		return nil
	}

	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return paymentdomain.ErrUnknownPayment
	}
	if payment.Status == paymentdomain.StatusFailed {
		return nil
	}
	return paymentdomain.ErrInvalidTransition
}

func (s *Service) Get(ctx context.Context, paymentID string) (paymentdomain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, strings.TrimSpace(paymentID))
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if payment == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrUnknownPayment
	}
	return *payment, nil
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]paymentdomain.Payment, error) {
	if userID == 0 {
		return nil, paymentdomain.ErrInvalidUser
	}
	items, err := s.repo.ListByUser(ctx, s.db, userID, listLimit)
	if err != nil {
		return nil, err
	}
	payments := make([]paymentdomain.Payment, 0, len(items))
	for _, item := range items {
		payments = append(payments, *item)
	}
	return payments, nil
}

func (s *Service) callbackURL(path, paymentID string) string {
	return s.cfg.PublicBaseURL + path + "?payment_id=" + url.QueryEscape(paymentID)
}
