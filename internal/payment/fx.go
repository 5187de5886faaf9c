package payment

import (
	"github.com/badrx15/creavisionbot/internal/config"
	"github.com/badrx15/creavisionbot/internal/payment/adapters"
	"github.com/badrx15/creavisionbot/internal/payment/adapters/paypal"
	"github.com/badrx15/creavisionbot/internal/payment/adapters/stripe"
	paymentdomain "github.com/badrx15/creavisionbot/internal/payment/domain"
	"github.com/badrx15/creavisionbot/internal/payment/repository"
	paymentservice "github.com/badrx15/creavisionbot/internal/payment/service"
	"github.com/badrx15/creavisionbot/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)

// NewRegistry wires the PayPal and Stripe adapters with credentials from the environment.
func NewRegistry(cfg config.Config) *adapters.Registry {
	registry := adapters.NewRegistry(
		paypal.NewFactory(),
		stripe.NewFactory(),
	)
	registry.Configure(paymentdomain.AdapterConfig{
		Provider: "paypal",
		Config: map[string]any{
			"client_id":     cfg.Payment.PayPalClientID,
			"client_secret": cfg.Payment.PayPalClientSecret,
			"mode":          cfg.Payment.PayPalMode,
			"webhook_id":    cfg.Payment.PayPalWebhookID,
			"brand_name":    cfg.AppName,
		},
	})
	registry.Configure(paymentdomain.AdapterConfig{
		Provider: "stripe",
		Config: map[string]any{
			"secret_key":     cfg.Payment.StripeSecretKey,
			"webhook_secret": cfg.Payment.StripeWebhookSecret,
		},
	})
	return registry
}
