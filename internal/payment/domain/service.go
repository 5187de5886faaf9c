package domain

import (
	"context"
	"errors"
	"net/http"

	"github.com/badrx15/creavisionbot/internal/config"
)

// Service reconciles provider payments into ledger credits.
// Verify and HandleWebhookEvent share one completion path keyed by payment id.
type Service interface {
	Packages() []config.CreditPackage
	InitiatePurchase(ctx context.Context, userID int64, packageID string) (Checkout, error)
	Verify(ctx context.Context, paymentID string) (bool, error)
	HandleWebhookEvent(ctx context.Context, event *WebhookEvent) error
	Cancel(ctx context.Context, paymentID string) error
	Get(ctx context.Context, paymentID string) (Payment, error)
	ListByUser(ctx context.Context, userID int64) ([]Payment, error)
}

// WebhookService authenticates raw provider callbacks and forwards them to Service.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrUnknownPackage      = errors.New("unknown_package")
	ErrUnknownPayment      = errors.New("unknown_payment")
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrWebhookMalformed    = errors.New("webhook_malformed")
	ErrInvalidTransition   = errors.New("invalid_payment_transition")

	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_provider_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
)
