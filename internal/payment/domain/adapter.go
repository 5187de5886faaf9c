package domain

import (
	"context"
	"net/http"
)

// OrderStatus is the provider-neutral state of an external order.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusApproved  OrderStatus = "APPROVED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusVoided    OrderStatus = "VOIDED"
	OrderStatusUnknown   OrderStatus = "UNKNOWN"
)

type OrderRequest struct {
	PaymentID        string
	Description      string
	AmountMinor      int64
	Currency         string
	CorrelationToken string
	ReturnURL        string
	CancelURL        string
}

type Order struct {
	OrderID     string
	CheckoutURL string
	Status      OrderStatus
}

type Capture struct {
	Status    OrderStatus
	CaptureID string
}

type EventKind string

const (
	EventKindCaptureCompleted EventKind = "capture_completed"
	EventKindOrderApproved    EventKind = "order_approved"
	EventKindIgnored          EventKind = "ignored"
)

// WebhookEvent is the canonical form of a verified provider notification.
type WebhookEvent struct {
	Provider         string
	ProviderEventID  string
	Type             string
	Kind             EventKind
	CorrelationToken string
	OrderID          string
	CaptureID        string
	RawPayload       []byte
}

type AdapterConfig struct {
	Provider   string
	Config     map[string]any
	HTTPClient *http.Client
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// PaymentAdapter wraps one payment processor's order API.
type PaymentAdapter interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
	CaptureOrder(ctx context.Context, orderID string) (Capture, error)
	// ParseWebhook verifies authenticity and decodes the event.
	ParseWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookEvent, error)
}
