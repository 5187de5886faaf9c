package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	paymentdomain "github.com/badrx15/creavisionbot/internal/payment/domain"
	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

const (
	metadataCorrelation = "correlation"
	metadataPaymentID   = "payment_id"

	eventCheckoutCompleted     = "checkout.session.completed"
	eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// sessionAPI is the subset of the checkout session client used here.
type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secretKey := readString(cfg.Config, "secret_key")
	webhookSecret := readString(cfg.Config, "webhook_secret")
	if secretKey == "" || webhookSecret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	var backends *stripe.Backends
	if cfg.HTTPClient != nil {
		backends = stripe.NewBackends(cfg.HTTPClient)
	}
	sc := &client.API{}
	sc.Init(secretKey, backends)

	return &Adapter{
		sessions:      sc.CheckoutSessions,
		webhookSecret: webhookSecret,
	}, nil
}

// Adapter maps Stripe Checkout sessions onto the order lifecycle.
// Checkout captures on completion, so CaptureOrder only reports the settled state.
type Adapter struct {
	sessions      sessionAPI
	webhookSecret string
}

func (a *Adapter) CreateOrder(ctx context.Context, req paymentdomain.OrderRequest) (paymentdomain.Order, error) {
	if req.AmountMinor <= 0 || strings.TrimSpace(req.Currency) == "" {
		return paymentdomain.Order{}, paymentdomain.ErrInvalidPayload
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(req.PaymentID),
		SuccessURL:        stripe.String(req.ReturnURL),
		CancelURL:         stripe.String(req.CancelURL),
		Metadata: map[string]string{
			metadataCorrelation: req.CorrelationToken,
			metadataPaymentID:   req.PaymentID,
		},
	}
	params.Context = ctx

	sess, err := a.sessions.New(params)
	if err != nil {
		return paymentdomain.Order{}, err
	}
	if sess == nil || sess.ID == "" || sess.URL == "" {
		return paymentdomain.Order{}, errors.New("stripe: checkout session missing id or url")
	}

	return paymentdomain.Order{
		OrderID:     sess.ID,
		CheckoutURL: sess.URL,
		Status:      mapSession(sess),
	}, nil
}

func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string) (paymentdomain.OrderStatus, error) {
	sess, err := a.getSession(ctx, orderID)
	if err != nil {
		return paymentdomain.OrderStatusUnknown, err
	}
	return mapSession(sess), nil
}

func (a *Adapter) CaptureOrder(ctx context.Context, orderID string) (paymentdomain.Capture, error) {
	sess, err := a.getSession(ctx, orderID)
	if err != nil {
		return paymentdomain.Capture{}, err
	}
	capture := paymentdomain.Capture{Status: mapSession(sess)}
	if sess.PaymentIntent != nil {
		capture.CaptureID = sess.PaymentIntent.ID
	}
	return capture, nil
}

func (a *Adapter) ParseWebhook(ctx context.Context, payload []byte, headers http.Header) (*paymentdomain.WebhookEvent, error) {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return nil, paymentdomain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, a.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrInvalidHeader) || errors.Is(err, webhook.ErrNoValidSignature) || errors.Is(err, webhook.ErrTooOld) {
			return nil, paymentdomain.ErrInvalidSignature
		}
		return nil, paymentdomain.ErrInvalidPayload
	}

	out := &paymentdomain.WebhookEvent{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		Type:            string(event.Type),
		Kind:            paymentdomain.EventKindIgnored,
		RawPayload:      payload,
	}

	switch string(event.Type) {
	case eventCheckoutCompleted, eventAsyncPaymentSucceeded:
	default:
		return out, nil
	}

	if event.Data == nil {
		return nil, paymentdomain.ErrWebhookMalformed
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, paymentdomain.ErrWebhookMalformed
	}

	out.OrderID = sess.ID
	out.CorrelationToken = sess.Metadata[metadataCorrelation]
	if sess.PaymentIntent != nil {
		out.CaptureID = sess.PaymentIntent.ID
	}
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		out.Kind = paymentdomain.EventKindCaptureCompleted
	}
	return out, nil
}

func (a *Adapter) getSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := a.sessions.Get(id, params)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.New("stripe: empty checkout session")
	}
	return sess, nil
}

func mapSession(sess *stripe.CheckoutSession) paymentdomain.OrderStatus {
	switch sess.Status {
	case stripe.CheckoutSessionStatusComplete:
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			return paymentdomain.OrderStatusCompleted
		}
		return paymentdomain.OrderStatusCreated
	case stripe.CheckoutSessionStatusOpen:
		return paymentdomain.OrderStatusCreated
	case stripe.CheckoutSessionStatusExpired:
		return paymentdomain.OrderStatusVoided
	default:
		return paymentdomain.OrderStatusUnknown
	}
}

func readString(cfg map[string]any, key string) string {
	if cfg == nil {
		return ""
	}
	value, ok := cfg[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
