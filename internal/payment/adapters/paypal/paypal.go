package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/badrx15/creavisionbot/internal/config"
	paymentdomain "github.com/badrx15/creavisionbot/internal/payment/domain"
	sdk "github.com/plutov/paypal/v4"
)

const (
	eventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	eventOrderApproved    = "CHECKOUT.ORDER.APPROVED"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "paypal"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	clientID := readString(cfg.Config, "client_id")
	secret := readString(cfg.Config, "client_secret")
	if clientID == "" || secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	baseURL := readString(cfg.Config, "base_url")
	if baseURL == "" {
		switch strings.ToLower(readString(cfg.Config, "mode")) {
		case "live", "production":
			baseURL = sdk.APIBaseLive
		default:
			baseURL = sdk.APIBaseSandBox
		}
	}

	client, err := sdk.NewClient(clientID, secret, strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, paymentdomain.ErrInvalidConfig
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	client.SetHTTPClient(httpClient)

	return &Adapter{
		client:    client,
		webhookID: readString(cfg.Config, "webhook_id"),
		brandName: readString(cfg.Config, "brand_name"),
	}, nil
}

// Adapter talks to the PayPal Orders v2 REST API.
// The SDK client refreshes its token before expiry once the first one is fetched.
type Adapter struct {
	client    *sdk.Client
	webhookID string
	brandName string

	mu         sync.Mutex
	authorized bool
}

// authorize fetches the first access token. A 401 clears it so the next call re-authenticates.
func (a *Adapter) authorize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.authorized {
		return nil
	}
	if _, err := a.client.GetAccessToken(ctx); err != nil {
		return err
	}
	a.authorized = true
	return nil
}

func (a *Adapter) observe(err error) error {
	if StatusCode(err) == http.StatusUnauthorized {
		a.mu.Lock()
		a.authorized = false
		a.mu.Unlock()
	}
	return err
}

// StatusCode returns the HTTP status of a PayPal API error, or 0.
func StatusCode(err error) int {
	var apiErr *sdk.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return apiErr.Response.StatusCode
	}
	return 0
}

func (a *Adapter) CreateOrder(ctx context.Context, req paymentdomain.OrderRequest) (paymentdomain.Order, error) {
	if req.AmountMinor <= 0 || strings.TrimSpace(req.Currency) == "" {
		return paymentdomain.Order{}, paymentdomain.ErrInvalidPayload
	}
	if err := a.authorize(ctx); err != nil {
		return paymentdomain.Order{}, a.observe(err)
	}

	currency := strings.ToUpper(req.Currency)
	units := []sdk.PurchaseUnitRequest{{
		ReferenceID: req.PaymentID,
		CustomID:    req.CorrelationToken,
		Description: req.Description,
		Amount: &sdk.PurchaseUnitAmount{
			Currency: currency,
			Value:    config.FormatMinor(req.AmountMinor, currency),
		},
	}}
	appCtx := &sdk.ApplicationContext{
		ReturnURL:  req.ReturnURL,
		CancelURL:  req.CancelURL,
		BrandName:  a.brandName,
		UserAction: sdk.UserActionPayNow,
	}

	order, err := a.client.CreateOrder(ctx, "CAPTURE", units, nil, appCtx)
	if err != nil {
		return paymentdomain.Order{}, a.observe(err)
	}
	if order.ID == "" {
		return paymentdomain.Order{}, errors.New("paypal: order response missing id")
	}

	checkoutURL := findLink(order.Links, "approve")
	if checkoutURL == "" {
		checkoutURL = findLink(order.Links, "payer-action")
	}
	if checkoutURL == "" {
		return paymentdomain.Order{}, errors.New("paypal: order response missing approve link")
	}

	return paymentdomain.Order{
		OrderID:     order.ID,
		CheckoutURL: checkoutURL,
		Status:      mapStatus(order.Status),
	}, nil
}

func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string) (paymentdomain.OrderStatus, error) {
	if strings.TrimSpace(orderID) == "" {
		return paymentdomain.OrderStatusUnknown, paymentdomain.ErrInvalidPayload
	}
	if err := a.authorize(ctx); err != nil {
		return paymentdomain.OrderStatusUnknown, a.observe(err)
	}
	order, err := a.client.GetOrder(ctx, orderID)
	if err != nil {
		return paymentdomain.OrderStatusUnknown, a.observe(err)
	}
	return mapStatus(order.Status), nil
}

func (a *Adapter) CaptureOrder(ctx context.Context, orderID string) (paymentdomain.Capture, error) {
	if strings.TrimSpace(orderID) == "" {
		return paymentdomain.Capture{}, paymentdomain.ErrInvalidPayload
	}
	if err := a.authorize(ctx); err != nil {
		return paymentdomain.Capture{}, a.observe(err)
	}
	resp, err := a.client.CaptureOrder(ctx, orderID, sdk.CaptureOrderRequest{})
	if err != nil {
		return paymentdomain.Capture{}, a.observe(err)
	}

	capture := paymentdomain.Capture{Status: mapStatus(resp.Status)}
	if len(resp.PurchaseUnits) > 0 && resp.PurchaseUnits[0].Payments != nil {
		if caps := resp.PurchaseUnits[0].Payments.Captures; len(caps) > 0 {
			capture.CaptureID = caps[0].ID
		}
	}
	return capture, nil
}

type webhookLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type webhookUnit struct {
	CustomID string `json:"custom_id"`
}

type webhookEnvelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

type webhookResource struct {
	ID                string        `json:"id"`
	Status            string        `json:"status"`
	CustomID          string        `json:"custom_id"`
	PurchaseUnits     []webhookUnit `json:"purchase_units"`
	Links             []webhookLink `json:"links"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// parentOrder is the slice of an order needed to recover the correlation token.
type parentOrder struct {
	ID            string        `json:"id"`
	PurchaseUnits []webhookUnit `json:"purchase_units"`
}

// ParseWebhook verifies the signature through PayPal when a webhook id is configured.
// The correlation token is read from the resource, or from the parent order via its "up" link.
func (a *Adapter) ParseWebhook(ctx context.Context, payload []byte, headers http.Header) (*paymentdomain.WebhookEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(envelope.ID) == "" || strings.TrimSpace(envelope.EventType) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	if a.webhookID != "" {
		if err := a.verifySignature(ctx, payload, headers); err != nil {
			return nil, err
		}
	}

	event := &paymentdomain.WebhookEvent{
		Provider:        "paypal",
		ProviderEventID: envelope.ID,
		Type:            envelope.EventType,
		Kind:            paymentdomain.EventKindIgnored,
		RawPayload:      payload,
	}

	switch envelope.EventType {
	case eventCaptureCompleted, eventOrderApproved:
	default:
		return event, nil
	}

	var resource webhookResource
	if err := json.Unmarshal(envelope.Resource, &resource); err != nil {
		return nil, paymentdomain.ErrWebhookMalformed
	}

	if envelope.EventType == eventOrderApproved {
		event.Kind = paymentdomain.EventKindOrderApproved
		event.OrderID = resource.ID
		if len(resource.PurchaseUnits) > 0 {
			event.CorrelationToken = resource.PurchaseUnits[0].CustomID
		}
		return event, nil
	}

	event.Kind = paymentdomain.EventKindCaptureCompleted
	event.CaptureID = resource.ID
	event.OrderID = resource.SupplementaryData.RelatedIDs.OrderID
	event.CorrelationToken = resource.CustomID
	if event.CorrelationToken == "" {
		order, err := a.followUp(ctx, resource.Links)
		if err != nil {
			return nil, err
		}
		if order != nil {
			if event.OrderID == "" {
				event.OrderID = order.ID
			}
			if len(order.PurchaseUnits) > 0 {
				event.CorrelationToken = order.PurchaseUnits[0].CustomID
			}
		}
	}
	return event, nil
}

func (a *Adapter) verifySignature(ctx context.Context, payload []byte, headers http.Header) error {
	if headers.Get("PAYPAL-TRANSMISSION-ID") == "" || headers.Get("PAYPAL-TRANSMISSION-SIG") == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if err := a.authorize(ctx); err != nil {
		return a.observe(err)
	}

	// The SDK reads the transmission headers and the raw body from an inbound request.
	inbound, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	inbound.Header = headers.Clone()

	resp, err := a.client.VerifyWebhookSignature(ctx, inbound, a.webhookID)
	if err != nil {
		return a.observe(err)
	}
	if !strings.EqualFold(resp.VerificationStatus, "SUCCESS") {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// followUp loads the order behind a capture. Only the path of the "up" link is
// used so the request always goes to the configured API base.
func (a *Adapter) followUp(ctx context.Context, links []webhookLink) (*parentOrder, error) {
	href := ""
	for _, l := range links {
		if strings.EqualFold(l.Rel, "up") {
			href = l.Href
			break
		}
	}
	if href == "" {
		return nil, nil
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return nil, paymentdomain.ErrWebhookMalformed
	}
	if err := a.authorize(ctx); err != nil {
		return nil, a.observe(err)
	}

	req, err := a.client.NewRequest(ctx, http.MethodGet, a.client.APIBase+parsed.Path, nil)
	if err != nil {
		return nil, err
	}
	var order parentOrder
	if err := a.client.SendWithAuth(req, &order); err != nil {
		return nil, a.observe(err)
	}
	return &order, nil
}

func mapStatus(status string) paymentdomain.OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CREATED", "SAVED", "PAYER_ACTION_REQUIRED":
		return paymentdomain.OrderStatusCreated
	case "APPROVED":
		return paymentdomain.OrderStatusApproved
	case "COMPLETED":
		return paymentdomain.OrderStatusCompleted
	case "VOIDED":
		return paymentdomain.OrderStatusVoided
	default:
		return paymentdomain.OrderStatusUnknown
	}
}

func findLink(links []sdk.Link, rel string) string {
	for _, l := range links {
		if strings.EqualFold(l.Rel, rel) {
			return l.Href
		}
	}
	return ""
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
