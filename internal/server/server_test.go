package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	accountdomain "github.com/badrx15/creavisionbot/internal/account/domain"
	"github.com/badrx15/creavisionbot/internal/authorization"
	"github.com/badrx15/creavisionbot/internal/clock"
	"github.com/badrx15/creavisionbot/internal/config"
	conversationdomain "github.com/badrx15/creavisionbot/internal/conversation/domain"
	ledgerdomain "github.com/badrx15/creavisionbot/internal/ledger/domain"
	meteringdomain "github.com/badrx15/creavisionbot/internal/metering/domain"
	"github.com/badrx15/creavisionbot/internal/observability"
	paymentdomain "github.com/badrx15/creavisionbot/internal/payment/domain"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeAccounts struct {
	accountdomain.Service

	mu       sync.Mutex
	ensured  []accountdomain.Profile
	accounts map[int64]accountdomain.Account
	deleted  []int64
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		accounts: map[int64]accountdomain.Account{},
	}
}

func (f *fakeAccounts) Ensure(ctx context.Context, profile accountdomain.Profile) (accountdomain.Account, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, profile)
	if acc, ok := f.accounts[profile.UserID]; ok {
		return acc, false, nil
	}
	acc := accountdomain.Account{UserID: profile.UserID, Username: profile.Username, Credits: 5}
	f.accounts[profile.UserID] = acc
	return acc, true, nil
}

func (f *fakeAccounts) Get(ctx context.Context, userID int64) (accountdomain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[userID]
	if !ok {
		return accountdomain.Account{}, accountdomain.ErrAccountNotFound
	}
	return acc, nil
}

func (f *fakeAccounts) List(ctx context.Context, req accountdomain.ListAccountRequest) (accountdomain.ListAccountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := accountdomain.ListAccountResponse{}
	for _, acc := range f.accounts {
		resp.Accounts = append(resp.Accounts, acc)
	}
	return resp, nil
}

func (f *fakeAccounts) SetAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[userID]
	if !ok {
		return accountdomain.ErrAccountNotFound
	}
	acc.IsAdmin = isAdmin
	f.accounts[userID] = acc
	return nil
}

func (f *fakeAccounts) Persona(ctx context.Context, userID int64) (config.Persona, error) {
	return config.Persona{ID: config.DefaultPersonaID}, nil
}

func (f *fakeAccounts) SetPersona(ctx context.Context, userID int64, personaID string) (config.Persona, error) {
	if personaID != "copywriter" {
		return config.Persona{}, accountdomain.ErrUnknownPersona
	}
	return config.Persona{ID: personaID, ParseMode: "Markdown"}, nil
}

func (f *fakeAccounts) Delete(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[userID]; !ok {
		return accountdomain.ErrAccountNotFound
	}
	delete(f.accounts, userID)
	f.deleted = append(f.deleted, userID)
	return nil
}

type fakeLedger struct {
	ledgerdomain.Service

	balance int64
	grants  []int64
}

func (f *fakeLedger) Balance(ctx context.Context, userID int64) (int64, error) {
	if userID == 404 {
		return 0, ledgerdomain.ErrAccountNotFound
	}
	return f.balance, nil
}

func (f *fakeLedger) Grant(ctx context.Context, userID, amount int64, note string) (ledgerdomain.CreditResult, error) {
	if amount <= 0 {
		return ledgerdomain.CreditResult{}, ledgerdomain.ErrInvalidAmount
	}
	f.grants = append(f.grants, amount)
	f.balance += amount
	return ledgerdomain.CreditResult{Applied: true, Balance: f.balance}, nil
}

func (f *fakeLedger) History(ctx context.Context, req ledgerdomain.ListUsageRequest) (ledgerdomain.ListUsageResponse, error) {
	return ledgerdomain.ListUsageResponse{Records: []ledgerdomain.UsageRecord{
		{UserID: req.UserID, SourceType: ledgerdomain.SourceTypeTurn, CreditsDelta: -1},
	}}, nil
}

type fakeConversations struct {
	conversationdomain.Service

	resets []int64
}

func (f *fakeConversations) Reset(ctx context.Context, userID int64) error {
	f.resets = append(f.resets, userID)
	return nil
}

type mockMetering struct {
	mock.Mock
}

func (m *mockMetering) HandleTurn(ctx context.Context, req meteringdomain.TurnRequest) (meteringdomain.TurnResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(meteringdomain.TurnResult), args.Error(1)
}

type fakePayments struct {
	paymentdomain.Service

	payments  map[string]paymentdomain.Payment
	verifyErr error
	cancelErr error
}

func (f *fakePayments) Packages() []config.CreditPackage {
	return config.DefaultCatalog().Packages
}

func (f *fakePayments) InitiatePurchase(ctx context.Context, userID int64, packageID string) (paymentdomain.Checkout, error) {
	if packageID != "basic" {
		return paymentdomain.Checkout{}, paymentdomain.ErrUnknownPackage
	}
	return paymentdomain.Checkout{PaymentID: "PAY-1", CheckoutURL: "https://paypal.example/approve", PackageID: packageID, Credits: 50}, nil
}

func (f *fakePayments) Verify(ctx context.Context, paymentID string) (bool, error) {
	if f.verifyErr != nil {
		return false, f.verifyErr
	}
	p, ok := f.payments[paymentID]
	if !ok {
		return false, paymentdomain.ErrUnknownPayment
	}
	p.Status = paymentdomain.StatusCompleted
	f.payments[paymentID] = p
	return true, nil
}

func (f *fakePayments) Cancel(ctx context.Context, paymentID string) error {
	return f.cancelErr
}

func (f *fakePayments) Get(ctx context.Context, paymentID string) (paymentdomain.Payment, error) {
	p, ok := f.payments[paymentID]
	if !ok {
		return paymentdomain.Payment{}, paymentdomain.ErrUnknownPayment
	}
	return p, nil
}

type fakeWebhooks struct {
	err      error
	provider string
	payload  []byte
}

func (f *fakeWebhooks) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	f.provider = provider
	f.payload = payload
	return f.err
}

type testDeps struct {
	accounts      *fakeAccounts
	ledger        *fakeLedger
	conversations *fakeConversations
	metering      *mockMetering
	payments      *fakePayments
	webhooks      *fakeWebhooks
}

func newTestAuthorizer(t *testing.T) authorization.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:server_authz_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	return authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *testDeps) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	deps := &testDeps{
		accounts:      newFakeAccounts(),
		ledger:        &fakeLedger{balance: 5},
		conversations: &fakeConversations{},
		metering:      &mockMetering{},
		payments:      &fakePayments{payments: map[string]paymentdomain.Payment{}},
		webhooks:      &fakeWebhooks{},
	}

	srv := NewServer(ServerParams{
		Gin:             NewEngine(observability.Config{Environment: "test"}, nil),
		Cfg:             cfg,
		Log:             zap.NewNop(),
		Clock:           clock.NewFakeClock(testNow),
		AuthzSvc:        newTestAuthorizer(t),
		AccountSvc:      deps.accounts,
		LedgerSvc:       deps.ledger,
		ConversationSvc: deps.conversations,
		MeteringSvc:     deps.metering,
		PaymentSvc:      deps.payments,
		WebhookSvc:      deps.webhooks,
	})
	return srv, deps
}

func doRequest(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	srv.Engine().ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body), resp.Body.String())
	return body.Error
}

func bearer(t *testing.T, userID int64, ttl time.Duration) map[string]string {
	t.Helper()
	token, err := IssueAdminToken(testSecret, userID, testNow, ttl)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{})

	resp := doRequest(srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{})

	resp := doRequest(srv, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", decodeError(t, resp).Type)
}

func TestSendMessage(t *testing.T) {
	srv, deps := newTestServer(t, config.Config{})
	deps.metering.On("HandleTurn", mock.Anything, meteringdomain.TurnRequest{UserID: 42, Text: "hello"}).
		Return(meteringdomain.TurnResult{Reply: "hi there", Persona: "assistant", Charged: 1, Remaining: 4, Tokens: 12}, nil).
		Once()

	resp := doRequest(srv, http.MethodPost, "/users/42/messages", `{"text":"hello","username":" alice "}`, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body struct {
		Data meteringdomain.TurnResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "hi there", body.Data.Reply)
	assert.Equal(t, int64(4), body.Data.Remaining)

	require.Len(t, deps.accounts.ensured, 1)
	assert.Equal(t, "alice", deps.accounts.ensured[0].Username)
	deps.metering.AssertExpectations(t)
}

func TestSendMessageErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"insufficient credits", meteringdomain.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient_credits"},
		{"completion failed", fmt.Errorf("%w: %w", meteringdomain.ErrCompletionFailed, context.DeadlineExceeded), http.StatusBadGateway, "upstream_unavailable"},
		{"persistence failed", fmt.Errorf("%w: %w", meteringdomain.ErrPersistenceFailed, ledgerdomain.ErrAccountNotFound), http.StatusInternalServerError, "internal_error"},
		{"empty message", meteringdomain.ErrEmptyMessage, http.StatusBadRequest, "validation_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, deps := newTestServer(t, config.Config{})
			deps.metering.On("HandleTurn", mock.Anything, mock.Anything).
				Return(meteringdomain.TurnResult{}, tc.err).
				Once()

			resp := doRequest(srv, http.MethodPost, "/users/42/messages", `{"text":"hello"}`, nil)
			assert.Equal(t, tc.status, resp.Code)
			assert.Equal(t, tc.typ, decodeError(t, resp).Type)
		})
	}
}

func TestSendMessageRejectsBadUserID(t *testing.T) {
	srv, deps := newTestServer(t, config.Config{})

	resp := doRequest(srv, http.MethodPost, "/users/abc/messages", `{"text":"hello"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "user_id", payload.Errors[0].Field)
	assert.Equal(t, "invalid_user", payload.Errors[0].Code)
	deps.metering.AssertNotCalled(t, "HandleTurn", mock.Anything, mock.Anything)
}

func TestUserRoutes(t *testing.T) {
	srv, deps := newTestServer(t, config.Config{})

	resp := doRequest(srv, http.MethodDelete, "/users/42/conversation", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, []int64{42}, deps.conversations.resets)

	resp = doRequest(srv, http.MethodGet, "/users/42/balance", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"data":{"user_id":42,"credits":5,"persona":"assistant"}}`, resp.Body.String())

	resp = doRequest(srv, http.MethodGet, "/users/404/balance", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doRequest(srv, http.MethodPut, "/users/42/persona", `{"persona":"copywriter"}`, nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(srv, http.MethodPut, "/users/42/persona", `{"persona":"pirate"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "persona", payload.Errors[0].Field)

	resp = doRequest(srv, http.MethodGet, "/users/42/usage?page_size=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(srv, http.MethodGet, "/users/42/usage?page_size=5", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestPaymentRoutes(t *testing.T) {
	srv, deps := newTestServer(t, config.Config{Payment: config.PaymentConfig{BotUsername: "CreaVisionBot"}})
	deps.payments.payments["PAY-1"] = paymentdomain.Payment{PaymentID: "PAY-1", Status: paymentdomain.StatusOrderCreated}

	resp := doRequest(srv, http.MethodGet, "/packages", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(srv, http.MethodPost, "/users/42/payments", `{"package_id":"basic"}`, nil)
	assert.Equal(t, http.StatusCreated, resp.Code)

	resp = doRequest(srv, http.MethodPost, "/users/42/payments", `{"package_id":"gold"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "package_id", decodeError(t, resp).Errors[0].Field)

	resp = doRequest(srv, http.MethodGet, "/payments/success?payment_id=PAY-1&token=ORDER-1", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Data paymentStatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.True(t, body.Data.Completed)
	assert.Equal(t, paymentdomain.StatusCompleted, body.Data.Status)
	assert.Equal(t, "https://t.me/CreaVisionBot", body.Data.BotURL)

	resp = doRequest(srv, http.MethodPost, "/payments/PAY-9/verify", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doRequest(srv, http.MethodGet, "/payments/success", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	deps.payments.verifyErr = paymentdomain.ErrProviderUnavailable
	resp = doRequest(srv, http.MethodPost, "/payments/PAY-1/verify", "", nil)
	assert.Equal(t, http.StatusBadGateway, resp.Code)

	deps.payments.cancelErr = paymentdomain.ErrInvalidTransition
	resp = doRequest(srv, http.MethodGet, "/payments/cancel?payment_id=PAY-1", "", nil)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestPaymentWebhook(t *testing.T) {
	srv, deps := newTestServer(t, config.Config{})

	resp := doRequest(srv, http.MethodPost, "/webhooks/paypal", `{"id":"WH-1"}`, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "paypal", deps.webhooks.provider)
	assert.JSONEq(t, `{"id":"WH-1"}`, string(deps.webhooks.payload))

	deps.webhooks.err = paymentdomain.ErrInvalidSignature
	resp = doRequest(srv, http.MethodPost, "/webhooks/paypal", `{"id":"WH-2"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	deps.webhooks.err = paymentdomain.ErrProviderNotFound
	resp = doRequest(srv, http.MethodPost, "/webhooks/adyen", `{"id":"WH-3"}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	deps.webhooks.err = errors.New("database is locked")
	resp = doRequest(srv, http.MethodPost, "/webhooks/paypal", `{"id":"WH-4"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestAdminRoutesHiddenWithoutSecret(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{AdminUserIDs: []int64{1}})

	resp := doRequest(srv, http.MethodGet, "/admin/users", "", bearer(t, 1, time.Hour))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAdminAuthentication(t *testing.T) {
	srv, deps := newTestServer(t, config.Config{AdminJWTSecret: testSecret, AdminUserIDs: []int64{1}})
	deps.accounts.accounts[7] = accountdomain.Account{UserID: 7}
	deps.accounts.accounts[8] = accountdomain.Account{UserID: 8, IsAdmin: true}

	resp := doRequest(srv, http.MethodGet, "/admin/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doRequest(srv, http.MethodGet, "/admin/users", "", map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doRequest(srv, http.MethodGet, "/admin/users", "", bearer(t, 1, -time.Minute))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	other, err := IssueAdminToken("other-secret", 1, testNow, time.Hour)
	require.NoError(t, err)
	resp = doRequest(srv, http.MethodGet, "/admin/users", "", map[string]string{"Authorization": "Bearer " + other})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doRequest(srv, http.MethodGet, "/admin/users", "", bearer(t, 7, time.Hour))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = doRequest(srv, http.MethodGet, "/admin/users", "", bearer(t, 8, time.Hour))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(srv, http.MethodPut, "/admin/users/7/admin", `{"is_admin":true}`, bearer(t, 8, time.Hour))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.False(t, deps.accounts.accounts[7].IsAdmin)

	resp = doRequest(srv, http.MethodPost, "/admin/users/7/credits", `{"amount":3}`, bearer(t, 8, time.Hour))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(srv, http.MethodGet, "/admin/users", "", bearer(t, 1, time.Hour))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAdminActions(t *testing.T) {
	srv, deps := newTestServer(t, config.Config{AdminJWTSecret: testSecret, AdminUserIDs: []int64{1}})
	deps.accounts.accounts[1] = accountdomain.Account{UserID: 1}
	deps.accounts.accounts[7] = accountdomain.Account{UserID: 7}
	auth := bearer(t, 1, time.Hour)

	resp := doRequest(srv, http.MethodPut, "/admin/users/7/admin", `{"is_admin":true}`, auth)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.True(t, deps.accounts.accounts[7].IsAdmin)

	resp = doRequest(srv, http.MethodPut, "/admin/users/7/admin", `{}`, auth)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(srv, http.MethodPost, "/admin/users/7/credits", `{"amount":10,"note":"promo"}`, auth)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"data":{"applied":true,"balance":15}}`, resp.Body.String())

	resp = doRequest(srv, http.MethodPost, "/admin/users/7/credits", `{"amount":0}`, auth)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(srv, http.MethodDelete, "/admin/users/1", "", auth)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(srv, http.MethodDelete, "/admin/users/7", "", auth)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, []int64{7}, deps.accounts.deleted)

	resp = doRequest(srv, http.MethodDelete, "/admin/users/7", "", auth)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestIssueAdminTokenValidation(t *testing.T) {
	_, err := IssueAdminToken("", 1, testNow, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = IssueAdminToken(testSecret, 0, testNow, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(meteringdomain.ErrEmptyMessage)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "empty_message", code)

	typ, code = classifyErrorForLog(ErrRateLimited)
	assert.Equal(t, "rate_limited", typ)
	assert.Equal(t, "rate_limited", code)

	typ, code = classifyErrorForLog(nil)
	assert.Empty(t, typ)
	assert.Empty(t, code)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 2, retryAfterSeconds(1500*time.Millisecond))
	assert.Equal(t, "abc", bearerToken("bearer abc"))
	assert.Empty(t, bearerToken("Basic abc"))
}
