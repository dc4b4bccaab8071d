package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/stitchwell-backend/api/controllers"
	"github.com/angelmondragon/stitchwell-backend/api/middleware"
	"github.com/angelmondragon/stitchwell-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/stitchwell-backend/internal/checkout"
	"github.com/angelmondragon/stitchwell-backend/internal/orders"
	"github.com/angelmondragon/stitchwell-backend/internal/payments"
	pkgauth "github.com/angelmondragon/stitchwell-backend/pkg/auth"
	"github.com/angelmondragon/stitchwell-backend/pkg/config"
	"github.com/angelmondragon/stitchwell-backend/pkg/db/models"
	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/types"
)

const testSession = "sess-12345678"

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type fakeRedis struct {
	mu       sync.Mutex
	data     map[string]string
	counters map[string]int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, counters: map[string]int64{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeRedis) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeRedis) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]++
	return f.counters[key], nil
}

type stubIntents struct{}

func (stubIntents) CreatePaymentIntent(_ context.Context, amountMinor int64, currency string, _ ...payments.IntentOption) (*payments.Handle, error) {
	return &payments.Handle{IntentID: "pi_1", ClientSecret: "pi_1_secret", AmountMinor: amountMinor, Currency: "usd"}, nil
}

type stubCheckout struct {
	mu     sync.Mutex
	starts int
}

func (s *stubCheckout) Start(_ context.Context, identity *checkoutsvc.Identity, _ string, _ types.ShippingAddress) (checkoutsvc.View, error) {
	s.mu.Lock()
	s.starts++
	s.mu.Unlock()
	if identity == nil {
		return checkoutsvc.View{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to continue to checkout")
	}
	return checkoutsvc.View{ID: "chk_1", State: enums.CheckoutStateAwaitingConfirmation}, nil
}

func (s *stubCheckout) Get(context.Context, *checkoutsvc.Identity, string) (checkoutsvc.View, error) {
	return checkoutsvc.View{ID: "chk_1"}, nil
}

func (s *stubCheckout) UpdateShipping(context.Context, *checkoutsvc.Identity, string, types.ShippingAddress) (checkoutsvc.View, error) {
	return checkoutsvc.View{ID: "chk_1"}, nil
}

func (s *stubCheckout) SubmitPayment(context.Context, *checkoutsvc.Identity, string, payments.PaymentDetails) (checkoutsvc.View, error) {
	return checkoutsvc.View{ID: "chk_1", State: enums.CheckoutStateComplete}, nil
}

func (s *stubCheckout) ResumeConfirmation(context.Context, *checkoutsvc.Identity, string) (checkoutsvc.View, error) {
	return checkoutsvc.View{ID: "chk_1"}, nil
}

func (s *stubCheckout) RetryIntent(context.Context, *checkoutsvc.Identity, string) (checkoutsvc.View, error) {
	return checkoutsvc.View{ID: "chk_1"}, nil
}

func (s *stubCheckout) RetryOrder(context.Context, *checkoutsvc.Identity, string) (checkoutsvc.View, error) {
	return checkoutsvc.View{ID: "chk_1"}, nil
}

func (s *stubCheckout) Abandon(context.Context, *checkoutsvc.Identity, string) error {
	return nil
}

type stubOrders struct {
	owner uuid.UUID
}

func (s stubOrders) CreateOrder(context.Context, orders.CreateOrderInput) (*models.Order, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s stubOrders) GetOrder(_ context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	if userID != s.owner {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return &models.Order{ID: orderID, UserID: userID, Status: enums.OrderStatusPending}, nil
}

func (s stubOrders) FindByPaymentIntent(context.Context, string) (*models.Order, error) {
	return nil, nil
}

type stubWebhookService struct{}

func (stubWebhookService) HandleEvent(context.Context, *stripe.Event) error {
	return nil
}

type stubSigningClient struct{}

func (stubSigningClient) SigningSecret() string {
	return "whsec_test"
}

type stubGuard struct{}

func (stubGuard) Claim(context.Context, string) (bool, error) {
	return true, nil
}

func (stubGuard) Release(context.Context, string) error {
	return nil
}

type harness struct {
	handler  http.Handler
	checkout *stubCheckout
	cfg      *config.Config
	owner    uuid.UUID
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{
			Env:                  "test",
			CORSOrigins:          []string{"http://localhost:3000"},
			PaymentRateLimitIP:   100,
			PaymentRateLimitUser: 100,
		},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "stitchwell", ExpirationMinutes: 60},
	}
	if mutate != nil {
		mutate(cfg)
	}

	storage := cart.NewMemoryStorage(nil)
	carts, err := cart.NewProvider(func(string) cart.Storage { return storage }, nil, nil, nil)
	if err != nil {
		t.Fatalf("cart provider: %v", err)
	}

	h := &harness{checkout: &stubCheckout{}, cfg: cfg, owner: uuid.New()}
	h.handler = NewRouter(Deps{
		Config:  cfg,
		Redis:   newFakeRedis(),
		Pingers: map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{}},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		Carts:         carts,
		Intents:       stubIntents{},
		Checkout:      h.checkout,
		Orders:        stubOrders{owner: h.owner},
		StripeClient:  stubSigningClient{},
		StripeWebhook: stubWebhookService{},
		StripeGuard:   stubGuard{},
	})
	return h
}

func (h *harness) token(t *testing.T) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(h.cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{UserID: h.owner, Role: enums.UserRoleCustomer})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (h *harness) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	h := newHarness(t, nil)
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		if resp := h.do(http.MethodGet, path, "", nil); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestCartRouteMintsSession(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(http.MethodGet, "/api/v1/cart", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if resp.Header().Get(middleware.CartSessionHeader) == "" {
		t.Fatalf("expected a minted cart session header")
	}
}

func TestCartWriteRequiresIdempotencyKey(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(http.MethodPost, "/api/v1/cart/items", `{"productId":"shirt-1"}`, map[string]string{
		middleware.CartSessionHeader: testSession,
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutRequiresAuth(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Checkout.LoginURL = "/login?next=/checkout"
	})
	resp := h.do(http.MethodPost, "/api/v1/checkout", `{}`, map[string]string{
		middleware.CartSessionHeader: testSession,
		middleware.IdempotencyHeader: "key-1",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if h.checkout.starts != 0 {
		t.Fatalf("checkout should not start without auth")
	}
	var body types.ErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if details, _ := body.Error.Details.(map[string]any); details["login_url"] != "/login?next=/checkout" {
		t.Fatalf("expected login_url detail, got %v", body.Error.Details)
	}

	resp = h.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCheckoutRequiresCartSession(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(http.MethodPost, "/api/v1/checkout", `{}`, map[string]string{
		"Authorization":              "Bearer " + h.token(t),
		middleware.IdempotencyHeader: "key-1",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutStartIsReplayedByIdempotencyKey(t *testing.T) {
	h := newHarness(t, nil)
	headers := map[string]string{
		"Authorization":              "Bearer " + h.token(t),
		middleware.CartSessionHeader: testSession,
		middleware.IdempotencyHeader: "key-1",
	}

	first := h.do(http.MethodPost, "/api/v1/checkout", `{}`, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", first.Code, first.Body.String())
	}
	second := h.do(http.MethodPost, "/api/v1/checkout", `{}`, headers)
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", second.Code)
	}
	if second.Header().Get(middleware.ReplayedHeader) != "true" {
		t.Fatalf("expected replay header")
	}
	if h.checkout.starts != 1 {
		t.Fatalf("expected a single start, got %d", h.checkout.starts)
	}
}

func TestPaymentRoutesAreRateLimited(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.App.PaymentRateLimitIP = 1
	})
	headers := map[string]string{
		"Authorization":              "Bearer " + h.token(t),
		middleware.CartSessionHeader: testSession,
	}
	if resp := h.do(http.MethodGet, "/api/v1/checkout/chk_1", "", headers); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	resp := h.do(http.MethodGet, "/api/v1/checkout/chk_1", "", headers)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}

func TestOrderDetailIsOwnerOnly(t *testing.T) {
	h := newHarness(t, nil)
	orderID := uuid.NewString()
	resp := h.do(http.MethodGet, "/api/v1/orders/"+orderID, "", map[string]string{
		"Authorization": "Bearer " + h.token(t),
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestStripeWebhookRequiresSignature(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(http.MethodPost, "/api/v1/webhooks/stripe", `{}`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
