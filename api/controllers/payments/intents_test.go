package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/stitchwell-backend/api/middleware"
	"github.com/angelmondragon/stitchwell-backend/internal/cart"
	paymentsvc "github.com/angelmondragon/stitchwell-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
)

const session = "sess-12345678"

type stubIntents struct {
	amount   int64
	currency string
	params   *stripe.PaymentIntentParams
	err      error
}

func (s *stubIntents) CreatePaymentIntent(_ context.Context, amountMinor int64, currency string, opts ...paymentsvc.IntentOption) (*paymentsvc.Handle, error) {
	s.amount = amountMinor
	s.currency = currency
	s.params = &stripe.PaymentIntentParams{}
	for _, opt := range opts {
		opt(s.params)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &paymentsvc.Handle{IntentID: "pi_123", ClientSecret: "pi_123_secret", AmountMinor: amountMinor, Currency: "usd"}, nil
}

func newProvider(t *testing.T, price string, qty int) *cart.Provider {
	t.Helper()
	storage := cart.NewMemoryStorage(nil)
	provider, err := cart.NewProvider(func(string) cart.Storage { return storage }, nil, nil, nil)
	require.NoError(t, err)
	if qty > 0 {
		err = provider.With(context.Background(), session, func(store *cart.Store) error {
			_, err := store.AddItem(context.Background(), cart.Product{ID: "shirt-1", Name: "Shirt", Price: decimal.RequireFromString(price), Stock: 10}, qty, nil)
			return err
		})
		require.NoError(t, err)
	}
	return provider
}

func newRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(body))
	ctx := middleware.WithCartSession(req.Context(), session)
	ctx = middleware.WithUserID(ctx, "3f8d1c1e-2f2f-4c51-9f2e-0c9d5b1b7a11")
	return req.WithContext(ctx)
}

func TestCreateIntentUsesCartTotal(t *testing.T) {
	intents := &stubIntents{}
	handler := CreateIntent(newProvider(t, "49.99", 2), intents, nil)

	req := newRequest("")
	req.Header.Set(middleware.IdempotencyHeader, "key-1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, int64(9998), intents.amount)
	require.Equal(t, "3f8d1c1e-2f2f-4c51-9f2e-0c9d5b1b7a11", intents.params.Metadata["user_id"])
	require.Equal(t, session, intents.params.Metadata["cart_session"])
	require.NotNil(t, intents.params.IdempotencyKey)
	require.Equal(t, "intent:"+session+":key-1", *intents.params.IdempotencyKey)

	var body struct {
		Data paymentsvc.Handle `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "pi_123_secret", body.Data.ClientSecret)
}

func TestCreateIntentPassesCurrency(t *testing.T) {
	intents := &stubIntents{}
	handler := CreateIntent(newProvider(t, "10", 1), intents, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, newRequest(`{"currency":"eur"}`))

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, "eur", intents.currency)
}

func TestCreateIntentRejectsEmptyCart(t *testing.T) {
	intents := &stubIntents{}
	handler := CreateIntent(newProvider(t, "10", 0), intents, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, newRequest(""))

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.Zero(t, intents.amount)
}

func TestCreateIntentSurfacesGatewayError(t *testing.T) {
	intents := &stubIntents{err: pkgerrors.New(pkgerrors.CodeGateway, "Your card was declined.")}
	handler := CreateIntent(newProvider(t, "10", 1), intents, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, newRequest(""))

	require.Equal(t, http.StatusPaymentRequired, resp.Code)
	require.Contains(t, resp.Body.String(), "Your card was declined.")
}
