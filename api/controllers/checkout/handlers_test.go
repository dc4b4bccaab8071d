package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stitchwell-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/stitchwell-backend/internal/checkout"
	"github.com/angelmondragon/stitchwell-backend/internal/payments"
	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/types"
)

var userID = uuid.MustParse("0d3f7a52-8b3c-4f0e-9a66-5f2a1c7e9b10")

type stubOrchestrator struct {
	calls     []string
	identity  *checkoutsvc.Identity
	session   string
	address   types.ShippingAddress
	details   payments.PaymentDetails
	view      checkoutsvc.View
	err       error
	abandoned string
}

func (s *stubOrchestrator) record(name string, identity *checkoutsvc.Identity) {
	s.calls = append(s.calls, name)
	s.identity = identity
}

func (s *stubOrchestrator) Start(_ context.Context, identity *checkoutsvc.Identity, cartSession string, address types.ShippingAddress) (checkoutsvc.View, error) {
	s.record("start", identity)
	s.session = cartSession
	s.address = address
	return s.view, s.err
}

func (s *stubOrchestrator) Get(_ context.Context, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error) {
	s.record("get:"+id, identity)
	return s.view, s.err
}

func (s *stubOrchestrator) UpdateShipping(_ context.Context, identity *checkoutsvc.Identity, id string, address types.ShippingAddress) (checkoutsvc.View, error) {
	s.record("shipping:"+id, identity)
	s.address = address
	return s.view, s.err
}

func (s *stubOrchestrator) SubmitPayment(_ context.Context, identity *checkoutsvc.Identity, id string, details payments.PaymentDetails) (checkoutsvc.View, error) {
	s.record("confirm:"+id, identity)
	s.details = details
	return s.view, s.err
}

func (s *stubOrchestrator) ResumeConfirmation(_ context.Context, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error) {
	s.record("resume:"+id, identity)
	return s.view, s.err
}

func (s *stubOrchestrator) RetryIntent(_ context.Context, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error) {
	s.record("retry-intent:"+id, identity)
	return s.view, s.err
}

func (s *stubOrchestrator) RetryOrder(_ context.Context, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error) {
	s.record("retry-order:"+id, identity)
	return s.view, s.err
}

func (s *stubOrchestrator) Abandon(_ context.Context, identity *checkoutsvc.Identity, id string) error {
	s.record("abandon:"+id, identity)
	s.abandoned = id
	return s.err
}

func router(orch Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Post("/checkout", Start(orch, nil))
	r.Get("/checkout/{checkoutId}", Get(orch, nil))
	r.Put("/checkout/{checkoutId}/shipping", UpdateShipping(orch, nil))
	r.Post("/checkout/{checkoutId}/confirm", Confirm(orch, nil))
	r.Post("/checkout/{checkoutId}/resume", Resume(orch, nil))
	r.Post("/checkout/{checkoutId}/retry-intent", RetryIntent(orch, nil))
	r.Post("/checkout/{checkoutId}/retry-order", RetryOrder(orch, nil))
	r.Delete("/checkout/{checkoutId}", Abandon(orch, nil))
	return r
}

func serve(h http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := middleware.WithCartSession(req.Context(), "sess-12345678")
	if authed {
		ctx = middleware.WithUserID(ctx, userID.String())
		ctx = middleware.WithRole(ctx, "customer")
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req.WithContext(ctx))
	return resp
}

func TestStartPassesIdentityAndCartSession(t *testing.T) {
	orch := &stubOrchestrator{view: checkoutsvc.View{ID: "chk_1", State: enums.CheckoutStateAwaitingConfirmation}}
	body := `{"shippingAddress":{"firstName":"Ada","lastName":"Lovelace","address":"1 Loom St","city":"London","zip":"N1","country":"UK"}}`

	resp := serve(router(orch), http.MethodPost, "/checkout", body, true)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.NotNil(t, orch.identity)
	assert.Equal(t, userID, orch.identity.UserID)
	assert.Equal(t, "customer", orch.identity.Role)
	assert.Equal(t, "sess-12345678", orch.session)
	assert.Equal(t, "Ada", orch.address.FirstName)

	var env struct {
		Data checkoutsvc.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	assert.Equal(t, "chk_1", env.Data.ID)
}

func TestStartAcceptsPartialAddress(t *testing.T) {
	orch := &stubOrchestrator{}
	resp := serve(router(orch), http.MethodPost, "/checkout", `{"shippingAddress":{"city":"Paris"}}`, true)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "Paris", orch.address.City)
}

func TestAnonymousCallerHasNoIdentity(t *testing.T) {
	orch := &stubOrchestrator{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to continue to checkout")}
	resp := serve(router(orch), http.MethodPost, "/checkout", "", false)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Nil(t, orch.identity)
}

func TestConfirmRequiresPaymentMethod(t *testing.T) {
	orch := &stubOrchestrator{}
	resp := serve(router(orch), http.MethodPost, "/checkout/chk_1/confirm", `{}`, true)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, orch.calls)
}

func TestConfirmReportsStepFailureInView(t *testing.T) {
	orch := &stubOrchestrator{view: checkoutsvc.View{
		ID:         "chk_1",
		State:      enums.CheckoutStateError,
		FailedStep: enums.CheckoutStepPaymentConfirmation,
		Error:      &checkoutsvc.Failure{Step: enums.CheckoutStepPaymentConfirmation, Code: pkgerrors.CodeGateway, Message: "Your card was declined."},
	}}
	resp := serve(router(orch), http.MethodPost, "/checkout/chk_1/confirm", `{"paymentMethodId":"pm_card_visa"}`, true)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "pm_card_visa", orch.details.PaymentMethodID)
	assert.Contains(t, resp.Body.String(), "Your card was declined.")
}

func TestCheckoutRoutesDispatch(t *testing.T) {
	cases := []struct {
		method string
		path   string
		body   string
		call   string
		status int
	}{
		{http.MethodGet, "/checkout/chk_1", "", "get:chk_1", http.StatusOK},
		{http.MethodPut, "/checkout/chk_1/shipping", `{"shippingAddress":{"city":"Rome"}}`, "shipping:chk_1", http.StatusOK},
		{http.MethodPost, "/checkout/chk_1/resume", "", "resume:chk_1", http.StatusOK},
		{http.MethodPost, "/checkout/chk_1/retry-intent", "", "retry-intent:chk_1", http.StatusOK},
		{http.MethodPost, "/checkout/chk_1/retry-order", "", "retry-order:chk_1", http.StatusOK},
		{http.MethodDelete, "/checkout/chk_1", "", "abandon:chk_1", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.call, func(t *testing.T) {
			orch := &stubOrchestrator{}
			resp := serve(router(orch), tc.method, tc.path, tc.body, true)
			require.Equal(t, tc.status, resp.Code)
			require.Equal(t, []string{tc.call}, orch.calls)
		})
	}
}

func TestStateConflictMapsTo422(t *testing.T) {
	orch := &stubOrchestrator{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order persistence can only be retried after it failed")}
	resp := serve(router(orch), http.MethodPost, "/checkout/chk_1/retry-order", "", true)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
