package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	stripewebhook "github.com/angelmondragon/stitchwell-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
)

const testSecret = "whsec_test"

type recordingService struct {
	mu     sync.Mutex
	events []string
	fail   []error
}

func (s *recordingService) HandleEvent(_ context.Context, event *stripe.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event.ID)
	if len(s.fail) > 0 {
		err := s.fail[0]
		s.fail = s.fail[1:]
		return err
	}
	return nil
}

type secret string

func (s secret) SigningSecret() string { return string(s) }

// redisLike stands in for pkg/redis behind the real deduper.
type redisLike struct {
	mu   sync.Mutex
	keys map[string]string
}

func (s *redisLike) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

func (s *redisLike) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = fmt.Sprint(value)
	return true, nil
}

func (s *redisLike) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.keys, k)
	}
	return nil
}

func (s *redisLike) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func newHandler(t *testing.T, svc *recordingService) http.HandlerFunc {
	t.Helper()
	deduper, err := stripewebhook.NewEventDeduper(&redisLike{keys: map[string]string{}}, time.Minute, "stripe-webhook")
	require.NoError(t, err)
	return StripeWebhook(svc, secret(testSecret), deduper, nil)
}

func signedDelivery(t *testing.T, eventID string) (payload []byte, header string) {
	t.Helper()
	intent, err := json.Marshal(stripe.PaymentIntent{
		ID:       "pi_123",
		Amount:   4500,
		Currency: stripe.CurrencyUSD,
		Status:   stripe.PaymentIntentStatusSucceeded,
		Metadata: map[string]string{"checkout_id": "chk_123"},
	})
	require.NoError(t, err)
	payload, err = json.Marshal(stripe.Event{
		ID:         eventID,
		Object:     "event",
		Type:       stripe.EventTypePaymentIntentSucceeded,
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: intent},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return payload, signed.Header
}

func deliver(h http.Handler, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set(signatureHeader, header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookAppliesEachEventOnce(t *testing.T) {
	svc := &recordingService{}
	h := newHandler(t, svc)
	payload, header := signedDelivery(t, "evt_once")

	first := deliver(h, payload, header)
	second := deliver(h, payload, header)

	assert.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, []string{"evt_once"}, svc.events)
}

func TestStripeWebhookRejectsUnverifiedDeliveries(t *testing.T) {
	payload, _ := signedDelivery(t, "evt_forged")
	cases := map[string]string{
		"missing signature": "",
		"wrong signature":   "t=1,v1=deadbeef",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &recordingService{}
			rec := deliver(newHandler(t, svc), payload, header)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, svc.events)
		})
	}
}

func TestStripeWebhookReleasesClaimWhenDispatchFails(t *testing.T) {
	svc := &recordingService{fail: []error{pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")}}
	h := newHandler(t, svc)
	payload, header := signedDelivery(t, "evt_retry")

	failed := deliver(h, payload, header)
	retried := deliver(h, payload, header)

	assert.Equal(t, http.StatusServiceUnavailable, failed.Code)
	assert.Equal(t, http.StatusOK, retried.Code, retried.Body.String())
	assert.Equal(t, []string{"evt_retry", "evt_retry"}, svc.events)
}

func TestStripeWebhookWithoutDependencies(t *testing.T) {
	payload, header := signedDelivery(t, "evt_unwired")
	rec := deliver(StripeWebhook(nil, secret(testSecret), nil, nil), payload, header)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
