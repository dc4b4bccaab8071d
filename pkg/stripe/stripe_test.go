package stripe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/stitchwell-backend/pkg/config"
)

func TestNewClientValidatesKeysAgainstEnvironment(t *testing.T) {
	ctx := context.Background()

	if _, err := NewClient(ctx, config.StripeConfig{Env: "test", WebhookSecret: "whsec"}, nil); err == nil {
		t.Fatal("expected missing api key to fail")
	}
	if _, err := NewClient(ctx, config.StripeConfig{Env: "test", APIKey: "sk_test_123"}, nil); err == nil {
		t.Fatal("expected missing webhook secret to fail")
	}
	if _, err := NewClient(ctx, config.StripeConfig{Env: "live", APIKey: "sk_test_123", WebhookSecret: "whsec"}, nil); err == nil {
		t.Fatal("expected test key in live env to fail")
	}
	if _, err := NewClient(ctx, config.StripeConfig{Env: "staging", APIKey: "sk_test_123", WebhookSecret: "whsec"}, nil); err == nil {
		t.Fatal("expected unknown env to fail")
	}

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_123", WebhookSecret: "whsec"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Environment() != "test" {
		t.Fatalf("expected default test env, got %q", client.Environment())
	}
	if client.SigningSecret() != "whsec" {
		t.Fatalf("unexpected signing secret %q", client.SigningSecret())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}, nil)
	calls := 0
	failing := func() (*stripe.PaymentIntent, error) {
		calls++
		return nil, &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "upstream exploded"}
	}

	for i := 0; i < 2; i++ {
		if _, err := b.Do(failing); err == nil {
			t.Fatal("expected failure")
		}
	}
	_, err := b.Do(failing)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable once open, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected the open breaker to skip the call, got %d calls", calls)
	}
	if b.State() != "open" {
		t.Fatalf("expected open state, got %s", b.State())
	}
}

func TestBreakerIgnoresCardDeclines(t *testing.T) {
	b := NewBreaker(BreakerSettings{MaxFailures: 1, OpenTimeout: time.Minute}, nil)
	declined := func() (*stripe.PaymentIntent, error) {
		return nil, &stripe.Error{Type: stripe.ErrorTypeCard, Code: stripe.ErrorCodeCardDeclined, Msg: "Your card was declined."}
	}
	for i := 0; i < 3; i++ {
		_, err := b.Do(declined)
		if errors.Is(err, ErrUnavailable) {
			t.Fatal("card declines must not open the breaker")
		}
	}
}

func TestMessageAndDeclineCode(t *testing.T) {
	declined := &stripe.Error{Type: stripe.ErrorTypeCard, Code: stripe.ErrorCodeCardDeclined, Msg: "Your card was declined."}
	if got := Message(declined); got != "Your card was declined." {
		t.Fatalf("unexpected message %q", got)
	}
	if got := DeclineCode(declined); got != "card_declined" {
		t.Fatalf("unexpected decline code %q", got)
	}
	if got := Message(&stripe.Error{Code: stripe.ErrorCodeCardDeclined}); got != "card_declined" {
		t.Fatalf("expected code fallback, got %q", got)
	}
	if got := Message(errors.New("dial tcp: timeout")); got != "dial tcp: timeout" {
		t.Fatalf("unexpected plain message %q", got)
	}
	if Message(nil) != "" {
		t.Fatal("expected empty message for nil")
	}
}

type fakeBackend struct {
	newParams     *stripe.PaymentIntentParams
	confirmID     string
	confirmParams *stripe.PaymentIntentConfirmParams
}

func (f *fakeBackend) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.newParams = params
	return &stripe.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil
}

func (f *fakeBackend) Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	f.confirmID = id
	f.confirmParams = params
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded}, nil
}

func (f *fakeBackend) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusProcessing}, nil
}

type ctxMarker struct{}

func TestIntentClientAttachesContext(t *testing.T) {
	backend := &fakeBackend{}
	client := &IntentClient{backend: backend}
	ctx := context.WithValue(context.Background(), ctxMarker{}, "marker")

	params := &stripe.PaymentIntentParams{Amount: stripe.Int64(20000), Currency: stripe.String("usd")}
	pi, err := client.Create(ctx, params)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if pi.ClientSecret != "pi_1_secret" {
		t.Fatalf("unexpected client secret %q", pi.ClientSecret)
	}
	if backend.newParams.Context != ctx {
		t.Fatal("expected params to carry the request context")
	}

	if _, err := client.Confirm(ctx, "pi_1", &stripe.PaymentIntentConfirmParams{}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if backend.confirmID != "pi_1" || backend.confirmParams.Context != ctx {
		t.Fatal("confirm did not forward id and context")
	}

	got, err := client.Get(ctx, "pi_1", nil)
	if err != nil || got.Status != stripe.PaymentIntentStatusProcessing {
		t.Fatalf("unexpected get result %+v %v", got, err)
	}
}
