package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

type intentBackend interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type packageBackend struct{}

func (packageBackend) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

func (packageBackend) Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Confirm(id, params)
}

func (packageBackend) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Get(id, params)
}

// IntentClient issues payment intent calls through the breaker.
type IntentClient struct {
	backend intentBackend
	breaker *Breaker
}

// NewIntentClient returns nil without a configured Client, since the SDK key
// is only set by NewClient.
func NewIntentClient(api *Client, breaker *Breaker) *IntentClient {
	if api == nil {
		return nil
	}
	return &IntentClient{backend: packageBackend{}, breaker: breaker}
}

func (c *IntentClient) Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return c.breaker.Do(func() (*stripe.PaymentIntent, error) {
		return c.backend.New(params)
	})
}

func (c *IntentClient) Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return c.breaker.Do(func() (*stripe.PaymentIntent, error) {
		return c.backend.Confirm(id, params)
	})
}

func (c *IntentClient) Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params == nil {
		params = &stripe.PaymentIntentParams{}
	}
	params.Context = ctx
	return c.breaker.Do(func() (*stripe.PaymentIntent, error) {
		return c.backend.Get(id, params)
	})
}
