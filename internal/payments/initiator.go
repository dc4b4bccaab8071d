package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	"github.com/angelmondragon/stitchwell-backend/pkg/metrics"
	"github.com/angelmondragon/stitchwell-backend/pkg/money"
	pkgstripe "github.com/angelmondragon/stitchwell-backend/pkg/stripe"
)

// IntentOption customizes one intent request.
type IntentOption func(*stripe.PaymentIntentParams)

// WithIdempotencyKey makes a repeated request return the same intent.
func WithIdempotencyKey(key string) IntentOption {
	return func(p *stripe.PaymentIntentParams) {
		if key != "" {
			p.SetIdempotencyKey(key)
		}
	}
}

// WithMetadata attaches reconciliation metadata to the intent.
func WithMetadata(key, value string) IntentOption {
	return func(p *stripe.PaymentIntentParams) {
		if key != "" && value != "" {
			p.AddMetadata(key, value)
		}
	}
}

// Initiator turns a cart amount into a confirmable payment handle.
type Initiator struct {
	gateway         IntentGateway
	defaultCurrency string
	metrics         *metrics.CheckoutMetrics
	logg            *logger.Logger
}

func NewInitiator(gateway IntentGateway, defaultCurrency string, m *metrics.CheckoutMetrics, logg *logger.Logger) (*Initiator, error) {
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	currency, err := money.NormalizeCurrency(defaultCurrency)
	if err != nil {
		return nil, err
	}
	return &Initiator{
		gateway:         gateway,
		defaultCurrency: currency,
		metrics:         m,
		logg:            logg,
	}, nil
}

// CreatePaymentIntent asks the gateway for a payment handle. Non-positive
// amounts are rejected before any gateway call. Gateway failures are logged
// and returned as GATEWAY_ERROR carrying the gateway message.
func (i *Initiator) CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, opts ...IntentOption) (*Handle, error) {
	if amountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "payment amount must be greater than zero").
			WithDetails(map[string]any{"amount": amountMinor})
	}
	if currency == "" {
		currency = i.defaultCurrency
	}
	currency, err := money.NormalizeCurrency(currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for _, opt := range opts {
		opt(params)
	}

	started := time.Now()
	pi, err := i.gateway.Create(ctx, params)
	i.metrics.ObserveGateway("create_intent", err, time.Since(started))
	if err != nil {
		return nil, gatewayError(ctx, i.logg, "payment intent creation failed", err, map[string]any{
			"amount_minor": amountMinor,
			"currency":     currency,
		})
	}
	if pi == nil || pi.ClientSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "payment provider returned no client secret")
	}

	i.logg.Info(i.logg.WithFields(ctx, map[string]any{
		"payment_intent_id": pi.ID,
		"amount_minor":      amountMinor,
		"currency":          currency,
	}), "payment intent created")

	return &Handle{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  amountMinor,
		Currency:     currency,
	}, nil
}

func gatewayError(ctx context.Context, logg *logger.Logger, msg string, err error, fields map[string]any) error {
	message := pkgstripe.Message(err)
	details := map[string]any{"gateway_message": message}
	if code := pkgstripe.DeclineCode(err); code != "" {
		details["decline_code"] = code
	}
	fields["gateway_message"] = message
	logg.Error(logg.WithFields(ctx, fields), msg, err)
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, message).WithDetails(details)
}
