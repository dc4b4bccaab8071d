package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("payment provider temporarily unavailable")

// BreakerSettings tunes when gateway calls stop being attempted.
type BreakerSettings struct {
	Name        string
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Breaker guards payment intent calls. Card declines and invalid requests are
// answers from a healthy gateway and do not count as failures.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[*stripe.PaymentIntent]
}

func NewBreaker(settings BreakerSettings, logg *logger.Logger) *Breaker {
	if settings.Name == "" {
		settings.Name = "stripe-payment-intents"
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	maxFailures := settings.MaxFailures
	cb := gobreaker.NewCircuitBreaker[*stripe.PaymentIntent](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: isHealthyResponse,
		OnStateChange: func(name string, from, to gobreaker.State) {
			ctx := logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			logg.Warn(ctx, "payment gateway breaker state changed")
		},
	})
	return &Breaker{cb: cb}
}

// Do runs fn through the breaker.
func (b *Breaker) Do(fn func() (*stripe.PaymentIntent, error)) (*stripe.PaymentIntent, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	pi, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return pi, err
}

// State reports the breaker state for health output.
func (b *Breaker) State() string {
	if b == nil || b.cb == nil {
		return gobreaker.StateClosed.String()
	}
	return b.cb.State().String()
}

func isHealthyResponse(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeIdempotency:
			return true
		}
	}
	return false
}

// Message extracts the shopper-facing text of a gateway error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnavailable) {
		return ErrUnavailable.Error()
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Msg != "" {
			return stripeErr.Msg
		}
		if stripeErr.Code != "" {
			return string(stripeErr.Code)
		}
	}
	return err.Error()
}

// DeclineCode returns the gateway decline code (e.g. card_declined) if any.
func DeclineCode(err error) string {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return ""
	}
	if stripeErr.DeclineCode != "" {
		return string(stripeErr.DeclineCode)
	}
	return string(stripeErr.Code)
}
