// Package stripe configures the Stripe SDK and wraps payment intent calls in
// a circuit breaker.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/stitchwell-backend/pkg/config"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
)

// keyPrefixes lists the secret and restricted key prefixes accepted per mode.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

// Client holds the validated credentials for one Stripe mode.
type Client struct {
	mode          string
	signingSecret string
}

// NewClient sets the SDK key used by the paymentintent package. A test key in
// live mode, or the reverse, is rejected at startup.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := cfg.Environment()
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be test or live, got %q", mode)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	if !slices.ContainsFunc(prefixes, func(p string) bool { return strings.HasPrefix(apiKey, p) }) {
		return nil, fmt.Errorf("stripe %s mode requires a key starting with %s", mode, strings.Join(prefixes, " or "))
	}

	stripe.Key = apiKey
	logg.Info(logg.WithField(ctx, "stripe_mode", mode), "stripe client initialized")
	return &Client{mode: mode, signingSecret: secret}, nil
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.mode
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}
