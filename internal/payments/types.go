package payments

import (
	"context"

	"github.com/stripe/stripe-go/v84"
)

// IntentGateway is the payment-intent surface of the gateway.
type IntentGateway interface {
	Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// Handle is the confirmable payment handle returned to the shopper. Nothing
// here inspects the client secret beyond its presence.
type Handle struct {
	IntentID     string `json:"paymentIntentId"`
	ClientSecret string `json:"clientSecret"`
	AmountMinor  int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Ready reports whether confirmation can start.
func (h *Handle) Ready() bool {
	return h != nil && h.IntentID != "" && h.ClientSecret != ""
}

// PaymentDetails carries the in-page payment method for confirmation.
type PaymentDetails struct {
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
	ReturnURL       string `json:"returnUrl,omitempty" validate:"omitempty,url"`
}

// Confirmation is the outcome of one confirmation attempt that the gateway
// did not reject: either the payment succeeded or the shopper must complete
// an out-of-band challenge (NextActionURL, or the client secret when the
// challenge runs in-page).
type Confirmation struct {
	IntentID      string `json:"paymentIntentId"`
	Status        string `json:"status"`
	Succeeded     bool   `json:"succeeded"`
	NextActionURL string `json:"nextActionUrl,omitempty"`
	AmountMinor   int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// RequiresAction reports whether the shopper must complete a challenge
// before the payment settles.
func (c *Confirmation) RequiresAction() bool {
	return c != nil && !c.Succeeded && c.Status == string(stripe.PaymentIntentStatusRequiresAction)
}
