package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	"github.com/angelmondragon/stitchwell-backend/pkg/metrics"
)

// Confirmer drives a handle to gateway-confirmed success. It never creates
// orders; callers advance only on a successful Confirmation.
type Confirmer struct {
	gateway   IntentGateway
	returnURL string
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
}

func NewConfirmer(gateway IntentGateway, returnURL string, m *metrics.CheckoutMetrics, logg *logger.Logger) (*Confirmer, error) {
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	return &Confirmer{
		gateway:   gateway,
		returnURL: strings.TrimSpace(returnURL),
		metrics:   m,
		logg:      logg,
	}, nil
}

// Confirm issues exactly one confirmation request for the handle. The
// in-page path is preferred; a redirect is only surfaced when the gateway
// requires one.
func (c *Confirmer) Confirm(ctx context.Context, handle *Handle, details PaymentDetails) (*Confirmation, error) {
	if !handle.Ready() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment not ready")
	}
	methodID := strings.TrimSpace(details.PaymentMethodID)
	if methodID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(methodID),
	}
	returnURL := strings.TrimSpace(details.ReturnURL)
	if returnURL == "" {
		returnURL = c.returnURL
	}
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}

	started := time.Now()
	pi, err := c.gateway.Confirm(ctx, handle.IntentID, params)
	c.metrics.ObserveGateway("confirm_intent", err, time.Since(started))
	if err != nil {
		return nil, gatewayError(ctx, c.logg, "payment confirmation failed", err, map[string]any{
			"payment_intent_id": handle.IntentID,
		})
	}
	return c.interpret(ctx, handle, pi)
}

// Refresh re-reads the intent after an out-of-band challenge completed.
func (c *Confirmer) Refresh(ctx context.Context, handle *Handle) (*Confirmation, error) {
	if !handle.Ready() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment not ready")
	}
	started := time.Now()
	pi, err := c.gateway.Get(ctx, handle.IntentID, nil)
	c.metrics.ObserveGateway("get_intent", err, time.Since(started))
	if err != nil {
		return nil, gatewayError(ctx, c.logg, "payment status lookup failed", err, map[string]any{
			"payment_intent_id": handle.IntentID,
		})
	}
	return c.interpret(ctx, handle, pi)
}

func (c *Confirmer) interpret(ctx context.Context, handle *Handle, pi *stripe.PaymentIntent) (*Confirmation, error) {
	if pi == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "payment provider returned no intent")
	}
	if pi.ID != "" && pi.ID != handle.IntentID {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "payment provider returned a different intent")
	}
	if pi.Amount > 0 && pi.Amount != handle.AmountMinor {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "payment amount does not match the requested amount").
			WithDetails(map[string]any{"requested": handle.AmountMinor, "confirmed": pi.Amount})
	}

	result := &Confirmation{
		IntentID:    handle.IntentID,
		Status:      string(pi.Status),
		AmountMinor: handle.AmountMinor,
		Currency:    handle.Currency,
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"payment_intent_id": handle.IntentID,
		"status":            string(pi.Status),
	})

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusProcessing:
		result.Succeeded = true
		c.logg.Info(logCtx, "payment confirmed")
		return result, nil
	case stripe.PaymentIntentStatusRequiresAction:
		result.NextActionURL = nextActionURL(pi)
		c.logg.Info(logCtx, "payment requires shopper action")
		return result, nil
	case stripe.PaymentIntentStatusCanceled:
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "payment was canceled")
	default:
		message := "payment could not be completed"
		if pi.LastPaymentError != nil {
			if pi.LastPaymentError.Msg != "" {
				message = pi.LastPaymentError.Msg
			} else if pi.LastPaymentError.Code != "" {
				message = string(pi.LastPaymentError.Code)
			}
		}
		c.logg.Warn(c.logg.WithField(logCtx, "gateway_message", message), "payment not completed")
		return nil, pkgerrors.New(pkgerrors.CodeGateway, message).
			WithDetails(map[string]any{"gateway_message": message, "status": string(pi.Status)})
	}
}

func nextActionURL(pi *stripe.PaymentIntent) string {
	if pi.NextAction == nil || pi.NextAction.RedirectToURL == nil {
		return ""
	}
	return pi.NextAction.RedirectToURL.URL
}
