package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/stitchwell-backend/api/responses"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
)

const (
	signatureHeader = "Stripe-Signature"
	// Stripe caps event payloads well below this.
	maxEventBytes = 64 << 10
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// EventClaimer deduplicates deliveries by Stripe event id.
type EventClaimer interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type SigningClient interface {
	SigningSecret() string
}

// StripeWebhook verifies the signature, then applies each event id once.
// A redelivery is acknowledged with 200; a failed dispatch releases the claim
// and returns the error status so Stripe retries.
func StripeWebhook(svc StripeWebhookService, client SigningClient, claims EventClaimer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || client == nil || claims == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		event, err := verifiedEvent(w, r, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ctx = logg.WithFields(ctx, map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": string(event.Type),
		})

		first, err := claims.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		if !first {
			logg.Info(ctx, "stripe event redelivered, skipping")
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if relErr := claims.Release(context.WithoutCancel(ctx), event.ID); relErr != nil {
				logg.Error(ctx, "failed to release stripe event", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(ctx, "stripe event processed")
		responses.WriteSuccess(w, nil)
	}
}

func verifiedEvent(w http.ResponseWriter, r *http.Request, secret string) (stripe.Event, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	event, err := webhook.ConstructEvent(payload, sig, secret)
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature")
	}
	return event, nil
}
