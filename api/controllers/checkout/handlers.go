package checkout

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/stitchwell-backend/api/middleware"
	"github.com/angelmondragon/stitchwell-backend/api/responses"
	"github.com/angelmondragon/stitchwell-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/stitchwell-backend/internal/checkout"
	"github.com/angelmondragon/stitchwell-backend/internal/payments"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	"github.com/angelmondragon/stitchwell-backend/pkg/types"
)

// Orchestrator is the checkout surface the handlers drive.
type Orchestrator interface {
	Start(ctx context.Context, identity *checkoutsvc.Identity, cartSession string, address types.ShippingAddress) (checkoutsvc.View, error)
	Get(ctx context.Context, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error)
	UpdateShipping(ctx context.Context, identity *checkoutsvc.Identity, id string, address types.ShippingAddress) (checkoutsvc.View, error)
	SubmitPayment(ctx context.Context, identity *checkoutsvc.Identity, id string, details payments.PaymentDetails) (checkoutsvc.View, error)
	ResumeConfirmation(ctx context.Context, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error)
	RetryIntent(ctx context.Context, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error)
	RetryOrder(ctx context.Context, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error)
	Abandon(ctx context.Context, identity *checkoutsvc.Identity, id string) error
}

type startRequest struct {
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
}

type shippingRequest struct {
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
}

// Start opens a checkout for the shopper's cart. The address may be partial
// at this point and completed later through UpdateShipping.
func Start(orch Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload startRequest
		if r.ContentLength != 0 {
			if err := decodeLoose(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		view, err := orch.Start(r.Context(), identityFrom(r.Context()), middleware.CartSessionFromContext(r.Context()), payload.ShippingAddress)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// Get returns the checkout view.
func Get(orch Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(logg, func(r *http.Request, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error) {
		return orch.Get(r.Context(), identity, id)
	})
}

// UpdateShipping replaces the shipping address on an open checkout.
func UpdateShipping(orch Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(logg, func(r *http.Request, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error) {
		var payload shippingRequest
		if err := decodeLoose(r, &payload); err != nil {
			return checkoutsvc.View{}, err
		}
		return orch.UpdateShipping(r.Context(), identity, id, payload.ShippingAddress)
	})
}

// Confirm submits the in-page payment method. A declined or failed step is
// reported in the view rather than as an HTTP error.
func Confirm(orch Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(logg, func(r *http.Request, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error) {
		var details payments.PaymentDetails
		if err := validators.DecodeJSONBody(r, &details); err != nil {
			return checkoutsvc.View{}, err
		}
		return orch.SubmitPayment(r.Context(), identity, id, details)
	})
}

// Resume re-reads the intent after the shopper returns from a challenge.
func Resume(orch Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(logg, func(r *http.Request, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error) {
		return orch.ResumeConfirmation(r.Context(), identity, id)
	})
}

// RetryIntent requests a fresh payment intent after the intent step failed.
func RetryIntent(orch Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(logg, func(r *http.Request, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error) {
		return orch.RetryIntent(r.Context(), identity, id)
	})
}

// RetryOrder re-runs order persistence for a paid checkout.
func RetryOrder(orch Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(logg, func(r *http.Request, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error) {
		return orch.RetryOrder(r.Context(), identity, id)
	})
}

// Abandon discards an unpaid checkout.
func Abandon(orch Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.StringParam(r, "checkoutId", 64)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := orch.Abandon(r.Context(), identityFrom(r.Context()), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func withCheckout(logg *logger.Logger, fn func(r *http.Request, identity *checkoutsvc.Identity, id string) (checkoutsvc.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.StringParam(r, "checkoutId", 64)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithCheckoutID(ctx, id)
			r = r.WithContext(ctx)
		}
		view, err := fn(r, identityFrom(ctx), id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// identityFrom returns nil for anonymous callers so the orchestrator can
// answer with its login hint.
func identityFrom(ctx context.Context) *checkoutsvc.Identity {
	userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
	if err != nil || userID == uuid.Nil {
		return nil
	}
	return &checkoutsvc.Identity{UserID: userID, Role: middleware.RoleFromContext(ctx)}
}

// decodeLoose skips struct validation; the orchestrator reports missing
// address fields itself.
func decodeLoose(r *http.Request, dest any) error {
	return validators.DecodeJSON(r, dest)
}
