package payments

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/stitchwell-backend/api/middleware"
	"github.com/angelmondragon/stitchwell-backend/api/responses"
	"github.com/angelmondragon/stitchwell-backend/api/validators"
	"github.com/angelmondragon/stitchwell-backend/internal/cart"
	paymentsvc "github.com/angelmondragon/stitchwell-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	"github.com/angelmondragon/stitchwell-backend/pkg/money"
)

type cartOpener interface {
	With(ctx context.Context, session string, fn func(*cart.Store) error) error
}

type intentCreator interface {
	CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, opts ...paymentsvc.IntentOption) (*paymentsvc.Handle, error)
}

type createIntentRequest struct {
	Currency string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

// CreateIntent requests a payment handle for the current cart total. The
// amount always comes from the cart, never from the request body.
func CreateIntent(carts cartOpener, intents intentCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if carts == nil || intents == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments unavailable"))
			return
		}

		var payload createIntentRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		session := middleware.CartSessionFromContext(ctx)
		var summary cart.Summary
		if err := carts.With(ctx, session, func(store *cart.Store) error {
			summary = store.Summary()
			return nil
		}); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if summary.ItemsCount == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeEmptyCart, "your cart is empty"))
			return
		}

		opts := []paymentsvc.IntentOption{
			paymentsvc.WithMetadata("user_id", middleware.UserIDFromContext(ctx)),
			paymentsvc.WithMetadata("cart_session", session),
		}
		if key := strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader)); key != "" {
			opts = append(opts, paymentsvc.WithIdempotencyKey("intent:"+session+":"+key))
		}

		handle, err := intents.CreatePaymentIntent(ctx, money.ToMinor(summary.TotalAmount), payload.Currency, opts...)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, handle)
	}
}
