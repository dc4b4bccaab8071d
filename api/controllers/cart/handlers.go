package cart

import (
	"context"
	"net/http"

	"github.com/angelmondragon/stitchwell-backend/api/middleware"
	"github.com/angelmondragon/stitchwell-backend/api/responses"
	"github.com/angelmondragon/stitchwell-backend/api/validators"
	cartsvc "github.com/angelmondragon/stitchwell-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
)

// Opener runs fn against the shopper's cart.
type Opener interface {
	With(ctx context.Context, session string, fn func(*cartsvc.Store) error) error
}

// withCart resolves the session, re-keys guest lines to the caller when
// authenticated, runs fn and writes the resulting cart.
func withCart(w http.ResponseWriter, r *http.Request, carts Opener, logg *logger.Logger, status int, fn func(*cartsvc.Store) error) {
	if carts == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart provider unavailable"))
		return
	}
	session := middleware.CartSessionFromContext(r.Context())
	userID := middleware.UserIDFromContext(r.Context())

	var payload cartResponse
	err := carts.With(r.Context(), session, func(store *cartsvc.Store) error {
		if userID != "" {
			if err := store.SetCustomer(r.Context(), userID); err != nil {
				return err
			}
		}
		if fn != nil {
			if err := fn(store); err != nil {
				return err
			}
		}
		payload = newCartResponse(session, store)
		return nil
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, status, payload)
}

// CartFetch returns the shopper's cart and summary.
func CartFetch(carts Opener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		withCart(w, r, carts, logg, http.StatusOK, nil)
	}
}

// CartAddItem adds a catalog product. Prices always come from the catalog.
func CartAddItem(carts Opener, catalog cartsvc.ProductLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := lookup(r.Context(), catalog, payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product.VariantID = payload.VariantID

		withCart(w, r, carts, logg, http.StatusCreated, func(store *cartsvc.Store) error {
			_, err := store.AddItem(r.Context(), product, payload.quantity(), payload.Selections)
			return err
		})
	}
}

// CartAddCustomItem adds a customized product at the configurator's price.
// The price may not undercut the catalog base price.
func CartAddCustomItem(carts Opener, catalog cartsvc.ProductLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addCustomItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		price, err := payload.price()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := lookup(r.Context(), catalog, payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if price.LessThan(product.Price) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "computedPrice is below the product base price").
				WithDetails(map[string]any{"basePrice": product.Price.StringFixed(2)}))
			return
		}

		withCart(w, r, carts, logg, http.StatusCreated, func(store *cartsvc.Store) error {
			_, err := store.AddCustomizedItem(r.Context(), product, payload.Customization, price)
			return err
		})
	}
}

// CartUpdateQuantity sets a line quantity; zero removes the line.
func CartUpdateQuantity(carts Opener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.StringParam(r, "lineId", 256)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		withCart(w, r, carts, logg, http.StatusOK, func(store *cartsvc.Store) error {
			return store.UpdateQuantity(r.Context(), lineID, *payload.Quantity)
		})
	}
}

// CartRemoveItem deletes one line.
func CartRemoveItem(carts Opener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.StringParam(r, "lineId", 256)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		withCart(w, r, carts, logg, http.StatusOK, func(store *cartsvc.Store) error {
			return store.RemoveItem(r.Context(), lineID)
		})
	}
}

// CartClear empties the cart.
func CartClear(carts Opener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		withCart(w, r, carts, logg, http.StatusOK, func(store *cartsvc.Store) error {
			return store.Clear(r.Context())
		})
	}
}

func lookup(ctx context.Context, catalog cartsvc.ProductLookup, productID string) (cartsvc.Product, error) {
	if catalog == nil {
		return cartsvc.Product{}, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable")
	}
	return catalog.LookupProduct(ctx, productID)
}
