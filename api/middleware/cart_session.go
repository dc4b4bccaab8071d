package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stitchwell-backend/api/responses"
	"github.com/angelmondragon/stitchwell-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
)

// CartSessionHeader carries the shopper's cart session between requests.
const CartSessionHeader = "X-Cart-Session"

// CartSession resolves the shopper session from the X-Cart-Session header.
// When the header is absent and mint is true a new session is issued and
// echoed back so the client can store it.
func CartSession(mint bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := strings.TrimSpace(r.Header.Get(CartSessionHeader))
			switch {
			case session == "" && mint:
				session = strings.ReplaceAll(uuid.NewString(), "-", "")
			case session == "":
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "X-Cart-Session header required"))
				return
			case !cart.ValidSession(session):
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart session"))
				return
			}

			w.Header().Set(CartSessionHeader, session)
			ctx := WithCartSession(r.Context(), session)
			if logg != nil {
				ctx = logg.WithCartSession(ctx, session)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
