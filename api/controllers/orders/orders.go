package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/stitchwell-backend/api/middleware"
	"github.com/angelmondragon/stitchwell-backend/api/responses"
	"github.com/angelmondragon/stitchwell-backend/api/validators"
	internalorders "github.com/angelmondragon/stitchwell-backend/internal/orders"
	"github.com/angelmondragon/stitchwell-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
)

type orderReader interface {
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
}

// Detail returns an order to its owner. Orders belonging to someone else
// are reported as not found.
func Detail(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil || userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		orderID, err := validators.UUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}
