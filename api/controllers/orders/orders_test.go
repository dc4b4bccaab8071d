package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stitchwell-backend/api/middleware"
	internalorders "github.com/angelmondragon/stitchwell-backend/internal/orders"
	"github.com/angelmondragon/stitchwell-backend/pkg/db/models"
	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
)

type stubOrderReader struct {
	get func(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
}

func (s stubOrderReader) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	return s.get(ctx, userID, orderID)
}

func detailRequest(orderID, userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", orderID)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	return req
}

func TestDetailSuccess(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	svc := stubOrderReader{get: func(ctx context.Context, incomingUser, incomingOrder uuid.UUID) (*models.Order, error) {
		if incomingUser != userID || incomingOrder != orderID {
			t.Fatalf("unexpected lookup %s/%s", incomingUser, incomingOrder)
		}
		return &models.Order{
			ID:         orderID,
			UserID:     userID,
			Status:     enums.OrderStatusPending,
			TotalPrice: decimal.RequireFromString("120.00"),
			Currency:   "usd",
			Items: []models.OrderItem{
				{ProductID: "shirt-1", Quantity: 2, Price: decimal.RequireFromString("60.00")},
			},
		}, nil
	}}

	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, detailRequest(orderID.String(), userID.String()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data internalorders.OrderDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != orderID || len(envelope.Data.Items) != 1 {
		t.Fatalf("unexpected order payload %+v", envelope.Data)
	}
	if !envelope.Data.TotalPrice.Equal(decimal.RequireFromString("120")) {
		t.Fatalf("unexpected total %s", envelope.Data.TotalPrice)
	}
}

func TestDetailRequiresUser(t *testing.T) {
	svc := stubOrderReader{get: func(context.Context, uuid.UUID, uuid.UUID) (*models.Order, error) {
		t.Fatalf("service should not be called")
		return nil, nil
	}}
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, detailRequest(uuid.NewString(), ""))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestDetailInvalidOrderID(t *testing.T) {
	svc := stubOrderReader{get: func(context.Context, uuid.UUID, uuid.UUID) (*models.Order, error) {
		t.Fatalf("service should not be called")
		return nil, nil
	}}
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, detailRequest("not-a-uuid", uuid.NewString()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDetailHidesForeignOrders(t *testing.T) {
	svc := stubOrderReader{get: func(context.Context, uuid.UUID, uuid.UUID) (*models.Order, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}}
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, detailRequest(uuid.NewString(), uuid.NewString()))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
