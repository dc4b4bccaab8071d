package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stitchwell-backend/pkg/db/models"
	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
	"github.com/angelmondragon/stitchwell-backend/pkg/types"
)

// LineInput is one purchased line as captured in the cart.
type LineInput struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// CreateOrderInput carries everything needed to record a paid purchase.
// AmountMinor is the amount the gateway confirmed; when set it must match
// the total recomputed from Lines.
type CreateOrderInput struct {
	UserID          uuid.UUID
	Lines           []LineInput
	ShippingAddress types.ShippingAddress
	PaymentIntentID string
	AmountMinor     int64
	Currency        string
}

// OrderDTO is the confirmation view of an order.
type OrderDTO struct {
	ID              uuid.UUID             `json:"id"`
	Status          enums.OrderStatus     `json:"status"`
	TotalPrice      decimal.Decimal       `json:"totalPrice"`
	Currency        string                `json:"currency"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	PaymentIntentID *string               `json:"paymentIntentId,omitempty"`
	Items           []OrderItemDTO        `json:"items"`
	CreatedAt       time.Time             `json:"createdAt"`
}

// OrderItemDTO is one order line.
type OrderItemDTO struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// NewOrderDTO maps the persisted aggregate.
func NewOrderDTO(order *models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return OrderDTO{
		ID:              order.ID,
		Status:          order.Status,
		TotalPrice:      order.TotalPrice,
		Currency:        order.Currency,
		ShippingAddress: order.ShippingAddress,
		PaymentIntentID: order.PaymentIntentID,
		Items:           items,
		CreatedAt:       order.CreatedAt,
	}
}
