package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderCreatedEvent hands a committed order to fulfillment.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID          `json:"order_id"`
	UserID          uuid.UUID          `json:"user_id"`
	PaymentIntentID string             `json:"payment_intent_id"`
	TotalPrice      string             `json:"total_price"`
	AmountMinor     int64              `json:"amount_minor"`
	Currency        string             `json:"currency"`
	Items           []OrderCreatedItem `json:"items"`
	CreatedAt       time.Time          `json:"created_at"`
}

// OrderCreatedItem is one purchased line at its purchase-time unit price.
type OrderCreatedItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

// PaymentStatusEvent reports a gateway-side intent transition seen by the
// webhook.
type PaymentStatusEvent struct {
	PaymentIntentID string     `json:"payment_intent_id"`
	OrderID         *uuid.UUID `json:"order_id,omitempty"`
	Status          string     `json:"status"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	AmountMinor     int64      `json:"amount_minor"`
	Currency        string     `json:"currency"`
}
