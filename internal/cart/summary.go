package cart

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stitchwell-backend/pkg/money"
)

// Adjustments are supplied by collaborators outside the cart. Tax, shipping
// and discount are zero unless a caller provides them.
type Adjustments struct {
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
}

// Summary is derived from the current lines on every read.
type Summary struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	ShippingAmount decimal.Decimal `json:"shippingAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	ItemsCount     int             `json:"itemsCount"`
}

// Summarize computes subtotal as the sum of unit price times quantity and
// total as subtotal + tax + shipping - discount.
func Summarize(lines []Line, adj Adjustments) Summary {
	subtotal := decimal.Zero
	count := 0
	for _, line := range lines {
		subtotal = subtotal.Add(money.LineTotal(line.UnitPrice(), line.Quantity))
		count += line.Quantity
	}
	return Summary{
		Subtotal:       subtotal,
		TaxAmount:      adj.Tax,
		ShippingAmount: adj.Shipping,
		DiscountAmount: adj.Discount,
		TotalAmount:    subtotal.Add(adj.Tax).Add(adj.Shipping).Sub(adj.Discount),
		ItemsCount:     count,
	}
}
