package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// GuestCustomer is the customer id on lines added before sign-in.
const GuestCustomer = "guest"

// Product is what a caller hands the store when adding a line. Prices come
// from the catalog (or the customization pricer), never from the shopper.
type Product struct {
	ID        string
	VariantID string
	Name      string
	Slug      string
	Price     decimal.Decimal
	Images    []string
	Stock     int
}

// ProductSnapshot is the denormalized product copy captured at add-time.
type ProductSnapshot struct {
	Name   string          `json:"name"`
	Slug   string          `json:"slug"`
	Price  decimal.Decimal `json:"price"`
	Images []string        `json:"images"`
	Stock  int             `json:"stock"`
}

// Selection is one flattened customization choice.
type Selection struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Line is one purchasable entry in the cart.
type Line struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	ProductID  string          `json:"productId"`
	VariantID  string          `json:"variantId,omitempty"`
	Quantity   int             `json:"quantity"`
	Selections []Selection     `json:"customizationSelections"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	Product    ProductSnapshot `json:"product"`
}

// Customized reports whether the line carries customization selections.
func (l Line) Customized() bool {
	return len(l.Selections) > 0
}

// UnitPrice is the price captured on the snapshot.
func (l Line) UnitPrice() decimal.Decimal {
	return l.Product.Price
}

func (l Line) clone() Line {
	out := l
	if l.Selections != nil {
		out.Selections = append(make([]Selection, 0, len(l.Selections)), l.Selections...)
	}
	if l.Product.Images != nil {
		out.Product.Images = append(make([]string, 0, len(l.Product.Images)), l.Product.Images...)
	}
	return out
}

func snapshotOf(p Product) ProductSnapshot {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return ProductSnapshot{
		Name:   p.Name,
		Slug:   p.Slug,
		Price:  p.Price,
		Images: append(make([]string, 0, len(images)), images...),
		Stock:  p.Stock,
	}
}
