package cart

import (
	"strings"

	"github.com/shopspring/decimal"

	cartsvc "github.com/angelmondragon/stitchwell-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/money"
)

type addItemRequest struct {
	ProductID  string              `json:"productId" validate:"required,max=128"`
	VariantID  string              `json:"variantId,omitempty" validate:"max=128"`
	Quantity   int                 `json:"quantity" validate:"min=0,max=999"`
	Selections []cartsvc.Selection `json:"customizationSelections,omitempty" validate:"max=32"`
}

func (r addItemRequest) quantity() int {
	if r.Quantity < 1 {
		return 1
	}
	return r.Quantity
}

type addCustomItemRequest struct {
	ProductID     string                `json:"productId" validate:"required,max=128"`
	Customization cartsvc.Customization `json:"customization"`
	ComputedPrice string                `json:"computedPrice" validate:"required"`
}

func (r addCustomItemRequest) price() (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(r.ComputedPrice))
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "computedPrice must be a decimal amount")
	}
	if !money.WholeCents(price) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "computedPrice must not have more than two decimal places")
	}
	return price, nil
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,max=999"`
}
