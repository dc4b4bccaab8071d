package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
)

// ProductLookup hydrates snapshots for entries persisted in the legacy shape.
type ProductLookup interface {
	LookupProduct(ctx context.Context, productID string) (Product, error)
}

type decoder struct {
	lookup ProductLookup
	logg   *logger.Logger
	now    time.Time
}

// decode parses the stored payload. Entries without a string id (the legacy
// shape used bare numeric product ids) or without a snapshot are migrated in
// place; migrated reports whether anything changed.
func (d decoder) decode(ctx context.Context, raw []byte) ([]Line, bool, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, fmt.Errorf("decode cart: %w", err)
	}

	lines := make([]Line, 0, len(entries))
	migrated := false
	for _, rawEntry := range entries {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(rawEntry, &entry); err != nil || entry == nil {
			d.logg.Warn(ctx, "dropping unreadable cart entry")
			migrated = true
			continue
		}
		if isCurrentShape(entry) {
			var line Line
			if err := json.Unmarshal(rawEntry, &line); err != nil {
				return nil, false, fmt.Errorf("decode cart line: %w", err)
			}
			if line.Quantity < 1 {
				migrated = true
				continue
			}
			if !line.Customized() {
				if idx := findPlain(lines, line.ProductID, line.VariantID); idx >= 0 {
					lines[idx].Quantity += line.Quantity
					migrated = true
					continue
				}
			}
			lines = append(lines, line)
			continue
		}

		migrated = true
		line, ok := d.migrateEntry(ctx, entry)
		if !ok {
			continue
		}
		if idx := findPlain(lines, line.ProductID, line.VariantID); idx >= 0 {
			lines[idx].Quantity += line.Quantity
			continue
		}
		lines = append(lines, line)
	}
	return lines, migrated, nil
}

func isCurrentShape(entry map[string]json.RawMessage) bool {
	var id string
	if err := json.Unmarshal(entry["id"], &id); err != nil || strings.TrimSpace(id) == "" {
		return false
	}
	product, ok := entry["product"]
	if !ok || string(product) == "null" {
		return false
	}
	var snap ProductSnapshot
	return json.Unmarshal(product, &snap) == nil
}

func (d decoder) migrateEntry(ctx context.Context, entry map[string]json.RawMessage) (Line, bool) {
	productID := scalarString(entry["productId"])
	if productID == "" {
		productID = scalarString(entry["id"])
	}
	if productID == "" {
		d.logg.Warn(ctx, "dropping legacy cart entry without a product id")
		return Line{}, false
	}

	quantity := 1
	if rawQty, ok := entry["quantity"]; ok {
		var q float64
		if err := json.Unmarshal(rawQty, &q); err != nil {
			d.logg.Warn(d.logg.WithField(ctx, "product_id", productID), "dropping legacy cart entry with unreadable quantity")
			return Line{}, false
		}
		quantity = int(q)
	}
	if quantity < 1 {
		return Line{}, false
	}

	customer := scalarString(entry["customerId"])
	if customer == "" {
		customer = GuestCustomer
	}
	variantID := scalarString(entry["variantId"])

	return Line{
		ID:         lineID(productID, variantID),
		CustomerID: customer,
		ProductID:  productID,
		VariantID:  variantID,
		Quantity:   quantity,
		Selections: []Selection{},
		CreatedAt:  d.now,
		UpdatedAt:  d.now,
		Product:    d.hydrate(ctx, productID, entry),
	}, true
}

func (d decoder) hydrate(ctx context.Context, productID string, entry map[string]json.RawMessage) ProductSnapshot {
	if d.lookup != nil {
		product, err := d.lookup.LookupProduct(ctx, productID)
		if err == nil {
			return snapshotOf(product)
		}
		d.logg.Warn(d.logg.WithFields(ctx, map[string]any{"product_id": productID, "error": err.Error()}), "legacy cart hydration failed; using placeholder snapshot")
	}

	price := decimal.Zero
	if rawPrice, ok := entry["price"]; ok {
		var p decimal.Decimal
		if err := json.Unmarshal(rawPrice, &p); err == nil && !p.IsNegative() {
			price = p.Round(2)
		}
	}
	name := scalarString(entry["name"])
	if name == "" {
		name = "Product " + productID
	}
	return ProductSnapshot{
		Name:   name,
		Slug:   productID,
		Price:  price,
		Images: []string{},
	}
}

// scalarString renders a JSON string or number as a trimmed string.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}
