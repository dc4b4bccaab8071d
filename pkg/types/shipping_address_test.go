package types

import (
	"strings"
	"testing"
)

func validAddress() ShippingAddress {
	return ShippingAddress{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Address:   "12 Savile Row",
		City:      "London",
		Zip:       "W1S 3PQ",
		Country:   "GB",
	}
}

func TestShippingAddressValidate(t *testing.T) {
	if err := validAddress().Validate(); err != nil {
		t.Fatalf("expected valid address, got %v", err)
	}

	partial := validAddress()
	partial.City = "   "
	partial.Zip = ""
	err := partial.Validate()
	if err == nil {
		t.Fatal("expected partial address to be rejected")
	}
	if !strings.Contains(err.Error(), "city") || !strings.Contains(err.Error(), "zip") {
		t.Fatalf("expected missing fields in error, got %v", err)
	}
}

func TestShippingAddressValueScan(t *testing.T) {
	addr := validAddress()
	addr.FirstName = "  Ada "

	raw, err := addr.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	var decoded ShippingAddress
	if err := decoded.Scan([]byte(raw.(string))); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if decoded.FirstName != "Ada" {
		t.Fatalf("expected trimmed first name, got %q", decoded.FirstName)
	}
	if decoded != validAddress() {
		t.Fatalf("unexpected decoded address %+v", decoded)
	}

	if _, err := (ShippingAddress{}).Value(); err == nil {
		t.Fatal("expected empty address to be rejected on write")
	}
}
