package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ShippingAddress is stored as jsonb on the order header. Every field is
// required; checkout never accepts a partial address.
type ShippingAddress struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Address   string `json:"address" validate:"required,max=255"`
	City      string `json:"city" validate:"required,max=100"`
	Zip       string `json:"zip" validate:"required,max=20"`
	Country   string `json:"country" validate:"required,max=100"`
}

var (
	addressValidatorOnce sync.Once
	addressValidator     *validator.Validate
)

func shippingValidator() *validator.Validate {
	addressValidatorOnce.Do(func() {
		addressValidator = validator.New(validator.WithRequiredStructEnabled())
		addressValidator.RegisterTagNameFunc(func(f reflect.StructField) string {
			tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if tag == "" {
				return f.Name
			}
			return tag
		})
	})
	return addressValidator
}

// Normalize trims surrounding whitespace from every field.
func (a ShippingAddress) Normalize() ShippingAddress {
	return ShippingAddress{
		FirstName: strings.TrimSpace(a.FirstName),
		LastName:  strings.TrimSpace(a.LastName),
		Address:   strings.TrimSpace(a.Address),
		City:      strings.TrimSpace(a.City),
		Zip:       strings.TrimSpace(a.Zip),
		Country:   strings.TrimSpace(a.Country),
	}
}

// MissingFields lists the json names of fields that fail validation.
func (a ShippingAddress) MissingFields() []string {
	err := shippingValidator().Struct(a.Normalize())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{"address"}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fields
}

// Validate returns an error naming the first missing or invalid fields.
func (a ShippingAddress) Validate() error {
	if missing := a.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("shipping address incomplete: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Value marshals the address into json for the jsonb column.
func (a ShippingAddress) Value() (driver.Value, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(a.Normalize())
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan decodes the jsonb column.
func (a *ShippingAddress) Scan(value interface{}) error {
	if value == nil {
		*a = ShippingAddress{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("shipping address: unsupported scan type %T", value)
	}
	return json.Unmarshal(raw, a)
}
