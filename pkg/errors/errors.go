// Package errors carries the typed error codes shared by services and the HTTP
// layer. Each code maps to a status and a public message in one table.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// checkout pipeline
	CodeInvalidAmount          Code = "INVALID_AMOUNT"
	CodeGateway                Code = "GATEWAY_ERROR"
	CodeEmptyCart              Code = "EMPTY_CART"
	CodeOrderHeaderPersistence Code = "ORDER_HEADER_PERSISTENCE"
	CodeOrderItemsPersistence  Code = "ORDER_ITEMS_PERSISTENCE"
	CodeCheckoutInFlight       Code = "CHECKOUT_IN_FLIGHT"
)

// Metadata describes how a code is surfaced to API clients.
type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// DetailsAllowed lets Details() reach the response body.
	DetailsAllowed bool
	// ExposeMessage replaces PublicMessage with the error's own message.
	ExposeMessage bool
}

const (
	retry   = true
	details = true
	expose  = true
)

var catalog = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, !retry, "validation failed", details, expose},
	CodeUnauthorized:  {http.StatusUnauthorized, !retry, "authentication required", details, expose},
	CodeForbidden:     {http.StatusForbidden, !retry, "access denied", !details, expose},
	CodeNotFound:      {http.StatusNotFound, !retry, "resource not found", !details, expose},
	CodeConflict:      {http.StatusConflict, !retry, "conflict detected", !details, expose},
	CodeStateConflict: {http.StatusUnprocessableEntity, !retry, "state transition disallowed", details, expose},
	CodeIdempotency:   {http.StatusConflict, !retry, "idempotency key reused", details, expose},
	CodeRateLimit:     {http.StatusTooManyRequests, !retry, "rate limit exceeded", !details, expose},
	CodeInternal:      {http.StatusInternalServerError, retry, "internal server error", !details, !expose},
	CodeDependency:    {http.StatusServiceUnavailable, retry, "dependency unavailable", details, !expose},

	CodeInvalidAmount: {http.StatusBadRequest, !retry, "payment amount must be positive", details, expose},
	// decline messages are written for the shopper
	CodeGateway:                {http.StatusPaymentRequired, retry, "payment could not be processed", details, expose},
	CodeEmptyCart:              {http.StatusUnprocessableEntity, !retry, "cart is empty", !details, !expose},
	CodeOrderHeaderPersistence: {http.StatusInternalServerError, retry, "failed to create order", details, !expose},
	CodeOrderItemsPersistence:  {http.StatusInternalServerError, retry, "failed to add order items", details, !expose},
	CodeCheckoutInFlight:       {http.StatusConflict, retry, "checkout submission already in progress", !details, !expose},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalog[code]; ok {
		return meta
	}
	return catalog[CodeInternal]
}

// Error is a coded error with an optional cause and client-facing details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets details in place and returns the receiver for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As finds the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the typed code of err, or CodeInternal when err is untyped.
func CodeOf(err error) Code {
	return As(err).Code()
}

// IsRetryable reports whether the caller may repeat the failed operation.
func IsRetryable(err error) bool {
	return MetadataFor(CodeOf(err)).Retryable
}
