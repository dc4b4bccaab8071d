package enums

import "fmt"

// CheckoutState is a step of the linear checkout sequence.
type CheckoutState string

const (
	CheckoutStateIdle                     CheckoutState = "idle"
	CheckoutStateAwaitingIntent           CheckoutState = "awaiting_intent"
	CheckoutStateAwaitingConfirmation     CheckoutState = "awaiting_confirmation"
	CheckoutStateAwaitingOrderPersistence CheckoutState = "awaiting_order_persistence"
	CheckoutStateComplete                 CheckoutState = "complete"
	CheckoutStateError                    CheckoutState = "error"
)

var validCheckoutStates = []CheckoutState{
	CheckoutStateIdle,
	CheckoutStateAwaitingIntent,
	CheckoutStateAwaitingConfirmation,
	CheckoutStateAwaitingOrderPersistence,
	CheckoutStateComplete,
	CheckoutStateError,
}

// String implements fmt.Stringer.
func (s CheckoutState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutState.
func (s CheckoutState) IsValid() bool {
	for _, candidate := range validCheckoutStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCheckoutState converts raw input into a CheckoutState.
func ParseCheckoutState(value string) (CheckoutState, error) {
	for _, candidate := range validCheckoutStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout state %q", value)
}

// CheckoutStep names the step that moved a session into the error state.
type CheckoutStep string

const (
	CheckoutStepPaymentIntent       CheckoutStep = "payment_intent"
	CheckoutStepPaymentConfirmation CheckoutStep = "payment_confirmation"
	CheckoutStepOrderPersistence    CheckoutStep = "order_persistence"
)

// String implements fmt.Stringer.
func (s CheckoutStep) String() string {
	return string(s)
}
