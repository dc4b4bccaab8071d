package checkout

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stitchwell-backend/internal/orders"
	"github.com/angelmondragon/stitchwell-backend/internal/payments"
	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/types"
)

// Identity is the authenticated shopper starting a checkout.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

// Failure is the user-facing record of the step that moved a session into
// the error state.
type Failure struct {
	Step    enums.CheckoutStep `json:"step"`
	Code    pkgerrors.Code     `json:"code"`
	Message string             `json:"message"`
}

// Session holds one checkout attempt. Fields are guarded by mu; inFlight
// marks a submission that is waiting on the gateway or the database.
type Session struct {
	mu sync.Mutex

	id          string
	userID      uuid.UUID
	cartSession string
	state       enums.CheckoutState
	failure     *Failure
	address     types.ShippingAddress

	lines       []orders.LineInput
	itemsCount  int
	subtotal    decimal.Decimal
	amountMinor int64
	currency    string

	payment      *payments.Handle
	confirmation *payments.Confirmation
	orderID      *uuid.UUID
	redirectURL  string

	intentAttempts int
	inFlight       bool
	createdAt      time.Time
	updatedAt      time.Time
}

func newSession(userID uuid.UUID, cartSession string, address types.ShippingAddress, now time.Time) *Session {
	return &Session{
		id:          uuid.NewString(),
		userID:      userID,
		cartSession: cartSession,
		state:       enums.CheckoutStateIdle,
		address:     address.Normalize(),
		createdAt:   now,
		updatedAt:   now,
	}
}

// ID returns the checkout id handed to the client.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() enums.CheckoutState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// begin claims the session for one submission.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return pkgerrors.New(pkgerrors.CodeCheckoutInFlight, "checkout submission already in progress")
	}
	s.inFlight = true
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

func (s *Session) update(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
	s.updatedAt = time.Now().UTC()
}

// failedAt reports whether the session is in the error state because of step.
func (s *Session) failedAt(step enums.CheckoutStep) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == enums.CheckoutStateError && s.failure != nil && s.failure.Step == step
}

func (s *Session) touchedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// View is the read model returned to the client.
type View struct {
	ID              string                `json:"checkoutId"`
	State           enums.CheckoutState   `json:"state"`
	FailedStep      enums.CheckoutStep    `json:"failedStep,omitempty"`
	Error           *Failure              `json:"error,omitempty"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	ItemsCount      int                   `json:"itemsCount"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	AmountMinor     int64                 `json:"amount"`
	Currency        string                `json:"currency"`
	PaymentIntentID string                `json:"paymentIntentId,omitempty"`
	ClientSecret    string                `json:"clientSecret,omitempty"`
	NextActionURL   string                `json:"nextActionUrl,omitempty"`
	OrderID         *uuid.UUID            `json:"orderId,omitempty"`
	RedirectURL     string                `json:"redirectUrl,omitempty"`
	InFlight        bool                  `json:"inFlight"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// View snapshots the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:              s.id,
		State:           s.state,
		ShippingAddress: s.address,
		ItemsCount:      s.itemsCount,
		Subtotal:        s.subtotal,
		AmountMinor:     s.amountMinor,
		Currency:        s.currency,
		RedirectURL:     s.redirectURL,
		InFlight:        s.inFlight,
		UpdatedAt:       s.updatedAt,
	}
	if s.failure != nil {
		failure := *s.failure
		v.Error = &failure
		v.FailedStep = failure.Step
	}
	if s.payment != nil {
		v.PaymentIntentID = s.payment.IntentID
		if s.state != enums.CheckoutStateComplete {
			v.ClientSecret = s.payment.ClientSecret
		}
	}
	if s.confirmation != nil {
		v.NextActionURL = s.confirmation.NextActionURL
	}
	if s.orderID != nil {
		id := *s.orderID
		v.OrderID = &id
	}
	return v
}
