package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stitchwell-backend/internal/cart"
	"github.com/angelmondragon/stitchwell-backend/internal/orders"
	"github.com/angelmondragon/stitchwell-backend/internal/payments"
	"github.com/angelmondragon/stitchwell-backend/pkg/config"
	"github.com/angelmondragon/stitchwell-backend/pkg/db/models"
	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	"github.com/angelmondragon/stitchwell-backend/pkg/metrics"
	"github.com/angelmondragon/stitchwell-backend/pkg/money"
	"github.com/angelmondragon/stitchwell-backend/pkg/types"
)

type cartOpener interface {
	With(ctx context.Context, session string, fn func(*cart.Store) error) error
}

type intentCreator interface {
	CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, opts ...payments.IntentOption) (*payments.Handle, error)
}

type paymentConfirmer interface {
	Confirm(ctx context.Context, handle *payments.Handle, details payments.PaymentDetails) (*payments.Confirmation, error)
	Refresh(ctx context.Context, handle *payments.Handle) (*payments.Confirmation, error)
}

type orderCreator interface {
	CreateOrder(ctx context.Context, input orders.CreateOrderInput) (*models.Order, error)
}

// Orchestrator sequences cart, payment intent, confirmation and order
// persistence for one checkout session:
//
//	idle -> awaiting_intent -> awaiting_confirmation -> awaiting_order_persistence -> complete
//
// Any step may move the session to error. The cart is only cleared on the
// transition to complete.
type Orchestrator struct {
	registry  *Registry
	carts     cartOpener
	intents   intentCreator
	confirmer paymentConfirmer
	orders    orderCreator
	cfg       config.CheckoutConfig
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
}

func NewOrchestrator(
	registry *Registry,
	carts cartOpener,
	intents intentCreator,
	confirmer paymentConfirmer,
	orderSvc orderCreator,
	cfg config.CheckoutConfig,
	m *metrics.CheckoutMetrics,
	logg *logger.Logger,
) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("checkout registry required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart provider required")
	}
	if intents == nil {
		return nil, fmt.Errorf("payment initiator required")
	}
	if confirmer == nil {
		return nil, fmt.Errorf("payment confirmer required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("order service required")
	}
	currency, err := money.NormalizeCurrency(cfg.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	cfg.DefaultCurrency = currency
	if !strings.Contains(cfg.ConfirmationPath, "%s") {
		cfg.ConfirmationPath = "/orders/%s/confirmation"
	}
	return &Orchestrator{
		registry:  registry,
		carts:     carts,
		intents:   intents,
		confirmer: confirmer,
		orders:    orderSvc,
		cfg:       cfg,
		metrics:   m,
		logg:      logg,
	}, nil
}

// Start opens a checkout for the shopper's cart and requests a payment
// intent. Without an identity no intent is requested and the caller gets
// UNAUTHORIZED with the login url; an empty cart yields EMPTY_CART.
func (o *Orchestrator) Start(ctx context.Context, identity *Identity, cartSession string, address types.ShippingAddress) (View, error) {
	if err := o.authorize(identity); err != nil {
		return View{}, err
	}
	snap, err := o.snapshotCart(ctx, cartSession)
	if err != nil {
		return View{}, err
	}

	s := newSession(identity.UserID, strings.TrimSpace(cartSession), address, o.registry.now())
	s.update(func(s *Session) { snap.apply(s, o.cfg.DefaultCurrency) })
	_ = s.begin()
	defer s.end()
	o.registry.put(s)

	ctx = o.logg.WithCheckoutID(ctx, s.id)
	o.logg.Info(o.logg.WithFields(ctx, map[string]any{
		"user_id":      identity.UserID.String(),
		"amount_minor": snap.amountMinor,
		"items":        snap.itemsCount,
	}), "checkout started")

	o.requestIntent(ctx, s)
	return s.View(), nil
}

// Get returns the session view.
func (o *Orchestrator) Get(ctx context.Context, identity *Identity, id string) (View, error) {
	s, err := o.session(identity, id)
	if err != nil {
		return View{}, err
	}
	return s.View(), nil
}

// UpdateShipping replaces the shipping address held by the session. The
// address can change until order persistence starts.
func (o *Orchestrator) UpdateShipping(ctx context.Context, identity *Identity, id string, address types.ShippingAddress) (View, error) {
	s, err := o.session(identity, id)
	if err != nil {
		return View{}, err
	}
	if err := s.begin(); err != nil {
		return View{}, err
	}
	defer s.end()

	switch state := s.State(); state {
	case enums.CheckoutStateAwaitingOrderPersistence, enums.CheckoutStateComplete:
		return s.View(), stateConflict("shipping address can no longer change", state)
	}
	address = address.Normalize()
	if err := validateAddress(address); err != nil {
		return s.View(), err
	}
	s.update(func(s *Session) { s.address = address })
	return s.View(), nil
}

// SubmitPayment confirms the payment with the shopper's in-page details.
// It is accepted while awaiting confirmation, or after a failed
// confirmation. A concurrent submission for the same session is rejected.
func (o *Orchestrator) SubmitPayment(ctx context.Context, identity *Identity, id string, details payments.PaymentDetails) (View, error) {
	s, err := o.session(identity, id)
	if err != nil {
		return View{}, err
	}
	if err := s.begin(); err != nil {
		return View{}, err
	}
	defer s.end()
	ctx = o.logg.WithCheckoutID(ctx, s.id)

	state := s.State()
	retrying := s.failedAt(enums.CheckoutStepPaymentConfirmation)
	if state != enums.CheckoutStateAwaitingConfirmation && !retrying {
		return s.View(), stateConflict("payment cannot be submitted now", state)
	}

	var handle *payments.Handle
	var address types.ShippingAddress
	s.update(func(s *Session) {
		handle = s.payment
		address = s.address
	})
	if err := validateAddress(address); err != nil {
		return s.View(), err
	}
	if err := o.verifyCart(ctx, s); err != nil {
		return s.View(), err
	}

	if retrying {
		o.transition(ctx, s, enums.CheckoutStateAwaitingConfirmation)
		if o.settledElsewhere(ctx, s, handle) {
			return s.View(), nil
		}
	}
	confirmation, err := o.confirmer.Confirm(ctx, handle, details)
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeValidation {
			return s.View(), err
		}
		o.fail(ctx, s, enums.CheckoutStepPaymentConfirmation, err)
		return s.View(), nil
	}
	s.update(func(s *Session) { s.confirmation = confirmation })

	if !confirmation.Succeeded {
		o.logg.Info(o.logg.WithField(ctx, "payment_status", confirmation.Status), "checkout waiting on shopper action")
		return s.View(), nil
	}
	o.persistOrder(ctx, s)
	return s.View(), nil
}

// ResumeConfirmation re-reads the payment after an out-of-band challenge,
// or after a failed confirmation, and continues to order persistence once
// the gateway reports success.
func (o *Orchestrator) ResumeConfirmation(ctx context.Context, identity *Identity, id string) (View, error) {
	s, err := o.session(identity, id)
	if err != nil {
		return View{}, err
	}
	if err := s.begin(); err != nil {
		return View{}, err
	}
	defer s.end()
	ctx = o.logg.WithCheckoutID(ctx, s.id)

	var handle *payments.Handle
	var pending bool
	state := s.State()
	s.update(func(s *Session) {
		handle = s.payment
		pending = s.confirmation != nil && !s.confirmation.Succeeded
	})
	retrying := s.failedAt(enums.CheckoutStepPaymentConfirmation)
	if !retrying && (state != enums.CheckoutStateAwaitingConfirmation || !pending) {
		return s.View(), stateConflict("no payment challenge is pending", state)
	}
	if retrying {
		o.transition(ctx, s, enums.CheckoutStateAwaitingConfirmation)
	}

	confirmation, err := o.confirmer.Refresh(ctx, handle)
	if err != nil {
		o.fail(ctx, s, enums.CheckoutStepPaymentConfirmation, err)
		return s.View(), nil
	}
	s.update(func(s *Session) { s.confirmation = confirmation })
	if !confirmation.Succeeded {
		return s.View(), nil
	}
	o.persistOrder(ctx, s)
	return s.View(), nil
}

// settledElsewhere re-reads an intent whose last confirmation failed, since
// that attempt may have gone through on the gateway anyway. A succeeded
// intent goes straight to order persistence and a pending challenge is
// recorded. It reports false when the new details still need confirming.
func (o *Orchestrator) settledElsewhere(ctx context.Context, s *Session, handle *payments.Handle) bool {
	confirmation, err := o.confirmer.Refresh(ctx, handle)
	if err != nil {
		return false
	}
	s.update(func(s *Session) { s.confirmation = confirmation })
	if !confirmation.Succeeded {
		o.logg.Info(o.logg.WithField(ctx, "payment_status", confirmation.Status), "checkout waiting on shopper action")
		return true
	}
	o.logg.Warn(ctx, "payment had already settled on the gateway; skipping confirmation")
	o.persistOrder(ctx, s)
	return true
}

// RetryIntent requests a new payment intent after intent creation failed.
// The cart is read again so the amount reflects its current contents.
func (o *Orchestrator) RetryIntent(ctx context.Context, identity *Identity, id string) (View, error) {
	s, err := o.session(identity, id)
	if err != nil {
		return View{}, err
	}
	if err := s.begin(); err != nil {
		return View{}, err
	}
	defer s.end()
	ctx = o.logg.WithCheckoutID(ctx, s.id)

	if !s.failedAt(enums.CheckoutStepPaymentIntent) {
		return s.View(), stateConflict("payment intent is not retryable", s.State())
	}
	snap, err := o.snapshotCart(ctx, s.cartSession)
	if err != nil {
		return s.View(), err
	}
	s.update(func(s *Session) { snap.apply(s, o.cfg.DefaultCurrency) })

	o.requestIntent(ctx, s)
	return s.View(), nil
}

// RetryOrder re-attempts order persistence for an already confirmed
// payment. The gateway is not contacted again.
func (o *Orchestrator) RetryOrder(ctx context.Context, identity *Identity, id string) (View, error) {
	s, err := o.session(identity, id)
	if err != nil {
		return View{}, err
	}
	if err := s.begin(); err != nil {
		return View{}, err
	}
	defer s.end()
	ctx = o.logg.WithCheckoutID(ctx, s.id)

	var confirmed bool
	s.update(func(s *Session) { confirmed = s.confirmation != nil && s.confirmation.Succeeded })
	if !s.failedAt(enums.CheckoutStepOrderPersistence) || !confirmed {
		return s.View(), stateConflict("order creation is not retryable", s.State())
	}
	o.persistOrder(ctx, s)
	return s.View(), nil
}

// Abandon drops the session. Only the gateway intent outlives it and it
// expires on the gateway side.
func (o *Orchestrator) Abandon(ctx context.Context, identity *Identity, id string) error {
	s, err := o.session(identity, id)
	if err != nil {
		return err
	}
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()
	o.registry.Remove(s.id)
	o.logg.Info(o.logg.WithCheckoutID(ctx, s.id), "checkout abandoned")
	return nil
}

func (o *Orchestrator) requestIntent(ctx context.Context, s *Session) {
	o.transition(ctx, s, enums.CheckoutStateAwaitingIntent)

	var amount int64
	var currency string
	var attempt int
	s.update(func(s *Session) {
		s.intentAttempts++
		s.payment = nil
		s.confirmation = nil
		attempt = s.intentAttempts
		amount = s.amountMinor
		currency = s.currency
	})

	handle, err := o.intents.CreatePaymentIntent(ctx, amount, currency,
		payments.WithIdempotencyKey(fmt.Sprintf("checkout:%s:intent:%d", s.id, attempt)),
		payments.WithMetadata("checkout_id", s.id),
		payments.WithMetadata("user_id", s.userID.String()),
	)
	if err != nil {
		o.fail(ctx, s, enums.CheckoutStepPaymentIntent, err)
		return
	}
	s.update(func(s *Session) { s.payment = handle })
	o.transition(ctx, s, enums.CheckoutStateAwaitingConfirmation)
}

// persistOrder runs only after the gateway reported success. The cart is
// cleared once an order id has come back.
func (o *Orchestrator) persistOrder(ctx context.Context, s *Session) {
	o.transition(ctx, s, enums.CheckoutStateAwaitingOrderPersistence)

	var input orders.CreateOrderInput
	s.update(func(s *Session) {
		input = orders.CreateOrderInput{
			UserID:          s.userID,
			Lines:           append([]orders.LineInput(nil), s.lines...),
			ShippingAddress: s.address,
			PaymentIntentID: s.payment.IntentID,
			AmountMinor:     s.confirmation.AmountMinor,
			Currency:        s.currency,
		}
	})

	order, err := o.orders.CreateOrder(ctx, input)
	if err != nil {
		o.fail(ctx, s, enums.CheckoutStepOrderPersistence, err)
		return
	}
	orderID := order.ID
	ctx = o.logg.WithField(ctx, "order_id", orderID.String())

	if err := o.carts.With(ctx, s.cartSession, func(store *cart.Store) error {
		return store.Clear(ctx)
	}); err != nil {
		o.logg.Error(ctx, "order committed but cart could not be cleared", err)
	} else {
		o.metrics.IncCartCleared()
	}

	s.update(func(s *Session) {
		s.orderID = &orderID
		s.redirectURL = fmt.Sprintf(o.cfg.ConfirmationPath, orderID.String())
	})
	o.transition(ctx, s, enums.CheckoutStateComplete)
	o.logg.Info(ctx, "checkout complete")
}

func (o *Orchestrator) transition(ctx context.Context, s *Session, state enums.CheckoutState) {
	s.update(func(s *Session) {
		s.state = state
		s.failure = nil
	})
	o.metrics.IncTransition(state.String())
	o.logg.Debug(o.logg.WithField(ctx, "state", state.String()), "checkout transition")
}

func (o *Orchestrator) fail(ctx context.Context, s *Session, step enums.CheckoutStep, err error) {
	failure := &Failure{
		Step:    step,
		Code:    pkgerrors.CodeOf(err),
		Message: failureMessage(err),
	}
	s.update(func(s *Session) {
		s.state = enums.CheckoutStateError
		s.failure = failure
	})
	o.metrics.IncTransition(enums.CheckoutStateError.String())
	o.metrics.IncFailure(step.String())
	o.logg.Warn(o.logg.WithFields(ctx, map[string]any{
		"step":       step.String(),
		"error_code": string(failure.Code),
		"error":      err.Error(),
	}), "checkout step failed")
}

func (o *Orchestrator) authorize(identity *Identity) error {
	if identity != nil && identity.UserID != uuid.Nil {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to continue to checkout").
		WithDetails(map[string]any{"login_url": o.cfg.LoginURL})
}

func (o *Orchestrator) session(identity *Identity, id string) (*Session, error) {
	if err := o.authorize(identity); err != nil {
		return nil, err
	}
	return o.registry.Get(strings.TrimSpace(id), identity.UserID)
}

// verifyCart rejects a payment when the cart changed after the amount was
// fixed.
func (o *Orchestrator) verifyCart(ctx context.Context, s *Session) error {
	snap, err := o.readCart(ctx, s.cartSession)
	if err != nil {
		return err
	}
	var amount int64
	var count int
	s.update(func(s *Session) {
		amount = s.amountMinor
		count = s.itemsCount
	})
	if snap.amountMinor != amount || snap.itemsCount != count {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cart changed since checkout started").
			WithDetails(map[string]any{
				"amount":      amount,
				"cart_amount": snap.amountMinor,
			})
	}
	return nil
}

func (o *Orchestrator) snapshotCart(ctx context.Context, cartSession string) (cartSnapshot, error) {
	snap, err := o.readCart(ctx, cartSession)
	if err != nil {
		return cartSnapshot{}, err
	}
	if len(snap.lines) == 0 || !snap.summary.Subtotal.IsPositive() || snap.amountMinor <= 0 {
		return cartSnapshot{}, pkgerrors.New(pkgerrors.CodeEmptyCart, "your cart is empty")
	}
	return snap, nil
}

func (o *Orchestrator) readCart(ctx context.Context, cartSession string) (cartSnapshot, error) {
	var snap cartSnapshot
	err := o.carts.With(ctx, cartSession, func(store *cart.Store) error {
		lines := store.Lines()
		summary := store.Summary()
		snap = cartSnapshot{
			lines:       orderLines(lines),
			summary:     summary,
			itemsCount:  summary.ItemsCount,
			amountMinor: money.ToMinor(summary.TotalAmount),
		}
		return nil
	})
	return snap, err
}

type cartSnapshot struct {
	lines       []orders.LineInput
	summary     cart.Summary
	itemsCount  int
	amountMinor int64
}

func (c cartSnapshot) apply(s *Session, currency string) {
	s.lines = c.lines
	s.itemsCount = c.itemsCount
	s.subtotal = c.summary.Subtotal
	s.amountMinor = c.amountMinor
	s.currency = currency
}

func orderLines(lines []cart.Line) []orders.LineInput {
	out := make([]orders.LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, orders.LineInput{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice(),
		})
	}
	return out
}

func validateAddress(address types.ShippingAddress) error {
	if missing := address.MissingFields(); len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

func stateConflict(msg string, state enums.CheckoutState) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).
		WithDetails(map[string]any{"state": state.String()})
}

// failureMessage is what the shopper sees inline. Persistence failures get
// their own wording since the payment has already been taken.
func failureMessage(err error) string {
	switch code := pkgerrors.CodeOf(err); code {
	case pkgerrors.CodeOrderHeaderPersistence, pkgerrors.CodeOrderItemsPersistence:
		return "Your payment went through but we could not save your order. Retry to finish; you will not be charged again."
	case pkgerrors.CodeInternal:
		return pkgerrors.MetadataFor(code).PublicMessage
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		return typed.Message()
	}
	return pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).PublicMessage
}
