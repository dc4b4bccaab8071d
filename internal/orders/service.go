package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/stitchwell-backend/pkg/db"
	"github.com/angelmondragon/stitchwell-backend/pkg/db/models"
	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	"github.com/angelmondragon/stitchwell-backend/pkg/money"
	"github.com/angelmondragon/stitchwell-backend/pkg/outbox"
	"github.com/angelmondragon/stitchwell-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service records paid purchases.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires the order service.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		logg:   logg,
	}, nil
}

// CreateOrder writes the header, its items, the payment link and the
// order_created event in one transaction. Either everything commits or
// nothing does; there are no internal retries.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	currency, total, err := validateInput(input)
	if err != nil {
		return nil, err
	}
	intentID := strings.TrimSpace(input.PaymentIntentID)

	if intentID != "" {
		existing, err := s.repo.FindOrderByPaymentIntent(ctx, intentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by payment intent")
		}
		if existing != nil {
			if existing.UserID != input.UserID {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already recorded for another order")
			}
			return existing, nil
		}
	}

	order := &models.Order{
		ID:              uuid.New(),
		UserID:          input.UserID,
		TotalPrice:      total,
		Currency:        currency,
		ShippingAddress: input.ShippingAddress.Normalize(),
		Status:          enums.OrderStatusPending,
	}
	if intentID != "" {
		order.PaymentIntentID = &intentID
	}
	amountMinor := money.ToMinor(total)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeOrderHeaderPersistence, err, "Failed to create order: "+err.Error())
		}

		items := make([]models.OrderItem, 0, len(input.Lines))
		for _, line := range input.Lines {
			items = append(items, models.OrderItem{
				ID:        uuid.New(),
				OrderID:   order.ID,
				ProductID: strings.TrimSpace(line.ProductID),
				Quantity:  line.Quantity,
				Price:     line.UnitPrice,
			})
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeOrderItemsPersistence, err, "failed to add order items, order rolled back: "+err.Error())
		}
		order.Items = items

		if intentID != "" {
			orderID := order.ID
			payment := &models.Payment{
				PaymentIntentID: intentID,
				OrderID:         &orderID,
				UserID:          input.UserID,
				AmountMinor:     amountMinor,
				Currency:        currency,
				Status:          enums.PaymentStatusSucceeded,
			}
			if err := repo.UpsertPayment(ctx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeOrderHeaderPersistence, err, "Failed to create order: "+err.Error())
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID},
			Data:          orderCreatedPayload(order, intentID, amountMinor),
		})
	})
	if err != nil {
		if existing := s.concurrentOrder(ctx, input, intentID, err); existing != nil {
			return existing, nil
		}
		return nil, s.handleFailure(ctx, input, intentID, amountMinor, currency, err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":          order.ID.String(),
		"user_id":           input.UserID.String(),
		"payment_intent_id": intentID,
		"items":             len(order.Items),
	}), "order created")
	return order, nil
}

// concurrentOrder returns the order a parallel retry committed for the same
// intent, if that is why the header insert failed.
func (s *service) concurrentOrder(ctx context.Context, input CreateOrderInput, intentID string, err error) *models.Order {
	if intentID == "" || pkgerrors.CodeOf(err) != pkgerrors.CodeOrderHeaderPersistence || !dbpkg.IsUniqueViolation(err, "") {
		return nil
	}
	existing, findErr := s.repo.FindOrderByPaymentIntent(ctx, intentID)
	if findErr != nil || existing == nil || existing.UserID != input.UserID {
		return nil
	}
	return existing
}

// handleFailure logs the reconciliation context for a paid order that could
// not be written and normalizes unclassified errors.
func (s *service) handleFailure(ctx context.Context, input CreateOrderInput, intentID string, amountMinor int64, currency string, err error) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":           input.UserID.String(),
		"amount_minor":      amountMinor,
		"currency":          currency,
		"payment_intent_id": intentID,
	})

	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeOrderHeaderPersistence:
		s.logg.Error(logCtx, "payment captured but order header was not persisted", err)
		return err
	case pkgerrors.CodeOrderItemsPersistence:
		s.logg.Error(logCtx, "order items failed; order rolled back", err)
		return err
	}

	s.logg.Error(logCtx, "order transaction failed", err)
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeOrderHeaderPersistence, err, "Failed to create order: "+err.Error())
}

// GetOrder returns the order only to its owner.
func (s *service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	order, err := s.repo.FindOrderByPaymentIntent(ctx, strings.TrimSpace(paymentIntentID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by payment intent")
	}
	return order, nil
}

func validateInput(input CreateOrderInput) (string, decimal.Decimal, error) {
	if input.UserID == uuid.Nil {
		return "", decimal.Zero, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	if len(input.Lines) == 0 {
		return "", decimal.Zero, pkgerrors.New(pkgerrors.CodeEmptyCart, "order has no items")
	}
	total := decimal.Zero
	for i, line := range input.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return "", decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: product id is required", i))
		}
		if line.Quantity < 1 {
			return "", decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: quantity must be at least 1", i))
		}
		if line.UnitPrice.IsNegative() {
			return "", decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: price must not be negative", i))
		}
		total = total.Add(money.LineTotal(line.UnitPrice, line.Quantity))
	}
	if missing := input.ShippingAddress.MissingFields(); len(missing) > 0 {
		return "", decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	currency, err := money.NormalizeCurrency(input.Currency)
	if err != nil {
		return "", decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	if input.AmountMinor > 0 && money.ToMinor(total) != input.AmountMinor {
		return "", decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "order total does not match the confirmed payment amount").
			WithDetails(map[string]any{
				"amount_minor": input.AmountMinor,
				"total_minor":  money.ToMinor(total),
			})
	}
	return currency, total, nil
}

func orderCreatedPayload(order *models.Order, intentID string, amountMinor int64) payloads.OrderCreatedEvent {
	items := make([]payloads.OrderCreatedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payloads.OrderCreatedItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.StringFixed(2),
		})
	}
	return payloads.OrderCreatedEvent{
		OrderID:         order.ID,
		UserID:          order.UserID,
		PaymentIntentID: intentID,
		TotalPrice:      order.TotalPrice.StringFixed(2),
		AmountMinor:     amountMinor,
		Currency:        order.Currency,
		Items:           items,
		CreatedAt:       order.CreatedAt,
	}
}
