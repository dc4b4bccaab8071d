package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stitchwell-backend/pkg/db/models"
	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
)

// Repository persists orders, their items and the payment rows that link
// them to gateway intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	UpsertPayment(ctx context.Context, payment *models.Payment) error
	RecordPaymentStatus(ctx context.Context, payment *models.Payment) error
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error)
	FindPaymentByIntent(ctx context.Context, paymentIntentID string) (*models.Payment, error)
	LinkPaymentsToOrders(ctx context.Context) (int64, error)
	FindOrphanedPayments(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a repository to the provided GORM DB handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts only the header; items go through CreateOrderItems.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// UpsertPayment records the intent, linking it to an order and refreshing
// the status when the webhook got there first.
func (r *repository) UpsertPayment(ctx context.Context, payment *models.Payment) error {
	if payment.UpdatedAt.IsZero() {
		payment.UpdatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_intent_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"order_id", "status", "failure_reason", "updated_at"}),
	}).Create(payment).Error
}

// settledPaymentStatuses are never overwritten by a later webhook delivery.
// failed stays open because the shopper may retry the same intent.
var settledPaymentStatuses = []string{
	enums.PaymentStatusSucceeded.String(),
	enums.PaymentStatusCanceled.String(),
}

// RecordPaymentStatus stores a gateway-reported status without touching the
// order link. Rows already succeeded or canceled keep their status; callers
// reload the row to see what was kept.
func (r *repository) RecordPaymentStatus(ctx context.Context, payment *models.Payment) error {
	if payment.UpdatedAt.IsZero() {
		payment.UpdatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_intent_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "failure_reason", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "payments.status NOT IN ?", Vars: []any{settledPaymentStatuses}},
		}},
	}).Create(payment).Error
}

func (r *repository) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrderByPaymentIntent returns nil, nil when no order references the intent.
func (r *repository) FindOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("payment_intent_id = ?", paymentIntentID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindPaymentByIntent returns nil, nil when the intent is unknown.
func (r *repository) FindPaymentByIntent(ctx context.Context, paymentIntentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// LinkPaymentsToOrders attaches unlinked payment rows to the order that
// references the same intent. This repairs rows written by the webhook
// before the order existed.
func (r *repository) LinkPaymentsToOrders(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
UPDATE payments
SET order_id = (SELECT o.id FROM orders o WHERE o.payment_intent_id = payments.payment_intent_id),
    updated_at = ?
WHERE order_id IS NULL
  AND EXISTS (SELECT 1 FROM orders o WHERE o.payment_intent_id = payments.payment_intent_id)`, time.Now().UTC())
	return res.RowsAffected, res.Error
}

// FindOrphanedPayments lists captured payments with no order, oldest first.
func (r *repository) FindOrphanedPayments(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	query := r.db.WithContext(ctx).
		Where("status = ? AND order_id IS NULL AND created_at < ?", enums.PaymentStatusSucceeded, before).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}
