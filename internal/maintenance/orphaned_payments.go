package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/stitchwell-backend/pkg/db/models"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
)

const (
	defaultOrphanGrace = 30 * time.Minute
	defaultOrphanBatch = 100
)

type paymentReconciler interface {
	LinkPaymentsToOrders(ctx context.Context) (int64, error)
	FindOrphanedPayments(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
}

type OrphanedPaymentsParams struct {
	Logger    *logger.Logger
	Payments  paymentReconciler
	Grace     time.Duration
	BatchSize int
}

// OrphanedPaymentsJob links late webhook payment rows to their orders and
// reports captured payments that still have no order after Grace. Those
// need a manual refund or order recovery.
type OrphanedPaymentsJob struct {
	logg     *logger.Logger
	payments paymentReconciler
	grace    time.Duration
	batch    int
	now      func() time.Time
}

func NewOrphanedPaymentsJob(params OrphanedPaymentsParams) (*OrphanedPaymentsJob, error) {
	if params.Payments == nil {
		return nil, errors.New("payments repository required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultOrphanGrace
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultOrphanBatch
	}
	return &OrphanedPaymentsJob{
		logg:     params.Logger,
		payments: params.Payments,
		grace:    grace,
		batch:    batch,
		now:      time.Now,
	}, nil
}

func (j *OrphanedPaymentsJob) Name() string { return "orphaned-payments" }

func (j *OrphanedPaymentsJob) Run(ctx context.Context) error {
	linked, err := j.payments.LinkPaymentsToOrders(ctx)
	if err != nil {
		return fmt.Errorf("link payments to orders: %w", err)
	}
	before := j.now().UTC().Add(-j.grace)
	orphans, err := j.payments.FindOrphanedPayments(ctx, before, j.batch)
	if err != nil {
		return fmt.Errorf("find orphaned payments: %w", err)
	}
	for _, p := range orphans {
		j.logg.Error(j.logg.WithFields(ctx, map[string]any{
			"payment_intent_id": p.PaymentIntentID,
			"amount_minor":      p.AmountMinor,
			"currency":          p.Currency,
			"user_id":           p.UserID.String(),
			"captured_at":       p.CreatedAt,
		}), "payment captured without order", nil)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"linked":   linked,
		"orphaned": len(orphans),
	}), "payment reconciliation complete")
	return nil
}
