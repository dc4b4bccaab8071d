package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/stitchwell-backend/internal/orders"
	"github.com/angelmondragon/stitchwell-backend/pkg/db/models"
	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	"github.com/angelmondragon/stitchwell-backend/pkg/outbox"
	"github.com/angelmondragon/stitchwell-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	OrdersRepo        orders.Repository
	Outbox            outboxEmitter
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service reconciles payment_intent webhooks against local payment rows.
type Service struct {
	repo     orders.Repository
	outbox   outboxEmitter
	txRunner txRunner
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.OrdersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		repo:     params.OrdersRepo,
		outbox:   params.Outbox,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var (
		status    enums.PaymentStatus
		eventType enums.OutboxEventType
	)
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		status, eventType = enums.PaymentStatusSucceeded, enums.EventPaymentSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		status, eventType = enums.PaymentStatusFailed, enums.EventPaymentFailed
	case stripe.EventTypePaymentIntentCanceled:
		status = enums.PaymentStatusCanceled
	case stripe.EventTypePaymentIntentRequiresAction:
		status = enums.PaymentStatusRequiresAction
	default:
		return nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if strings.TrimSpace(pi.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return s.syncPaymentIntent(ctx, &pi, status, eventType)
}

func (s *Service) syncPaymentIntent(ctx context.Context, pi *stripe.PaymentIntent, status enums.PaymentStatus, eventType enums.OutboxEventType) error {
	reason := failureReason(pi)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"payment_intent_id": pi.ID,
		"payment_status":    status.String(),
	})

	var (
		orderID *uuid.UUID
		stale   bool
	)
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		payment := &models.Payment{
			PaymentIntentID: pi.ID,
			UserID:          userIDFromMetadata(pi.Metadata),
			AmountMinor:     pi.Amount,
			Currency:        strings.ToLower(string(pi.Currency)),
			Status:          status,
		}
		if reason != "" {
			payment.FailureReason = &reason
		}
		if err := repo.RecordPaymentStatus(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment status")
		}

		stored, err := repo.FindPaymentByIntent(ctx, pi.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if stored == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "payment not persisted")
		}
		if stored.Status != status {
			stale = true
			s.logg.Warn(s.logg.WithField(ctx, "stored_status", stored.Status.String()), "ignoring payment status after settlement")
			return nil
		}
		order, err := repo.FindOrderByPaymentIntent(ctx, pi.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by payment intent")
		}
		if order != nil {
			id := order.ID
			orderID = &id
		}

		if eventType == "" {
			return nil
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregatePayment,
			AggregateID:   stored.ID,
			Data: payloads.PaymentStatusEvent{
				PaymentIntentID: pi.ID,
				OrderID:         orderID,
				Status:          status.String(),
				FailureReason:   reason,
				AmountMinor:     stored.AmountMinor,
				Currency:        stored.Currency,
			},
		})
	})
	if err != nil || stale {
		return err
	}

	if status == enums.PaymentStatusSucceeded && orderID == nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"amount_minor": pi.Amount,
			"currency":     string(pi.Currency),
			"user_id":      pi.Metadata["user_id"],
			"checkout_id":  pi.Metadata["checkout_id"],
		}), "payment captured without order", nil)
		return nil
	}
	s.logg.Info(ctx, "payment status recorded")
	return nil
}

func userIDFromMetadata(metadata map[string]string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(metadata["user_id"]))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func failureReason(pi *stripe.PaymentIntent) string {
	if pi.LastPaymentError == nil {
		return ""
	}
	if pi.LastPaymentError.Msg != "" {
		return pi.LastPaymentError.Msg
	}
	return string(pi.LastPaymentError.Code)
}
