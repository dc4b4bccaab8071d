package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
)

// Payment links a gateway intent to the order it paid for. OrderID stays nil
// until the order transaction commits.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentIntentID string              `gorm:"column:payment_intent_id;not null;uniqueIndex"`
	OrderID         *uuid.UUID          `gorm:"column:order_id;type:uuid"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	AmountMinor     int64               `gorm:"column:amount_minor;not null"`
	Currency        string              `gorm:"column:currency;not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	FailureReason   *string             `gorm:"column:failure_reason"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
