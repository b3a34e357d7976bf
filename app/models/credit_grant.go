package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditGrant records one applied credit grant. The unique idempotency key
// (the checkout session ID) is what makes redelivered webhooks converge to a
// single grant: the database rejects a second row for the same key.
type CreditGrant struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UUID           string    `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	UserID         string    `gorm:"type:char(36);not null;index" json:"user_id"`
	Amount         int64     `gorm:"not null" json:"amount"`
	IdempotencyKey string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"idempotency_key"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (g *CreditGrant) BeforeCreate(tx *gorm.DB) error {
	if g.UUID == "" {
		g.UUID = uuid.New().String()
	}
	return nil
}
