package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/glyphio/glyphio/app/models"
)

var (
	// ErrInsufficientCredits is returned when a spend would drive the
	// balance below zero. The decrement is guarded server-side, so two
	// racing spends can never both succeed on a balance of one.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// Ledger applies credit grants and spends as single atomic database
// operations. It keeps no state of its own; concurrent instances are safe
// because every update is a guarded SQL expression and duplicate grants are
// rejected by the idempotency-key uniqueness constraint.
type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// ApplyCredit grants amount credits to userID exactly once per
// idempotencyKey and returns the resulting balance. A duplicate key is a
// successful no-op: the stored grant stands and the current balance is
// returned unchanged.
func (l *Ledger) ApplyCredit(ctx context.Context, userID string, amount int64, idempotencyKey string) (int64, error) {
	if userID == "" || idempotencyKey == "" {
		return 0, errors.New("user id and idempotency key are required")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %d", amount)
	}

	var balance int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The webhook may be the user's first contact with this service.
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&models.User{ID: userID}).Error; err != nil {
			return err
		}

		grant := &models.CreditGrant{
			UserID:         userID,
			Amount:         amount,
			IdempotencyKey: idempotencyKey,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(grant)
		if res.Error != nil {
			return res.Error
		}

		// RowsAffected == 0 means the key was already applied; skip the
		// increment so redelivery converges to a single grant.
		if res.RowsAffected > 0 {
			if err := tx.Model(&models.User{}).
				Where("id = ?", userID).
				UpdateColumn("credits", gorm.Expr("credits + ?", amount)).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.User{}).
			Select("credits").
			Where("id = ?", userID).
			Scan(&balance).Error
	})
	if err != nil {
		return 0, fmt.Errorf("ledger unavailable: %w", err)
	}
	return balance, nil
}

// Balance returns the current credit balance, creating the profile row on
// first contact.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}
	user, err := models.EnsureUser(l.db.WithContext(ctx), userID, "")
	if err != nil {
		return 0, fmt.Errorf("ledger unavailable: %w", err)
	}
	return user.Credits, nil
}

// SpendOne decrements the balance by one credit and returns the new balance.
// The WHERE guard enforces the non-negativity floor in the database, not in
// this process.
func (l *Ledger) SpendOne(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}

	var balance int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND credits >= ?", userID, 1).
			UpdateColumn("credits", gorm.Expr("credits - ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientCredits
		}
		return tx.Model(&models.User{}).
			Select("credits").
			Where("id = ?", userID).
			Scan(&balance).Error
	})
	if errors.Is(err, ErrInsufficientCredits) {
		return 0, ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("ledger unavailable: %w", err)
	}
	return balance, nil
}
