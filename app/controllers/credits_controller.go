package controllers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/glyphio/glyphio/app/models"
	"github.com/glyphio/glyphio/internal/pkg/ledger"
	"github.com/glyphio/glyphio/internal/pkg/usercontext"
)

// CreditsController serves the authenticated balance and spend endpoints.
type CreditsController struct {
	db     *gorm.DB
	ledger *ledger.Ledger
}

func NewCreditsController(db *gorm.DB, l *ledger.Ledger) *CreditsController {
	return &CreditsController{db: db, ledger: l}
}

// HandleGetMe returns the authenticated user and their current balance.
func (cc *CreditsController) HandleGetMe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	user, err := models.EnsureUser(cc.db.WithContext(c.UserContext()), userCtx.UserID, userCtx.Email)
	if err != nil {
		log.Printf("profile load failed for user %s: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load profile"})
	}

	return c.JSON(fiber.Map{
		"ok":      true,
		"user":    fiber.Map{"id": user.ID, "email": user.Email},
		"credits": user.Credits,
	})
}

// HandleSpendCredit atomically spends one credit and returns the new
// balance. The non-negativity floor is enforced by the database, so a spend
// at zero fails instead of clamping.
func (cc *CreditsController) HandleSpendCredit(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	balance, err := cc.ledger.SpendOne(c.UserContext(), userCtx.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "insufficient_credits"})
		}
		log.Printf("spend failed for user %s: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Spend failed"})
	}

	return c.JSON(fiber.Map{"ok": true, "credits": balance})
}
