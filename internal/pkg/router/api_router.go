package router

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/glyphio/glyphio/app/controllers"
	"github.com/glyphio/glyphio/internal/pkg/billing"
	"github.com/glyphio/glyphio/internal/pkg/config"
	"github.com/glyphio/glyphio/internal/pkg/database"
	"github.com/glyphio/glyphio/internal/pkg/identity"
	"github.com/glyphio/glyphio/internal/pkg/ledger"
	"github.com/glyphio/glyphio/internal/pkg/middleware"
)

type ApiRouter struct {
	cfg *config.Config
}

func NewApiRouter(cfg *config.Config) *ApiRouter {
	return &ApiRouter{cfg: cfg}
}

func (h *ApiRouter) InstallRouter(app *fiber.App) {
	db := database.GetDB()

	catalog := billing.NewCatalog(h.cfg)
	creditLedger := ledger.New(db)

	billingCtrl := controllers.NewBillingController(
		catalog,
		billing.NewCheckoutService(h.cfg, catalog),
		billing.NewAuthenticator(h.cfg),
		billing.NewDispatcher(catalog, creditLedger),
		billing.NewEventStore(db),
	)
	creditsCtrl := controllers.NewCreditsController(db, creditLedger)
	configCtrl := controllers.NewConfigController(h.cfg)

	api := app.Group("/api", limiter.New(limiter.Config{
		// Stripe redeliveries must never be throttled.
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/v1/webhooks")
		},
		Storage: h.limiterStorage(),
	}))

	v1 := api.Group("/v1")
	v1.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
	})
	v1.Get("/config", configCtrl.HandlePublicConfig)

	v1.Post("/checkout/sessions", billingCtrl.HandleCreateCheckoutSession)
	v1.Post("/webhooks/stripe", billingCtrl.HandleStripeWebhook)

	requireAuth := middleware.RequireBearerAuth(identity.NewHTTPProvider(h.cfg))
	v1.Get("/me", requireAuth, creditsCtrl.HandleGetMe)
	v1.Post("/credits/spend", requireAuth, creditsCtrl.HandleSpendCredit)
}

// limiterStorage backs the rate limiter with Redis when configured so limits
// hold across instances; otherwise the limiter keeps its in-memory default.
func (h *ApiRouter) limiterStorage() fiber.Storage {
	if h.cfg.CacheHost == "" {
		return nil
	}
	port, err := strconv.Atoi(h.cfg.CachePort)
	if err != nil {
		port = 6379
	}
	return redis.New(redis.Config{
		Host: h.cfg.CacheHost,
		Port: port,
	})
}
