package controllers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/glyphio/glyphio/app/models"
	"github.com/glyphio/glyphio/internal/pkg/billing"
)

const webhookTimeout = 15 * time.Second

// BillingController exposes checkout session creation and the Stripe
// webhook endpoint.
type BillingController struct {
	catalog    *billing.Catalog
	checkout   *billing.CheckoutService
	auth       *billing.Authenticator
	dispatcher *billing.Dispatcher
	events     billing.EventStore
}

func NewBillingController(
	catalog *billing.Catalog,
	checkout *billing.CheckoutService,
	auth *billing.Authenticator,
	dispatcher *billing.Dispatcher,
	events billing.EventStore,
) *BillingController {
	return &BillingController{
		catalog:    catalog,
		checkout:   checkout,
		auth:       auth,
		dispatcher: dispatcher,
		events:     events,
	}
}

type checkoutRequest struct {
	Plan   string `json:"plan" validate:"required"`
	UserID string `json:"userId" validate:"required"`
	Email  string `json:"email" validate:"omitempty,email"`
}

// HandleCreateCheckoutSession creates a Stripe checkout session for the
// requested plan and returns the hosted payment URL.
func (bc *BillingController) HandleCreateCheckoutSession(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Request body must be JSON"})
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "plan and userId are required"})
	}

	url, err := bc.checkout.CreateSession(c.UserContext(), req.Plan, req.UserID, req.Email)
	if err != nil {
		if errors.Is(err, billing.ErrPlanNotFound) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "invalid_plan",
				"message": fmt.Sprintf("Invalid plan. Use %s.", strings.Join(bc.catalog.Keys(), ", ")),
			})
		}

		var providerErr *billing.ProviderError
		if errors.As(err, &providerErr) {
			log.Printf("checkout session creation failed: %v", providerErr)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "payment_provider_error",
				"message": providerErr.Message,
				"type":    providerErr.Type,
				"code":    providerErr.Code,
			})
		}

		log.Printf("checkout session creation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Checkout failed"})
	}

	return c.JSON(fiber.Map{"url": url})
}

// HandleStripeWebhook authenticates an inbound Stripe notification against
// the raw request body and hands it to the dispatcher. Responses follow
// Stripe's delivery contract: 2xx acknowledges (including no-ops and
// duplicates), non-2xx requests redelivery.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	event, err := bc.auth.Authenticate(rawBody, signature)
	if err != nil {
		if errors.Is(err, billing.ErrMissingSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_signature"})
		}
		log.Printf("webhook signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	created, stored, err := bc.events.CreateIfNotExists(&models.WebhookEvent{
		EventID:        event.ID,
		EventType:      string(event.Type),
		PayloadJSON:    string(rawBody),
		SignatureValid: true,
	})
	if err != nil {
		log.Printf("webhook %s: persist failed: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	// Re-deliveries of an event that already processed cleanly are no-ops.
	// Failed or still-unprocessed events fall through so the retry can land;
	// the grant idempotency key prevents double-crediting.
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		return c.JSON(fiber.Map{"received": true, "duplicate": true})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	result, dispatchErr := bc.dispatcher.Dispatch(ctx, event)

	errMsg := ""
	if dispatchErr != nil {
		errMsg = dispatchErr.Error()
	}
	if err := bc.events.MarkProcessed(stored.ID, errMsg); err != nil {
		log.Printf("webhook %s: mark processed failed: %v", event.ID, err)
	}

	if dispatchErr != nil {
		log.Printf("webhook %s: dispatch failed, requesting redelivery: %v", event.ID, dispatchErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "credit_grant_failed"})
	}

	response := fiber.Map{"received": true}
	if !result.Applied && result.Reason != billing.ReasonIgnoredEventType {
		response["ignored"] = result.Reason
	}
	return c.JSON(response)
}
