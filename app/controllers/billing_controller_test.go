package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/glyphio/glyphio/app/models"
	"github.com/glyphio/glyphio/internal/pkg/billing"
	"github.com/glyphio/glyphio/internal/pkg/config"
	"github.com/glyphio/glyphio/internal/pkg/database"
	"github.com/glyphio/glyphio/internal/pkg/ledger"
)

const testWebhookSecret = "whsec_test_secret"

func newControllerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func testBillingConfig() *config.Config {
	return &config.Config{
		SiteURL:             "https://glyphio.test",
		SuccessURL:          "https://glyphio.test/?success=1",
		CancelURL:           "https://glyphio.test/?canceled=1",
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: testWebhookSecret,
		Plans: map[string]config.Plan{
			"starter": {Key: "starter", PriceID: "price_starter", Credits: 50},
			"pro":     {Key: "pro", PriceID: "price_pro", Credits: 150},
			"studio":  {Key: "studio", PriceID: "price_studio", Credits: 400},
		},
	}
}

func newBillingTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db := newControllerTestDB(t)
	cfg := testBillingConfig()
	catalog := billing.NewCatalog(cfg)
	led := ledger.New(db)

	bc := NewBillingController(
		catalog,
		billing.NewCheckoutService(cfg, catalog),
		billing.NewAuthenticator(cfg),
		billing.NewDispatcher(catalog, led),
		billing.NewEventStore(db),
	)

	app := fiber.New()
	app.Post("/api/v1/checkout/sessions", bc.HandleCreateCheckoutSession)
	app.Post("/api/v1/webhooks/stripe", bc.HandleStripeWebhook)
	return app, db
}

func stripeSignature(payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func completedSessionPayload(eventID, sessionID, userID, plan string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"object":"event","api_version":%q,"type":"checkout.session.completed","data":{"object":{"id":%q,"object":"checkout.session","metadata":{"user_id":%q,"plan":%q}}}}`,
		eventID, stripe.APIVersion, sessionID, userID, plan,
	))
}

func postWebhook(t *testing.T, app *fiber.App, payload []byte, signature string) (*http.Response, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp, body
}

func userCredits(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	user, err := models.FindUserByID(db, userID)
	require.NoError(t, err)
	return user.Credits
}

func TestWebhookGrantsCreditsOnCompletedCheckout(t *testing.T) {
	app, db := newBillingTestApp(t)

	payload := completedSessionPayload("evt_1", "cs_1", "u1", "pro")
	resp, body := postWebhook(t, app, payload, stripeSignature(payload, time.Now()))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
	assert.NotContains(t, body, "ignored")
	assert.EqualValues(t, 150, userCredits(t, db, "u1"))

	var grants int64
	require.NoError(t, db.Model(&models.CreditGrant{}).Count(&grants).Error)
	assert.EqualValues(t, 1, grants)
}

func TestWebhookRedeliveryDoesNotDoubleCredit(t *testing.T) {
	app, db := newBillingTestApp(t)

	// Stripe may redeliver the same checkout under a fresh event ID.
	for _, eventID := range []string{"evt_1", "evt_2"} {
		payload := completedSessionPayload(eventID, "cs_1", "u1", "pro")
		resp, _ := postWebhook(t, app, payload, stripeSignature(payload, time.Now()))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	assert.EqualValues(t, 150, userCredits(t, db, "u1"))
}

func TestWebhookDuplicateEventShortCircuits(t *testing.T) {
	app, db := newBillingTestApp(t)
	payload := completedSessionPayload("evt_1", "cs_1", "u1", "pro")

	resp, _ := postWebhook(t, app, payload, stripeSignature(payload, time.Now()))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postWebhook(t, app, payload, stripeSignature(payload, time.Now()))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["duplicate"])
	assert.EqualValues(t, 150, userCredits(t, db, "u1"))
}

func TestWebhookMissingSignature(t *testing.T) {
	app, db := newBillingTestApp(t)

	payload := completedSessionPayload("evt_1", "cs_1", "u1", "pro")
	resp, body := postWebhook(t, app, payload, "")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing_signature", body["error"])

	// An unauthenticated request must leave no trace in the store.
	var events, users int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&events).Error)
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, events)
	assert.Zero(t, users)
}

func TestWebhookTamperedBody(t *testing.T) {
	app, db := newBillingTestApp(t)

	payload := completedSessionPayload("evt_1", "cs_1", "u1", "pro")
	signature := stripeSignature(payload, time.Now())
	tampered := bytes.Replace(payload, []byte(`"pro"`), []byte(`"studio"`), 1)

	resp, body := postWebhook(t, app, tampered, signature)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_signature", body["error"])

	var events int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&events).Error)
	assert.Zero(t, events)
}

func TestWebhookMissingMetadataIsAcknowledged(t *testing.T) {
	app, db := newBillingTestApp(t)

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","object":"event","api_version":%q,"type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","metadata":{}}}}`,
		stripe.APIVersion,
	))
	resp, body := postWebhook(t, app, payload, stripeSignature(payload, time.Now()))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, billing.ReasonMissingMetadata, body["ignored"])

	var grants int64
	require.NoError(t, db.Model(&models.CreditGrant{}).Count(&grants).Error)
	assert.Zero(t, grants)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	app, db := newBillingTestApp(t)

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","object":"event","api_version":%q,"type":"invoice.paid","data":{"object":{}}}`,
		stripe.APIVersion,
	))
	resp, body := postWebhook(t, app, payload, stripeSignature(payload, time.Now()))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
	assert.NotContains(t, body, "ignored")

	// The authentic event is still recorded for audit.
	var events int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func postCheckout(t *testing.T, app *fiber.App, body string) (*http.Response, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed))
	return resp, parsed
}

func TestCheckoutRejectsUnknownPlan(t *testing.T) {
	app, _ := newBillingTestApp(t)

	resp, body := postCheckout(t, app, `{"plan":"mega","userId":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_plan", body["error"])
	assert.Contains(t, body["message"], "starter")
}

func TestCheckoutRejectsIncompleteRequest(t *testing.T) {
	app, _ := newBillingTestApp(t)

	for name, payload := range map[string]string{
		"missing plan": `{"userId":"u1"}`,
		"missing user": `{"plan":"pro"}`,
		"bad email":    `{"plan":"pro","userId":"u1","email":"not-an-email"}`,
		"not json":     `plan=pro`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, body := postCheckout(t, app, payload)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "invalid_request", body["error"])
		})
	}
}
