package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/glyphio/glyphio/internal/pkg/config"
)

const testWebhookSecret = "whsec_test_secret"

// signStripePayload produces a Stripe v1 signature header over the exact
// payload bytes.
func signStripePayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func checkoutCompletedPayload(eventID, sessionID, userID, plan string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"object":"event","api_version":%q,"type":"checkout.session.completed","data":{"object":{"id":%q,"object":"checkout.session","metadata":{"user_id":%q,"plan":%q}}}}`,
		eventID, stripe.APIVersion, sessionID, userID, plan,
	))
}

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(&config.Config{StripeWebhookSecret: testWebhookSecret})
}

func TestAuthenticateValidSignature(t *testing.T) {
	auth := newTestAuthenticator()
	payload := checkoutCompletedPayload("evt_1", "cs_1", "u1", "pro")

	event, err := auth.Authenticate(payload, signStripePayload(payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ID != "evt_1" {
		t.Fatalf("event.ID = %q, want evt_1", event.ID)
	}
	if event.Type != "checkout.session.completed" {
		t.Fatalf("event.Type = %q, want checkout.session.completed", event.Type)
	}
}

func TestAuthenticateMissingSignature(t *testing.T) {
	auth := newTestAuthenticator()
	payload := checkoutCompletedPayload("evt_1", "cs_1", "u1", "pro")

	for _, header := range []string{"", "   "} {
		if _, err := auth.Authenticate(payload, header); !errors.Is(err, ErrMissingSignature) {
			t.Fatalf("Authenticate with header %q = %v, want ErrMissingSignature", header, err)
		}
	}
}

func TestAuthenticateTamperedBody(t *testing.T) {
	auth := newTestAuthenticator()
	payload := checkoutCompletedPayload("evt_1", "cs_1", "u1", "pro")
	header := signStripePayload(payload, testWebhookSecret, time.Now())

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)/2] ^= 0x01

	if _, err := auth.Authenticate(tampered, header); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Authenticate with tampered body = %v, want ErrUnauthenticated", err)
	}
}

func TestAuthenticateWrongSecret(t *testing.T) {
	auth := newTestAuthenticator()
	payload := checkoutCompletedPayload("evt_1", "cs_1", "u1", "pro")
	header := signStripePayload(payload, "whsec_other_secret", time.Now())

	if _, err := auth.Authenticate(payload, header); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Authenticate with wrong secret = %v, want ErrUnauthenticated", err)
	}
}

func TestAuthenticateStaleTimestamp(t *testing.T) {
	auth := newTestAuthenticator()
	payload := checkoutCompletedPayload("evt_1", "cs_1", "u1", "pro")
	header := signStripePayload(payload, testWebhookSecret, time.Now().Add(-time.Hour))

	if _, err := auth.Authenticate(payload, header); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Authenticate with stale timestamp = %v, want ErrUnauthenticated", err)
	}
}
