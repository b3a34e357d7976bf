package billing

import (
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/glyphio/glyphio/internal/pkg/config"
)

// Authenticator verifies that an inbound notification originated from
// Stripe. Verification runs over the exact raw body bytes as received on the
// wire; the transport layer must not parse or re-serialize them first.
type Authenticator struct {
	secret string
}

func NewAuthenticator(cfg *config.Config) *Authenticator {
	return &Authenticator{secret: cfg.StripeWebhookSecret}
}

// Authenticate checks the signature header against the shared secret and
// returns the decoded event. An absent header fails fast with
// ErrMissingSignature; any verification failure (bad signature, tampered
// body, stale timestamp) comes back wrapped in ErrUnauthenticated.
func (a *Authenticator) Authenticate(rawBody []byte, signatureHeader string) (stripe.Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return stripe.Event{}, ErrMissingSignature
	}

	event, err := webhook.ConstructEvent(rawBody, signatureHeader, a.secret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return event, nil
}
