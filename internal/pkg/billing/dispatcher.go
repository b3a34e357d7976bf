package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/stripe/stripe-go/v82"
)

// LedgerApplicator applies a credit grant at most once per idempotency key.
type LedgerApplicator interface {
	ApplyCredit(ctx context.Context, userID string, amount int64, idempotencyKey string) (int64, error)
}

// DispatchResult reports what an authenticated event amounted to. Applied is
// false for acknowledged no-ops; Reason says why no credit was granted.
type DispatchResult struct {
	Applied bool
	Reason  string
	Balance int64
}

const (
	ReasonIgnoredEventType = "ignored_event_type"
	ReasonMalformedPayload = "malformed_payload"
	ReasonMissingMetadata  = "missing_metadata"
	ReasonUnknownPlan      = "unknown_plan"
)

// Dispatcher interprets authenticated Stripe events. Only
// checkout.session.completed triggers credit logic; everything else is
// acknowledged so Stripe stops redelivering it.
type Dispatcher struct {
	catalog *Catalog
	ledger  LedgerApplicator
}

func NewDispatcher(catalog *Catalog, ledger LedgerApplicator) *Dispatcher {
	return &Dispatcher{catalog: catalog, ledger: ledger}
}

// Dispatch applies the credit grant for a completed checkout. A non-nil
// error means the failure is transient (ledger/store fault) and the caller
// should answer non-2xx so Stripe redelivers; idempotency makes that safe.
// Malformed-but-authentic events return a nil error with a Reason instead,
// because redelivery would not add the missing data.
func (d *Dispatcher) Dispatch(ctx context.Context, event stripe.Event) (DispatchResult, error) {
	if event.Type != "checkout.session.completed" {
		return DispatchResult{Reason: ReasonIgnoredEventType}, nil
	}

	// A signed event without a data object can never be completed by
	// redelivery, so it is acknowledged like the other malformed shapes.
	if event.Data == nil {
		log.Printf("webhook %s: completed checkout without data object", event.ID)
		return DispatchResult{Reason: ReasonMalformedPayload}, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		log.Printf("webhook %s: undecodable checkout session payload: %v", event.ID, err)
		return DispatchResult{Reason: ReasonMalformedPayload}, nil
	}
	if session.ID == "" {
		log.Printf("webhook %s: completed checkout without session id", event.ID)
		return DispatchResult{Reason: ReasonMalformedPayload}, nil
	}

	userID := session.Metadata["user_id"]
	planKey := session.Metadata["plan"]
	if userID == "" || planKey == "" {
		log.Printf("webhook %s: session %s missing metadata (user_id=%q plan=%q)", event.ID, session.ID, userID, planKey)
		return DispatchResult{Reason: ReasonMissingMetadata}, nil
	}

	plan, err := d.catalog.Resolve(planKey)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			log.Printf("webhook %s: session %s references unknown plan %q", event.ID, session.ID, planKey)
			return DispatchResult{Reason: ReasonUnknownPlan}, nil
		}
		return DispatchResult{}, err
	}

	balance, err := d.ledger.ApplyCredit(ctx, userID, plan.Credits, session.ID)
	if err != nil {
		return DispatchResult{}, err
	}

	log.Printf("webhook %s: granted %d credits to user %s for session %s (balance %d)",
		event.ID, plan.Credits, userID, session.ID, balance)
	return DispatchResult{Applied: true, Balance: balance}, nil
}
