package billing

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/glyphio/glyphio/internal/pkg/config"
)

// CheckoutService creates Stripe checkout sessions for plan purchases. The
// session metadata {user_id, plan} is the only channel through which the
// completion webhook learns whom to credit, so it is attached to every
// session.
type CheckoutService struct {
	cfg     *config.Config
	catalog *Catalog

	// create is swapped out in tests.
	create func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewCheckoutService(cfg *config.Config, catalog *Catalog) *CheckoutService {
	stripe.Key = cfg.StripeSecretKey
	return &CheckoutService{
		cfg:     cfg,
		catalog: catalog,
		create:  checkoutsession.New,
	}
}

// CreateSession resolves the plan and asks Stripe for a payment-mode session
// with a single line item. It returns the hosted checkout URL. Provider
// failures are never retried here: a retry would mint a second purchasable
// session.
func (s *CheckoutService) CreateSession(ctx context.Context, planKey, userID, email string) (string, error) {
	plan, err := s.catalog.Resolve(planKey)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(plan.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.AddMetadata("user_id", userID)
	// The canonical lowercase key, not the caller's spelling.
	params.AddMetadata("plan", plan.Key)

	sess, err := s.create(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			return "", &ProviderError{
				Message: stripeErr.Msg,
				Type:    string(stripeErr.Type),
				Code:    string(stripeErr.Code),
				err:     err,
			}
		}
		return "", &ProviderError{Message: "checkout session creation failed", err: err}
	}

	return sess.URL, nil
}
