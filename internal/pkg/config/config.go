package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/glyphio/glyphio/internal/pkg/env"
)

// Plan describes a purchasable tier: the Stripe price it maps to and the
// credit amount granted when a checkout for it completes.
type Plan struct {
	Key     string `validate:"required,lowercase"`
	PriceID string `validate:"required"`
	Credits int64  `validate:"required,gt=0"`
}

// Config is built once at process start and passed into components by
// reference. Business logic never reads the environment directly.
type Config struct {
	AppHost string
	AppPort string

	SiteURL    string `validate:"required,url"`
	SuccessURL string `validate:"required,url"`
	CancelURL  string `validate:"required,url"`

	StripeSecretKey     string `validate:"required"`
	StripeWebhookSecret string `validate:"required"`

	AuthBaseURL string `validate:"required,url"`
	AuthAnonKey string `validate:"required"`

	CacheHost string
	CachePort string

	Plans map[string]Plan `validate:"required,min=1,dive"`
}

// Load assembles the configuration from the environment. Plan price IDs are
// read per tier; credit amounts default to the deployed pricing but can be
// overridden (e.g. GLYPHIO_CREDITS_PRO=200).
func Load() (*Config, error) {
	siteURL := strings.TrimRight(env.GetEnv("SITE_URL", "https://glyphio.app"), "/")

	cfg := &Config{
		AppHost: env.GetEnv("APP_HOST", "localhost"),
		AppPort: env.GetEnv("APP_PORT", "4000"),

		SiteURL:    siteURL,
		SuccessURL: env.GetEnv("CHECKOUT_SUCCESS_URL", siteURL+"/?success=1"),
		CancelURL:  env.GetEnv("CHECKOUT_CANCEL_URL", siteURL+"/?canceled=1"),

		StripeSecretKey:     env.GetEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),

		AuthBaseURL: strings.TrimRight(env.GetEnv("AUTH_BASE_URL", ""), "/"),
		AuthAnonKey: env.GetEnv("AUTH_ANON_KEY", ""),

		CacheHost: env.GetEnv("CACHE_HOST", ""),
		CachePort: env.GetEnv("CACHE_PORT", "6379"),

		Plans: loadPlans(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// defaultCredits mirrors the deployed tier pricing.
var defaultCredits = map[string]int64{
	"starter": 50,
	"pro":     150,
	"studio":  400,
}

func loadPlans() map[string]Plan {
	plans := make(map[string]Plan, len(defaultCredits))
	for key, credits := range defaultCredits {
		upper := strings.ToUpper(key)
		if v := env.GetEnv("GLYPHIO_CREDITS_"+upper, ""); v != "" {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
				credits = parsed
			}
		}
		plans[key] = Plan{
			Key:     key,
			PriceID: env.GetEnv("GLYPHIO_PRICE_"+upper, ""),
			Credits: credits,
		}
	}
	return plans
}
