package billing

import (
	"sort"
	"strings"

	"github.com/glyphio/glyphio/internal/pkg/config"
)

// Stripe price identifiers always carry this prefix; anything else in the
// configuration is treated as an unusable plan rather than a fatal fault.
const priceRefPrefix = "price_"

// Catalog is the immutable plan lookup table. It is built once from the
// configuration and shared by the checkout initiator and the dispatcher.
type Catalog struct {
	plans map[string]config.Plan
}

func NewCatalog(cfg *config.Config) *Catalog {
	plans := make(map[string]config.Plan, len(cfg.Plans))
	for key, plan := range cfg.Plans {
		plans[strings.ToLower(key)] = plan
	}
	return &Catalog{plans: plans}
}

// Resolve looks up a plan case-insensitively. ErrPlanNotFound covers both an
// absent key and a misconfigured price reference.
func (c *Catalog) Resolve(planKey string) (config.Plan, error) {
	key := strings.ToLower(strings.TrimSpace(planKey))
	plan, ok := c.plans[key]
	if !ok {
		return config.Plan{}, ErrPlanNotFound
	}
	if !strings.HasPrefix(plan.PriceID, priceRefPrefix) {
		return config.Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

// Keys returns the known plan keys sorted, for error messages.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.plans))
	for key := range c.plans {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
