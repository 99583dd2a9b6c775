package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port               string `envconfig:"PORT" default:"8080"`
	Environment        string `envconfig:"ENV" default:"development"`
	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`

	// JWTSecret verifies Supabase-issued session tokens.
	JWTSecret string `envconfig:"SUPABASE_JWT_SECRET" required:"true"`

	// AnonHashKey keys the HMAC that derives stable anonymous account ids
	// from the tracking cookie. Rotating it invalidates every previously
	// derived anonymous identity: their ledger rows remain but are no
	// longer reachable under the new ids.
	AnonHashKey string `envconfig:"ANON_HASH_KEY" required:"true"`

	// Demo search quota for unauthenticated, non-subscribed traffic.
	DemoCookieSecret string `envconfig:"DEMO_COOKIE_SECRET" required:"true"`
	DemoSearchLimit  int    `envconfig:"DEMO_SEARCH_LIMIT" default:"3"`
	DemoSessionTTL   int    `envconfig:"DEMO_SESSION_TTL_HOURS" default:"24"`

	// Credits granted when a subscription period begins. Zero disables the
	// grant; subscribers bypass balance checks either way.
	SubscriptionGrantCredits int64 `envconfig:"SUBSCRIPTION_GRANT_CREDITS" default:"0"`

	// Stripe settings
	StripeSecretKey       string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret   string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	StripePriceMonthly    string `envconfig:"STRIPE_PRICE_MONTHLY" required:"true"`
	StripePriceAnnual     string `envconfig:"STRIPE_PRICE_ANNUAL" required:"true"`
	StripePortalReturnURL string `envconfig:"STRIPE_PORTAL_RETURN_URL" required:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
