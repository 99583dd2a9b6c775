package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeService manages Stripe integration: checkout and portal sessions for
// subscriptions, one-time credit pack purchases, and webhook ingestion into
// the subscription table and the credit ledger.
type StripeService struct {
	cfg      *config.Config
	userRepo repository.UserRepository
	subRepo  repository.SubscriptionRepository
	metering MeteringService
	logger   zerolog.Logger
}

// NewStripeService initializes the Stripe key and returns the service with a
// scoped logger.
func NewStripeService(cfg *config.Config, userRepo repository.UserRepository, subRepo repository.SubscriptionRepository, metering MeteringService, logger zerolog.Logger) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	lg := logger.With().Str("service", "StripeService").Logger()
	return &StripeService{cfg: cfg, userRepo: userRepo, subRepo: subRepo, metering: metering, logger: lg}
}

// getUserIDFromEvent resolves the user from webhook metadata, falling back to
// the Stripe customer id.
func (s *StripeService) getUserIDFromEvent(ctx context.Context, metadata map[string]string, customerID string) (string, error) {
	if userID, ok := metadata["user_id"]; ok && userID != "" {
		return userID, nil
	}
	if customerID == "" {
		return "", errors.New("cannot determine user: missing metadata and customer id")
	}
	s.logger.Warn().Str("stripe_customer_id", customerID).Msg("Missing user_id metadata; looking up user by customer ID")
	u, err := s.userRepo.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("failed to lookup user by Stripe customer ID: %w", err)
	}
	if u == nil {
		return "", fmt.Errorf("no user found for customer ID: %s", customerID)
	}
	return u.UserID, nil
}

// GetOrCreateCustomer ensures a Stripe Customer exists for a user.
func (s *StripeService) GetOrCreateCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	s.logger.Warn().Str("user_id", user.UserID).Msg("No Stripe customer ID found, creating customer")
	params := &stripe.CustomerParams{
		Email:    stripe.String(user.Email),
		Name:     stripe.String(user.Name),
		Metadata: map[string]string{"user_id": user.UserID},
	}
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.userRepo.UpdateStripeCustomerID(ctx, user.UserID, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to store stripe customer id in user_profiles")
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a Stripe Checkout session for a subscription
// plan upgrade.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, userID, plan string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for checkout session")
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return "", fmt.Errorf("user not found: %s", userID)
	}
	customerID, err := s.GetOrCreateCustomer(ctx, user)
	if err != nil {
		return "", err
	}
	var priceID string
	switch plan {
	case "monthly":
		priceID = s.cfg.StripePriceMonthly
	case "annual":
		priceID = s.cfg.StripePriceAnnual
	default:
		return "", fmt.Errorf("invalid plan: %s", plan)
	}
	sessParams := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(priceID), Quantity: stripe.Int64(1)}},
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:         stripe.String(s.cfg.StripePortalReturnURL + "?status=success"),
		CancelURL:          stripe.String(s.cfg.StripePortalReturnURL + "?status=cancel"),
		Metadata:           map[string]string{"user_id": userID},
	}
	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		s.logger.Error().Err(err).Str("plan", plan).Msg("Failed to create Stripe checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession creates a Stripe Customer Portal session.
func (s *StripeService) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for portal session")
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil || user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", fmt.Errorf("no stripe customer for user: %s", userID)
	}
	params := &stripe.BillingPortalSessionParams{Customer: stripe.String(*user.StripeCustomerID), ReturnURL: stripe.String(s.cfg.StripePortalReturnURL)}
	sess, err := billingsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create Stripe billing portal session")
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// HandleWebhook processes Stripe webhook events.
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	s.logger.Info().Str("event_type", string(event.Type)).Msg("Stripe webhook received")

	ctx := r.Context()
	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			s.logger.Error().Err(err).Msg("Invalid checkout.session data")
			http.Error(w, "invalid checkout.session data", http.StatusBadRequest)
			return
		}
		userID := cs.Metadata["user_id"]
		if userID == "" {
			s.logger.Error().Str("session_id", cs.ID).Msg("Missing user_id in checkout session metadata")
			http.Error(w, "missing user_id in metadata", http.StatusBadRequest)
			return
		}
		if cs.Mode == stripe.CheckoutSessionModePayment {
			// One-time credit pack. The session id is the idempotency key,
			// so Stripe's webhook retries never double-credit.
			if err := s.creditPackPurchase(ctx, userID, &cs); err != nil {
				s.logger.Error().Err(err).Str("session_id", cs.ID).Msg("Failed to credit pack purchase")
				http.Error(w, "failed to credit purchase", http.StatusInternalServerError)
				return
			}
			break
		}
		if cs.Subscription == nil {
			s.logger.Error().Str("session_id", cs.ID).Msg("Checkout session completed without subscription")
			http.Error(w, "missing subscription", http.StatusBadRequest)
			return
		}
		subObj, err := subscriptionpkg.Get(cs.Subscription.ID, nil)
		if err != nil {
			s.logger.Error().Err(err).Str("subscription_id", cs.Subscription.ID).Msg("Failed to fetch subscription details")
			http.Error(w, "failed to fetch subscription details", http.StatusInternalServerError)
			return
		}
		if err := s.applySubscription(ctx, userID, subObj, "active"); err != nil {
			s.logger.Error().Err(err).Msg("Failed to save subscription on checkout.session.completed")
			http.Error(w, "failed to save subscription", http.StatusInternalServerError)
			return
		}
	case "customer.subscription.updated":
		var ss stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
			s.logger.Error().Err(err).Msg("Invalid customer.subscription.updated payload")
			http.Error(w, "invalid subscription data", http.StatusBadRequest)
			return
		}
		status := string(ss.Status)
		if ss.CancelAtPeriodEnd || ss.Status == stripe.SubscriptionStatusCanceled {
			status = "cancelled"
		}
		userID, err := s.getUserIDFromEvent(ctx, ss.Metadata, ss.Customer.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("subscription_id", ss.ID).Msg("Failed to determine user ID from subscription")
			http.Error(w, "failed to identify user", http.StatusInternalServerError)
			return
		}
		if err := s.applySubscription(ctx, userID, &ss, status); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to update subscription on customer.subscription.updated")
			http.Error(w, "failed to update subscription", http.StatusInternalServerError)
			return
		}
	case "customer.subscription.deleted":
		var ss stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
			s.logger.Error().Err(err).Msg("Invalid customer.subscription.deleted payload")
			http.Error(w, "invalid subscription data", http.StatusBadRequest)
			return
		}
		userID, err := s.getUserIDFromEvent(ctx, ss.Metadata, ss.Customer.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("subscription_id", ss.ID).Msg("Failed to determine user ID from subscription")
			http.Error(w, "failed to identify user", http.StatusInternalServerError)
			return
		}
		if err := s.subRepo.CancelSubscription(ctx, userID); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to cancel subscription on customer.subscription.deleted")
			http.Error(w, "failed to cancel subscription", http.StatusInternalServerError)
			return
		}
	default:
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
	}
	w.WriteHeader(http.StatusOK)
}

// applySubscription upserts the subscription row and, when configured,
// grants the per-period credit allowance. The grant key embeds the period
// start so each billing period grants at most once.
func (s *StripeService) applySubscription(ctx context.Context, userID string, sub *stripe.Subscription, status string) error {
	if len(sub.Items.Data) == 0 {
		return fmt.Errorf("subscription %s has no items", sub.ID)
	}
	item := sub.Items.Data[0]
	if item.Price == nil || item.Price.ID == "" {
		return fmt.Errorf("subscription %s has no price", sub.ID)
	}
	start := time.Unix(item.CurrentPeriodStart, 0)
	end := time.Unix(item.CurrentPeriodEnd, 0)

	if err := s.subRepo.UpsertStripeSubscription(ctx, userID, item.Price.ID, start, end, status, sub.ID); err != nil {
		return err
	}

	if s.cfg.SubscriptionGrantCredits > 0 && status == "active" {
		key := fmt.Sprintf("stripe_grant_%s_%d", sub.ID, item.CurrentPeriodStart)
		_, _, err := s.metering.Credit(ctx, userID, s.cfg.SubscriptionGrantCredits,
			model.SourceSubscriptionGrant, "stripe_subscription", sub.ID, key, nil)
		if err != nil {
			return fmt.Errorf("grant subscription credits: %w", err)
		}
	}
	return nil
}

// creditPackPurchase books a one-time purchase into the ledger. The credit
// amount travels in the checkout session metadata set when the session was
// created on the storefront.
func (s *StripeService) creditPackPurchase(ctx context.Context, userID string, cs *stripe.CheckoutSession) error {
	credits, err := strconv.ParseInt(cs.Metadata["credits"], 10, 64)
	if err != nil || credits <= 0 {
		return fmt.Errorf("checkout session %s has no usable credits metadata", cs.ID)
	}
	_, _, err = s.metering.Credit(ctx, userID, credits, model.SourcePurchase,
		"stripe_checkout", cs.ID, "stripe_"+cs.ID, map[string]string{"session_id": cs.ID})
	return err
}
