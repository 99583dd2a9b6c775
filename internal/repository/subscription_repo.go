package repository

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository defines methods for accessing subscription data.
type SubscriptionRepository interface {
	// IsActiveSubscriber reports whether the account currently holds an
	// active (or cancelled-but-not-yet-expired) subscription.
	IsActiveSubscriber(ctx context.Context, userID string) (bool, error)
	GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error)
	UpsertStripeSubscription(ctx context.Context, userID, planID string, startsAt, endsAt time.Time, status, stripeSubscriptionID string) error
	CancelSubscription(ctx context.Context, userID string) error
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

// IsActiveSubscriber checks for a live subscription. Cancelled subscribers
// keep access until their paid period ends, with a 6h grace window covering
// the gap before the renewal job runs.
func (r *subscriptionRepo) IsActiveSubscriber(ctx context.Context, userID string) (bool, error) {
	const q = `
        SELECT EXISTS (
            SELECT 1
            FROM user_subscriptions
            WHERE user_id = $1
              AND status IN ('active', 'cancelled')
              AND (ends_at + INTERVAL '6 hours') > NOW()
        )
    `
	var active bool
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&active); err != nil {
		return false, fmt.Errorf("check active subscription for user %s: %w", userID, err)
	}
	return active, nil
}

// GetActiveSubscription returns the current active subscription for a user.
func (r *subscriptionRepo) GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error) {
	const q = `
        SELECT user_id, plan_id, stripe_subscription_id, starts_at, ends_at, status, created_at, updated_at
        FROM user_subscriptions
        WHERE user_id = $1
          AND status IN ('active', 'cancelled')
          AND (ends_at + INTERVAL '6 hours') > NOW()
    `
	var us model.UserSubscription
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&us.UserID,
		&us.PlanID,
		&us.StripeSubscriptionID,
		&us.StartsAt,
		&us.EndsAt,
		&us.Status,
		&us.CreatedAt,
		&us.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch active subscription for user %s: %w", userID, err)
	}
	return &us, nil
}

// UpsertStripeSubscription records the subscription state pushed by a Stripe
// webhook event.
func (r *subscriptionRepo) UpsertStripeSubscription(ctx context.Context, userID, planID string, startsAt, endsAt time.Time, status, stripeSubscriptionID string) error {
	const q = `
        INSERT INTO user_subscriptions (user_id, plan_id, stripe_subscription_id, starts_at, ends_at, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id) DO UPDATE
        SET plan_id = EXCLUDED.plan_id,
            stripe_subscription_id = EXCLUDED.stripe_subscription_id,
            starts_at = EXCLUDED.starts_at,
            ends_at = EXCLUDED.ends_at,
            status = EXCLUDED.status,
            updated_at = NOW()
    `
	if _, err := r.pool.Exec(ctx, q, userID, planID, stripeSubscriptionID, startsAt, endsAt, status); err != nil {
		return fmt.Errorf("upsert subscription for user %s: %w", userID, err)
	}
	return nil
}

// CancelSubscription marks the user's subscription expired immediately.
// Used when Stripe reports the subscription deleted.
func (r *subscriptionRepo) CancelSubscription(ctx context.Context, userID string) error {
	const q = `
        UPDATE user_subscriptions
        SET status = 'expired', ends_at = NOW(), updated_at = NOW()
        WHERE user_id = $1
    `
	if _, err := r.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("cancel subscription for user %s: %w", userID, err)
	}
	return nil
}
