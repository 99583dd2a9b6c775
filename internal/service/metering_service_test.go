package service

import (
	"context"
	"testing"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSubscriptionRepo satisfies repository.SubscriptionRepository with a
// fixed answer, so metering tests run against the in-memory ledger only.
type stubSubscriptionRepo struct {
	active map[string]bool
}

func (s *stubSubscriptionRepo) IsActiveSubscriber(ctx context.Context, userID string) (bool, error) {
	return s.active[userID], nil
}

func (s *stubSubscriptionRepo) GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error) {
	return nil, nil
}

func (s *stubSubscriptionRepo) UpsertStripeSubscription(ctx context.Context, userID, planID string, startsAt, endsAt time.Time, status, stripeSubscriptionID string) error {
	return nil
}

func (s *stubSubscriptionRepo) CancelSubscription(ctx context.Context, userID string) error {
	return nil
}

func newTestMetering(active ...string) (MeteringService, *repository.MemoryLedger) {
	ledger := repository.NewMemoryLedger()
	subs := &stubSubscriptionRepo{active: map[string]bool{}}
	for _, a := range active {
		subs.active[a] = true
	}
	return NewMeteringService(ledger, subs, zerolog.Nop()), ledger
}

func TestCreditRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMetering()

	_, _, err := m.Credit(ctx, "acct", 0, model.SourcePurchase, "pack", "p1", "k1", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = m.Credit(ctx, "acct", -5, model.SourcePurchase, "pack", "p1", "k1", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = m.Credit(ctx, "acct", 5, model.Source("weird"), "pack", "p1", "k1", nil)
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, _, err = m.Credit(ctx, "acct", 5, model.SourcePurchase, "pack", "p1", "", nil)
	assert.ErrorIs(t, err, ErrMissingIdempotencyKey)
}

func TestDebitRejectsInvalidAmount(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMetering()

	_, err := m.Debit(ctx, "acct", 0, model.SourceUsage, "ask", "q1", "k1", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = m.Debit(ctx, "acct", -3, model.SourceUsage, "ask", "q1", "k1", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// Scenario from the product requirements: purchase 100, spend 30, replay the
// spend, then overdraw.
func TestCreditDebitReplayScenario(t *testing.T) {
	ctx := context.Background()
	m, ledger := newTestMetering()

	balance, replayed, err := m.Credit(ctx, "acct", 100, model.SourcePurchase, "pack", "p1", "K1", nil)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.EqualValues(t, 100, balance)

	res, err := m.Debit(ctx, "acct", 30, model.SourceUsage, "ask", "q1", "K2", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 70, res.Balance)

	// Replay: same key, identical balance, no double charge.
	res, err = m.Debit(ctx, "acct", 30, model.SourceUsage, "ask", "q1", "K2", nil)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.EqualValues(t, 70, res.Balance)

	_, err = m.Debit(ctx, "acct", 1000, model.SourceUsage, "ask", "q2", "K3", nil)
	var insufficient *InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.EqualValues(t, 70, insufficient.Balance)
	assert.EqualValues(t, 1000, insufficient.Requested)

	balanceNow, err := ledger.BalanceOf(ctx, "acct")
	require.NoError(t, err)
	assert.EqualValues(t, 70, balanceNow)
}

func TestDebitSubscriberIsNoOp(t *testing.T) {
	ctx := context.Background()
	m, ledger := newTestMetering("subscriber-1")

	_, _, err := m.Credit(ctx, "subscriber-1", 10, model.SourcePurchase, "pack", "p1", "k1", nil)
	require.NoError(t, err)

	// Any amount, even absurd ones: no ledger entry for subscriber usage.
	res, err := m.Debit(ctx, "subscriber-1", 1_000_000, model.SourceUsage, "ask", "q1", "k2", nil)
	require.NoError(t, err)
	assert.True(t, res.Subscriber)
	assert.EqualValues(t, 10, res.Balance)

	entries, err := ledger.EntriesOf(ctx, "subscriber-1", 100)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDebitAdminAdjustmentBypassesSubscriberOverride(t *testing.T) {
	ctx := context.Background()
	m, ledger := newTestMetering("subscriber-1")

	_, _, err := m.Credit(ctx, "subscriber-1", 50, model.SourcePurchase, "pack", "p1", "k1", nil)
	require.NoError(t, err)

	res, err := m.Debit(ctx, "subscriber-1", 20, model.SourceAdminAdjustment, "admin", "op-1", "k2", nil)
	require.NoError(t, err)
	assert.False(t, res.Subscriber)
	assert.EqualValues(t, 30, res.Balance)

	entries, err := ledger.EntriesOf(ctx, "subscriber-1", 100)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStatusSubscriberShortCircuits(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMetering("subscriber-1")

	status, err := m.Status(ctx, "subscriber-1")
	require.NoError(t, err)
	assert.True(t, status.Unlimited)
	assert.True(t, status.IsSubscriber)
}

func TestStatusNonSubscriberReportsBalance(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMetering()

	status, err := m.Status(ctx, "acct")
	require.NoError(t, err)
	assert.False(t, status.Unlimited)
	assert.EqualValues(t, 0, status.Balance)

	_, _, err = m.Credit(ctx, "acct", 42, model.SourcePurchase, "pack", "p1", "k1", nil)
	require.NoError(t, err)

	status, err = m.Status(ctx, "acct")
	require.NoError(t, err)
	assert.EqualValues(t, 42, status.Balance)
}
