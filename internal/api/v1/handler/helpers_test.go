package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"app/internal/identity"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret  = "test-jwt-secret"
	testHashKey    = "test-hash-key"
	testDemoSecret = "test-demo-secret"
	testDemoLimit  = 3
)

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

type stubUserRepo struct {
	admins map[string]bool
}

func (s *stubUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return &model.User{UserID: id}, nil
}

func (s *stubUserRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	return nil, nil
}

func (s *stubUserRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	return nil
}

func (s *stubUserRepo) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return s.admins[userID], nil
}

type testEnv struct {
	mux      *http.ServeMux
	ledger   *repository.MemoryLedger
	resolver *identity.Resolver
	subs     *stubSubscriptionRepo
	users    *stubUserRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	ledger := repository.NewMemoryLedger()
	subs := &stubSubscriptionRepo{active: map[string]bool{}}
	users := &stubUserRepo{admins: map[string]bool{}}
	resolver := identity.NewResolver(testJWTSecret, testHashKey)
	validate := validator.New(validator.WithRequiredStructEnabled())

	metering := service.NewMeteringService(ledger, subs, logger)
	demo := service.NewDemoService(testDemoSecret, testDemoLimit, 24*time.Hour, logger)
	admin := service.NewAdminService(metering, logger)

	mux := http.NewServeMux()
	NewCreditsHandler(metering, demo, validate, logger).
		RegisterRoutes(mux, middleware.OptionalAuthMiddleware(resolver, logger))
	NewAdminHandler(admin, validate, logger).
		RegisterRoutes(mux, middleware.AuthMiddleware(resolver, logger), middleware.AdminMiddleware(users, logger))

	return &testEnv{mux: mux, ledger: ledger, resolver: resolver, subs: subs, users: users}
}

func (e *testEnv) signSession(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func (e *testEnv) seedCredits(t *testing.T, accountID string, amount int64) {
	t.Helper()
	_, _, err := e.ledger.Append(context.Background(), model.LedgerEntry{
		AccountID:      accountID,
		Amount:         amount,
		Source:         model.SourcePurchase,
		IdempotencyKey: "seed-" + accountID,
	})
	require.NoError(t, err)
}
