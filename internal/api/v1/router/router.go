package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/identity"
	"app/internal/middleware"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New builds the HTTP handler tree and the database pool it runs on.
func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	dsn := cfg.DBConnectionString
	// Local development runs without SSL; production connection strings are
	// expected to carry their own sslmode.
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + "sslmode=disable"
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, err
	}
	poolCfg.MaxConns = 25
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	validate := validator.New(validator.WithRequiredStructEnabled())
	resolver := identity.NewResolver(cfg.JWTSecret, cfg.AnonHashKey)

	// Repositories & services & handlers
	ledgerRepo := repository.NewLedgerRepo(pool)
	subRepo := repository.NewSubscriptionRepo(pool)
	userRepo := repository.NewUserRepo(pool)

	meteringSvc := service.NewMeteringService(ledgerRepo, subRepo, logger)
	demoSvc := service.NewDemoService(cfg.DemoCookieSecret, cfg.DemoSearchLimit, time.Duration(cfg.DemoSessionTTL)*time.Hour, logger)
	adminSvc := service.NewAdminService(meteringSvc, logger)
	stripeSvc := service.NewStripeService(cfg, userRepo, subRepo, meteringSvc, logger)

	creditsHandler := handler.NewCreditsHandler(meteringSvc, demoSvc, validate, logger)
	adminHandler := handler.NewAdminHandler(adminSvc, validate, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(stripeSvc, validate, logger)

	// Middleware
	authMiddleware := middleware.AuthMiddleware(resolver, logger)
	optionalAuthMiddleware := middleware.OptionalAuthMiddleware(resolver, logger)
	adminMiddleware := middleware.AdminMiddleware(userRepo, logger)

	apiV1Mux := http.NewServeMux()
	creditsHandler.RegisterRoutes(apiV1Mux, optionalAuthMiddleware)
	adminHandler.RegisterRoutes(apiV1Mux, authMiddleware, adminMiddleware)
	subscriptionHandler.RegisterRoutes(apiV1Mux, authMiddleware)

	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	// Stripe signs the raw payload; the webhook stays outside the auth'd
	// API tree.
	mux.HandleFunc("POST /webhooks/stripe", stripeSvc.HandleWebhook)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger)(c.Handler(mux)), pool, nil
}
