package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"app/internal/identity"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Injected key type to avoid context collisions
type contextKey string

const (
	// UserContextKey holds the authenticated user id. Absent for anonymous
	// requests.
	UserContextKey = contextKey("user")
	// AccountContextKey holds the resolved metering Account.
	AccountContextKey = contextKey("account")
)

// AnonCookieName carries the raw anonymous tracking value; the account id is
// derived from it server-side, the cookie itself is just a random token.
const AnonCookieName = "aid"

// Account is the identity attached to a request after resolution.
type Account struct {
	// ID is the metering account id: the user id for authenticated
	// requests, a derived pseudonymous id otherwise.
	ID        string
	UserID    string
	Anonymous bool
}

// AccountFromContext returns the resolved account, if any.
func AccountFromContext(ctx context.Context) (Account, bool) {
	acct, ok := ctx.Value(AccountContextKey).(Account)
	return acct, ok
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware requires a valid session token and attaches the account.
func AuthMiddleware(resolver *identity.Resolver, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				logger.Error().Msg("Authorization header missing or malformed")
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}
			accountID, err := resolver.Resolve(token, "")
			if err != nil {
				logger.Error().Err(err).Msg("Invalid session token")
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			acct := Account{ID: accountID, UserID: accountID}
			ctx := context.WithValue(r.Context(), UserContextKey, accountID)
			ctx = context.WithValue(ctx, AccountContextKey, acct)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthMiddleware resolves an account for every request. A session
// token, when present, must verify (a bad token is rejected, never downgraded
// to anonymous). Without a token the anonymous tracking cookie is used,
// minted first if the client has none, so metering always sees an identity.
func OptionalAuthMiddleware(resolver *identity.Resolver, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				accountID, err := resolver.Resolve(token, "")
				if err != nil {
					logger.Error().Err(err).Msg("Invalid session token")
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				acct := Account{ID: accountID, UserID: accountID}
				ctx := context.WithValue(r.Context(), UserContextKey, accountID)
				ctx = context.WithValue(ctx, AccountContextKey, acct)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			raw := ""
			if c, err := r.Cookie(AnonCookieName); err == nil {
				raw = c.Value
			}
			if raw == "" {
				raw = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     AnonCookieName,
					Value:    raw,
					Path:     "/",
					Expires:  time.Now().Add(365 * 24 * time.Hour),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			acct := Account{ID: resolver.AnonymousID(raw), Anonymous: true}
			ctx := context.WithValue(r.Context(), AccountContextKey, acct)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware gates privileged routes on the admin role. It layers on
// top of AuthMiddleware. Authorization failures reveal nothing about any
// account's ledger.
func AdminMiddleware(users repository.UserRepository, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := r.Context().Value(UserContextKey).(string)
			if !ok || userID == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			isAdmin, err := users.IsAdmin(r.Context(), userID)
			if err != nil {
				logger.Error().Err(err).Str("user_id", userID).Msg("Failed to check admin role")
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if !isAdmin {
				logger.Warn().Str("user_id", userID).Msg("Non-admin attempted admin route")
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
