package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"app/internal/util"
)

// ErrNoIdentity is returned when a request carries neither a session token
// nor an anonymous tracking cookie. Callers must mint an anonymous cookie
// before invoking metering.
var ErrNoIdentity = errors.New("no_identity")

// AnonPrefix marks account ids derived from the anonymous tracking cookie.
const AnonPrefix = "anon_"

// Resolver maps a request's credentials to exactly one stable account id.
// It is a pure function of its inputs and key material; it never touches
// the ledger.
type Resolver struct {
	jwtSecret   string
	anonHashKey []byte
}

func NewResolver(jwtSecret, anonHashKey string) *Resolver {
	return &Resolver{jwtSecret: jwtSecret, anonHashKey: []byte(anonHashKey)}
}

// Resolve returns the account id for the given credentials. A present but
// unverifiable session token is a hard failure: it never falls through to
// the anonymous path, so a forged token cannot be laundered into a valid
// anonymous identity.
func (r *Resolver) Resolve(sessionToken, anonCookie string) (string, error) {
	if sessionToken != "" {
		claims, err := util.ValidateJWT(sessionToken, r.jwtSecret)
		if err != nil {
			return "", fmt.Errorf("verify session token: %w", err)
		}
		return claims.Subject, nil
	}
	if anonCookie != "" {
		return r.AnonymousID(anonCookie), nil
	}
	return "", ErrNoIdentity
}

// AnonymousID derives a stable pseudonymous account id from the raw tracking
// cookie value. Same cookie, same id; the raw value is not recoverable from
// the id. Rotating the HMAC key orphans all previously derived ids.
func (r *Resolver) AnonymousID(anonCookie string) string {
	mac := hmac.New(sha256.New, r.anonHashKey)
	mac.Write([]byte(anonCookie))
	return AnonPrefix + hex.EncodeToString(mac.Sum(nil)[:16])
}

// IsAnonymous reports whether accountID was derived from a tracking cookie.
func IsAnonymous(accountID string) bool {
	return len(accountID) > len(AnonPrefix) && accountID[:len(AnonPrefix)] == AnonPrefix
}
