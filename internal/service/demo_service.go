package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// DemoState is the decoded view of a demo-search session.
type DemoState struct {
	Used      int
	Remaining int
	Allowed   bool
	ExpiresAt time.Time
}

type demoClaims struct {
	Used int `json:"used"`
	jwt.RegisteredClaims
}

// DemoService maintains the cookie-resident demo search counter for
// unauthenticated, non-subscribed traffic. The signed cookie is the only
// state: there is no server-side storage, no idempotency key and no ledger
// row. It is a courtesy limiter, not billing truth.
type DemoService struct {
	secret []byte
	limit  int
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewDemoService creates a DemoService with a scoped logger.
func NewDemoService(secret string, limit int, ttl time.Duration, logger zerolog.Logger) *DemoService {
	return &DemoService{
		secret: []byte(secret),
		limit:  limit,
		ttl:    ttl,
		logger: logger.With().Str("service", "DemoService").Logger(),
		now:    time.Now,
	}
}

// Limit returns the number of demo searches granted per window.
func (s *DemoService) Limit() int { return s.limit }

// Check decodes the demo cookie. Missing, expired or tampered cookies all
// read as a fresh session with zero usage.
func (s *DemoService) Check(raw string) DemoState {
	used, exp, ok := s.decode(raw)
	if !ok {
		return DemoState{Used: 0, Remaining: s.limit, Allowed: s.limit > 0}
	}
	remaining := s.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return DemoState{Used: used, Remaining: remaining, Allowed: used < s.limit, ExpiresAt: exp}
}

// Consume increments the counter and returns the re-signed cookie value.
// A fresh session gets a new expiry window; an existing session keeps its
// original expiry, so touching the quota never extends it. Consuming at the
// limit fails with ErrDemoQuotaExhausted and returns no cookie.
func (s *DemoService) Consume(raw string) (string, DemoState, error) {
	used, exp, ok := s.decode(raw)
	if !ok {
		used = 0
		exp = s.now().Add(s.ttl)
	}
	if used >= s.limit {
		return "", DemoState{Used: used, Remaining: 0, ExpiresAt: exp}, ErrDemoQuotaExhausted
	}
	used++

	claims := demoClaims{
		Used: used,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", DemoState{}, fmt.Errorf("sign demo session: %w", err)
	}
	remaining := s.limit - used
	return token, DemoState{Used: used, Remaining: remaining, Allowed: remaining > 0, ExpiresAt: exp}, nil
}

func (s *DemoService) decode(raw string) (used int, exp time.Time, ok bool) {
	if raw == "" {
		return 0, time.Time{}, false
	}
	claims := &demoClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v (expected HMAC)", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || claims.ExpiresAt == nil {
		return 0, time.Time{}, false
	}
	if claims.Used < 0 {
		return 0, time.Time{}, false
	}
	return claims.Used, claims.ExpiresAt.Time, true
}
