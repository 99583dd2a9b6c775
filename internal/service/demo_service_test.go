package service

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDemo(limit int, ttl time.Duration) *DemoService {
	return NewDemoService("demo-secret", limit, ttl, zerolog.Nop())
}

func TestDemoFreshSession(t *testing.T) {
	demo := newTestDemo(3, 24*time.Hour)

	state := demo.Check("")
	assert.Equal(t, 0, state.Used)
	assert.Equal(t, 3, state.Remaining)
	assert.True(t, state.Allowed)
}

func TestDemoConsumeToExhaustion(t *testing.T) {
	demo := newTestDemo(3, 24*time.Hour)

	cookie := ""
	for i := 1; i <= 3; i++ {
		token, state, err := demo.Consume(cookie)
		require.NoError(t, err)
		assert.Equal(t, i, state.Used)
		assert.Equal(t, 3-i, state.Remaining)
		cookie = token
	}

	state := demo.Check(cookie)
	assert.False(t, state.Allowed)
	assert.Equal(t, 0, state.Remaining)

	_, _, err := demo.Consume(cookie)
	assert.ErrorIs(t, err, ErrDemoQuotaExhausted)
}

func TestDemoConsumePreservesExpiry(t *testing.T) {
	demo := newTestDemo(5, 24*time.Hour)

	token, first, err := demo.Consume("")
	require.NoError(t, err)

	// Advance the clock; consuming again must not extend the window.
	demo.now = func() time.Time { return time.Now().Add(6 * time.Hour) }
	token, second, err := demo.Consume(token)
	require.NoError(t, err)
	assert.Equal(t, first.ExpiresAt.Unix(), second.ExpiresAt.Unix())

	state := demo.Check(token)
	assert.Equal(t, 2, state.Used)
}

func TestDemoExpiredSessionResets(t *testing.T) {
	demo := newTestDemo(2, 24*time.Hour)

	cookie := ""
	for i := 0; i < 2; i++ {
		token, _, err := demo.Consume(cookie)
		require.NoError(t, err)
		cookie = token
	}
	_, _, err := demo.Consume(cookie)
	require.ErrorIs(t, err, ErrDemoQuotaExhausted)

	// After the TTL elapses the old cookie reads as a fresh session.
	demo.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	state := demo.Check(cookie)
	assert.Equal(t, 0, state.Used)
	assert.True(t, state.Allowed)

	_, fresh, err := demo.Consume(cookie)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Used)
}

func TestDemoTamperedCookieReadsFresh(t *testing.T) {
	demo := newTestDemo(3, 24*time.Hour)

	token, _, err := demo.Consume("")
	require.NoError(t, err)

	state := demo.Check(token + "x")
	assert.Equal(t, 0, state.Used)

	// A cookie signed under a different secret is also rejected.
	other := newTestDemo(3, 24*time.Hour)
	other.secret = []byte("other-secret")
	forged, _, err := other.Consume("")
	require.NoError(t, err)
	assert.Equal(t, 0, demo.Check(forged).Used)
}
