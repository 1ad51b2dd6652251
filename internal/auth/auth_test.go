package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/databender/leadengine/internal/config"
)

const testPassword = "correct horse battery staple"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)}
}

func testConfig(t *testing.T) config.AuthConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	return config.AuthConfig{
		AdminPasswordHash: string(hash),
		SessionSecret:     "test-session-secret",
		CookieName:        "le_admin",
		SessionTTLHours:   8,
		MaxFailedAttempts: 5,
		LockoutMinutes:    15,
	}
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func newManager(t *testing.T, clock *testClock) *AuthManager {
	cfg := testConfig(t)
	return NewAuthManager(cfg, NewLockout(nil, cfg.MaxFailedAttempts, cfg.Lockout(), clock.Now), WithClock(clock.Now))
}

func TestLogin_IssuesVerifiableToken(t *testing.T) {
	clock := newClock()
	am := newManager(t, clock)

	token, sess, err := am.Login(context.Background(), "1.2.3.4", testPassword)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(8*time.Hour), sess.ExpiresAt)

	got, err := am.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Subject)
	assert.Equal(t, sess.ExpiresAt, got.ExpiresAt)

	clock.Advance(8*time.Hour + time.Second)
	_, err = am.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogin_WrongPassword(t *testing.T) {
	am := newManager(t, newClock())
	_, _, err := am.Login(context.Background(), "1.2.3.4", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_NotConfigured(t *testing.T) {
	am := NewAuthManager(config.AuthConfig{CookieName: "c"}, nil)
	_, _, err := am.Login(context.Background(), "ip", "anything")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLogin_LocksOutAfterMaxFailures(t *testing.T) {
	clock := newClock()
	am := newManager(t, clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _, err := am.Login(ctx, "ip", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, _, err := am.Login(ctx, "ip", "wrong")
	var locked *LockedOutError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, 15*time.Minute, locked.Remaining)

	_, _, err = am.Login(ctx, "ip", testPassword)
	assert.ErrorIs(t, err, ErrLockedOut, "correct password is refused while locked")

	_, _, err = am.Login(ctx, "other-ip", testPassword)
	assert.NoError(t, err)

	clock.Advance(15 * time.Minute)
	_, _, err = am.Login(ctx, "ip", testPassword)
	assert.NoError(t, err)
}

func TestVerify_RejectsForeignTokens(t *testing.T) {
	clock := newClock()
	am := newManager(t, clock)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		Issuer:    "leadengine",
		ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
	})
	forged, err := other.SignedString([]byte("another-secret"))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "admin",
		Issuer:  "leadengine",
	}).SignedString([]byte("test-session-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":         "",
		"garbage":       "not.a.jwt",
		"wrong secret":  forged,
		"no expiration": noExp,
	} {
		_, err := am.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestLockout_Redis(t *testing.T) {
	mr, client := setupTestRedis(t)
	lo := NewLockout(client, 3, 15*time.Minute, nil)
	ctx := context.Background()

	assert.Equal(t, 1, lo.RecordFailure(ctx, "ip").Attempts)
	assert.Equal(t, 2, lo.RecordFailure(ctx, "ip").Attempts)
	assert.False(t, lo.Status(ctx, "ip").Locked)

	st := lo.RecordFailure(ctx, "ip")
	assert.True(t, st.Locked)

	st = lo.Status(ctx, "ip")
	assert.True(t, st.Locked)
	assert.Equal(t, 15*time.Minute, st.Remaining)

	mr.FastForward(15 * time.Minute)
	assert.False(t, lo.Status(ctx, "ip").Locked)
	assert.Equal(t, 1, lo.RecordFailure(ctx, "ip").Attempts, "counter restarts after a lockout")
}

func TestLockout_RedisClear(t *testing.T) {
	_, client := setupTestRedis(t)
	lo := NewLockout(client, 2, time.Minute, nil)
	ctx := context.Background()

	lo.RecordFailure(ctx, "ip")
	lo.RecordFailure(ctx, "ip")
	require.True(t, lo.Status(ctx, "ip").Locked)

	lo.Clear(ctx, "ip")
	assert.Equal(t, LockStatus{}, lo.Status(ctx, "ip"))
}

func TestLockout_RedisDownFallsBackToMemory(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()
	lo := NewLockout(client, 2, time.Minute, newClock().Now)
	ctx := context.Background()

	lo.RecordFailure(ctx, "ip")
	assert.True(t, lo.RecordFailure(ctx, "ip").Locked)
	assert.True(t, lo.Status(ctx, "ip").Locked)
}

func TestLockout_MemoryAttemptWindow(t *testing.T) {
	clock := newClock()
	lo := NewLockout(nil, 3, time.Minute, clock.Now)
	ctx := context.Background()

	lo.RecordFailure(ctx, "ip")
	lo.RecordFailure(ctx, "ip")
	clock.Advance(time.Hour)
	assert.Equal(t, 1, lo.RecordFailure(ctx, "ip").Attempts, "old attempts are forgotten")
}

func TestHandleLogin(t *testing.T) {
	clock := newClock()
	am := newManager(t, clock)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(body))
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		am.HandleLogin(rec, req)
		return rec
	}

	t.Run("missing password", func(t *testing.T) {
		rec := post(`{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := post(`{"password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("success sets cookie", func(t *testing.T) {
		rec := post(`{"password":"` + testPassword + `"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		c := cookies[0]
		assert.Equal(t, "le_admin", c.Name)
		assert.True(t, c.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		_, err := am.Verify(c.Value)
		assert.NoError(t, err)
	})

	t.Run("lockout answers 429", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			post(`{"password":"nope"}`)
		}
		rec := post(`{"password":"nope"}`)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "900", rec.Header().Get("Retry-After"))
	})
}

func TestRequireAdmin(t *testing.T) {
	clock := newClock()
	am := newManager(t, clock)
	token, _, err := am.Login(context.Background(), "ip", testPassword)
	require.NoError(t, err)

	var seen *Session
	h := am.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("no token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/leads", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/leads", nil)
		req.AddCookie(&http.Cookie{Name: "le_admin", Value: token})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "admin", seen.Subject)
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/leads", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("expired", func(t *testing.T) {
		clock.Advance(9 * time.Hour)
		req := httptest.NewRequest(http.MethodGet, "/api/admin/leads", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandleLogout_ClearsCookie(t *testing.T) {
	am := newManager(t, newClock())
	rec := httptest.NewRecorder()
	am.HandleLogout(rec, httptest.NewRequest(http.MethodPost, "/api/admin/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
