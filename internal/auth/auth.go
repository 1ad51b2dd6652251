// Package auth protects the admin API with a single shared password.
//
// A successful login issues an HS256 JWT carried in an HttpOnly cookie (or an
// Authorization: Bearer header for scripts). Failed logins are counted per
// client IP and lock the IP out after too many attempts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/databender/leadengine/internal/config"
	"github.com/databender/leadengine/internal/pkg/httputil"
	"github.com/databender/leadengine/internal/pkg/logger"
)

const (
	adminSubject = "admin"
	issuer       = "leadengine"
)

var (
	ErrNotConfigured      = errors.New("admin auth is not configured")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLockedOut          = errors.New("too many failed attempts")
	ErrInvalidToken       = errors.New("invalid session token")
)

// LockedOutError carries how long the client must wait.
type LockedOutError struct {
	Remaining time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrLockedOut, e.Remaining.Round(time.Second))
}

func (e *LockedOutError) Unwrap() error { return ErrLockedOut }

// Session is a verified admin session.
type Session struct {
	Subject   string    `json:"subject"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionKey struct{}

// SessionFromContext returns the session stored by RequireAdmin.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// AuthManager handles admin login and session checks.
type AuthManager struct {
	cfg      config.AuthConfig
	secret   []byte
	lockout  *Lockout
	clientIP func(*http.Request) string
	now      func() time.Time
}

// Option configures an AuthManager.
type Option func(*AuthManager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(am *AuthManager) { am.now = now }
}

// WithClientIP sets how the lockout identifier is read from a request.
func WithClientIP(fn func(*http.Request) string) Option {
	return func(am *AuthManager) { am.clientIP = fn }
}

// NewAuthManager creates an auth manager. Without a password hash and
// session secret every login fails with ErrNotConfigured.
func NewAuthManager(cfg config.AuthConfig, lockout *Lockout, opts ...Option) *AuthManager {
	am := &AuthManager{
		cfg:      cfg,
		secret:   []byte(cfg.SessionSecret),
		lockout:  lockout,
		clientIP: remoteIP,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(am)
	}
	if am.lockout == nil {
		am.lockout = NewLockout(nil, cfg.MaxFailedAttempts, cfg.Lockout(), am.now)
	}
	return am
}

func (am *AuthManager) configured() bool {
	return am.cfg.AdminPasswordHash != "" && len(am.secret) > 0
}

// Login checks the password for a client and returns a signed session token.
func (am *AuthManager) Login(ctx context.Context, clientID, password string) (string, *Session, error) {
	if !am.configured() {
		return "", nil, ErrNotConfigured
	}
	if st := am.lockout.Status(ctx, clientID); st.Locked {
		return "", nil, &LockedOutError{Remaining: st.Remaining}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(am.cfg.AdminPasswordHash), []byte(password)); err != nil {
		st := am.lockout.RecordFailure(ctx, clientID)
		logger.Warn("admin login failed", "client", clientID, "attempts", st.Attempts, "locked", st.Locked)
		if st.Locked {
			return "", nil, &LockedOutError{Remaining: st.Remaining}
		}
		return "", nil, ErrInvalidCredentials
	}

	am.lockout.Clear(ctx, clientID)
	token, sess, err := am.issue()
	if err != nil {
		return "", nil, err
	}
	logger.Info("admin logged in", "client", clientID)
	return token, sess, nil
}

func (am *AuthManager) issue() (string, *Session, error) {
	now := am.now().UTC().Truncate(time.Second)
	sess := &Session{Subject: adminSubject, IssuedAt: now, ExpiresAt: now.Add(am.cfg.SessionTTL())}
	claims := jwt.RegisteredClaims{
		Subject:   sess.Subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(am.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	return token, sess, nil
}

// Verify parses a session token.
func (am *AuthManager) Verify(token string) (*Session, error) {
	if token == "" || len(am.secret) == 0 {
		return nil, ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return am.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(adminSubject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(am.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sess := &Session{Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time.UTC()}
	if claims.IssuedAt != nil {
		sess.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return sess, nil
}

// GetSession returns the session for the request, or nil if not authenticated.
func (am *AuthManager) GetSession(r *http.Request) *Session {
	token := ""
	if c, err := r.Cookie(am.cfg.CookieName); err == nil {
		token = c.Value
	} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	sess, err := am.Verify(token)
	if err != nil {
		return nil
	}
	return sess
}

type loginRequest struct {
	Password string `json:"password" validate:"required,max=200"`
}

// HandleLogin checks a JSON {"password": ...} body and sets the session cookie.
func (am *AuthManager) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	token, sess, err := am.Login(r.Context(), am.clientIP(r), req.Password)
	var locked *LockedOutError
	switch {
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(locked.Remaining.Seconds()))))
		httputil.TooManyRequests(w, "Too many failed attempts. Please try again later.")
		return
	case errors.Is(err, ErrInvalidCredentials):
		httputil.Error(w, http.StatusUnauthorized, "Invalid password")
		return
	case errors.Is(err, ErrNotConfigured):
		httputil.Error(w, http.StatusServiceUnavailable, "Admin login is not configured")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     am.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(am.cfg.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   am.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.OK(w, map[string]interface{}{
		"authenticated": true,
		"expiresAt":     sess.ExpiresAt,
	})
}

// HandleLogout clears the session cookie. Tokens are stateless, so a copied
// token stays valid until it expires.
func (am *AuthManager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     am.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   am.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.OK(w, map[string]bool{"success": true})
}

// HandleSession reports whether the caller is logged in.
func (am *AuthManager) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess := am.GetSession(r)
	if sess == nil {
		httputil.JSON(w, http.StatusUnauthorized, map[string]bool{"authenticated": false})
		return
	}
	httputil.OK(w, map[string]interface{}{
		"authenticated": true,
		"expiresAt":     sess.ExpiresAt,
	})
}

// RequireAdmin rejects requests without a valid session with 401.
func (am *AuthManager) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := am.GetSession(r)
		if sess == nil {
			httputil.Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func remoteIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 && !strings.HasSuffix(addr, "]") {
		addr = addr[:i]
	}
	return strings.Trim(addr, "[]")
}
