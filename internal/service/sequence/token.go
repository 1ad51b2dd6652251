package sequence

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenMaxAge is how long an unsubscribe link stays valid.
const DefaultTokenMaxAge = 90 * 24 * time.Hour

type unsubscribeClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenSigner issues and verifies HS256 unsubscribe tokens that embed the
// recipient address and the issue time.
type TokenSigner struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewTokenSigner creates a signer. A zero maxAge uses DefaultTokenMaxAge and
// a nil clock uses time.Now.
func NewTokenSigner(secret string, maxAge time.Duration, now func() time.Time) *TokenSigner {
	if maxAge <= 0 {
		maxAge = DefaultTokenMaxAge
	}
	if now == nil {
		now = time.Now
	}
	return &TokenSigner{secret: []byte(secret), maxAge: maxAge, now: now}
}

// Sign returns a token for email issued at the current time.
func (t *TokenSigner) Sign(email string) (string, error) {
	claims := unsubscribeClaims{
		Email: strings.ToLower(strings.TrimSpace(email)),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(t.now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign unsubscribe token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and age of a token and returns the embedded
// email. Tokens older than the max age return ErrTokenExpired.
func (t *TokenSigner) Verify(token string) (string, error) {
	claims := &unsubscribeClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Email == "" || claims.IssuedAt == nil {
		return "", ErrInvalidToken
	}
	if t.now().Sub(claims.IssuedAt.Time) > t.maxAge {
		return "", ErrTokenExpired
	}
	return claims.Email, nil
}

// UnsubscribeURL builds the public unsubscribe link for email.
func (t *TokenSigner) UnsubscribeURL(siteURL, email string) (string, error) {
	token, err := t.Sign(email)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(siteURL, "/") + "/api/unsubscribe?token=" + url.QueryEscape(token), nil
}
