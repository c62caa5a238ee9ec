package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/guidopia/apiserver/types"
)

// Token verification failures. ErrExpiredToken is distinguished so the
// client can be told to refresh rather than re-authenticate.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// AccessToken and RefreshToken are distinct kinds so one cannot be
// passed where the other is expected.
type AccessToken string

type RefreshToken string

// Claims is the verified content of a token.
type Claims struct {
	Subject   int
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssuedBefore reports whether the token was issued before the given
// instant. A token issued exactly at t is NOT considered stale.
// Comparison is at second resolution, matching the JWT iat field.
func (c Claims) IssuedBefore(t time.Time) bool {
	return c.IssuedAt.Unix() < t.Unix()
}

type signedClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Issuer creates and verifies access and refresh tokens. The two kinds
// are signed with independent secrets so leaking one signing key does
// not compromise the other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewIssuer constructs an Issuer with the provided secrets and expiries.
func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccess creates a short-lived access token bound to the user id
// and role.
func (i *Issuer) IssueAccess(user types.User) (AccessToken, error) {
	signed, err := sign(strconv.Itoa(user.ID), user.Role, i.accessSecret, i.accessTTL)
	return AccessToken(signed), err
}

// IssueRefresh creates a longer-lived refresh token carrying the user
// id only.
func (i *Issuer) IssueRefresh(user types.User) (RefreshToken, error) {
	signed, err := sign(strconv.Itoa(user.ID), "", i.refreshSecret, i.refreshTTL)
	return RefreshToken(signed), err
}

// VerifyAccess validates an access token's signature and expiry.
func (i *Issuer) VerifyAccess(token AccessToken) (Claims, error) {
	return verify(string(token), i.accessSecret)
}

// VerifyRefresh validates a refresh token's signature and expiry.
func (i *Issuer) VerifyRefresh(token RefreshToken) (Claims, error) {
	return verify(string(token), i.refreshSecret)
}

func sign(subject, role string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := signedClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func verify(tokenString string, secret []byte) (Claims, error) {
	parsed := signedClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	subject, err := strconv.Atoi(strings.TrimSpace(parsed.Subject))
	if err != nil || subject < 1 {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{
		Subject: subject,
		Role:    parsed.Role,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}
