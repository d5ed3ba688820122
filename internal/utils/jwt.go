package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA‑256 hashing for refresh tokens
	"encoding/hex"  // hex encoding and decoding functions
	"errors"
	"strconv"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// Errors returned by ParseAccessToken. Expired tokens are reported
// separately so that clients can refresh silently instead of logging in.
var (
	ErrAccessExpired = errors.New("access token expired")
	ErrAccessInvalid = errors.New("access token invalid")
)

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are short‑lived, stateless and sent in the Authorization
// header of every authenticated request.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// AccessClaims is the claim set carried by an access token. Family names
// the refresh-token family of the session that minted the token so that
// logout can revoke exactly that session.
type AccessClaims struct {
	Role   string `json:"role"`
	Family string `json:"fam,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject of the token.
func (c AccessClaims) UserID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// RefreshToken represents a long‑lived opaque token used to obtain a new
// token pair. Only a SHA‑256 hash of Raw is persisted.
type RefreshToken struct {
	Raw string    // raw token string returned to the client
	Exp time.Time // UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user session. The
// claims carry the subject (user id), role, token family and the standard
// exp/iat timestamps.
func NewAccessToken(secret string, userID uint64, role, family string, ttl time.Duration, now time.Time) (AccessToken, error) {
	now = now.UTC()
	exp := now.Add(ttl)
	claims := AccessClaims{
		Role:   role,
		Family: family,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies signature and expiry of raw. It never touches
// storage. Only HMAC signing methods are accepted.
func ParseAccessToken(secret, raw string, now time.Time) (AccessClaims, error) {
	var claims AccessClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAccessInvalid
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return now }), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessClaims{}, ErrAccessExpired
		}
		return AccessClaims{}, ErrAccessInvalid
	}
	if !tok.Valid || claims.Subject == "" {
		return AccessClaims{}, ErrAccessInvalid
	}
	return claims, nil
}

// NewRefreshToken returns a cryptographically secure random token (raw) and
// its expiration time.
func NewRefreshToken(ttl time.Duration, now time.Time) (RefreshToken, error) {
	raw, err := randomHex(48) // 48 bytes -> 96 hex chars
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: raw, Exp: now.UTC().Add(ttl)}, nil
}

// HashRefreshRaw returns the SHA‑256 hash of the raw refresh token as a hex
// string. This is the only form in which refresh tokens are stored.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
