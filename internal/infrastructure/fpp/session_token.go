package fpp

import (
	"slices"
	"strings"
	"time"

	"fpp-app-layer/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const sessionTokenLeeway = 5 * time.Second

// SessionTokenClaims are the claims of an embedded app session token
type SessionTokenClaims struct {
	Dest string `json:"dest"`
	Sid  string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Shop returns the shop domain from the dest claim
func (c *SessionTokenClaims) Shop() string {
	return strings.TrimRight(strings.TrimPrefix(c.Dest, "https://"), "/")
}

// SessionTokenDecoder verifies HS256 session tokens signed with the app secret
type SessionTokenDecoder struct {
	apiKey string
	secret []byte
	now    func() time.Time
}

// NewSessionTokenDecoder creates a decoder; now may be nil to use the wall clock
func NewSessionTokenDecoder(apiKey, apiSecret string, now func() time.Time) *SessionTokenDecoder {
	if now == nil {
		now = time.Now
	}
	return &SessionTokenDecoder{
		apiKey: apiKey,
		secret: []byte(apiSecret),
		now:    now,
	}
}

// Decode verifies the token signature, time claims, audience and destination shop
func (d *SessionTokenDecoder) Decode(token string) (*SessionTokenClaims, error) {
	claims := &SessionTokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return d.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(sessionTokenLeeway),
		jwt.WithTimeFunc(d.now),
	)
	if err != nil {
		return nil, domain.WrapError(domain.KindInvalidJwt, err, "Failed to parse session token")
	}

	if !slices.Contains(claims.Audience, d.apiKey) {
		return nil, domain.NewError(domain.KindInvalidJwt, "Session token had invalid API key")
	}
	if !domain.ValidateShop(claims.Shop()) {
		return nil, domain.NewError(domain.KindInvalidJwt, "Session token had invalid shop")
	}

	return claims, nil
}
