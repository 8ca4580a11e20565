// Package fpptest provides helpers for tests that talk to a fake platform.
package fpptest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"fpp-app-layer/internal/config"
	"fpp-app-layer/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	Shop      = "test-shop.myfunpinpin.com"
	APIKey    = "test_key"
	APISecret = "test_secret_key"
	HostName  = "app.example.com"
)

// Config returns a valid configuration for Shop
func Config() *config.Config {
	return &config.Config{
		APIKey:        APIKey,
		APISecretKey:  APISecret,
		Scopes:        []string{"read_products", "write_orders"},
		HostName:      HostName,
		APIVersion:    domain.LatestAPIVersion,
		IsEmbeddedApp: true,
	}
}

type rewriteTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	return t.base.RoundTrip(out)
}

// NewServer starts handler and returns an http.Client that sends every
// request to it, whatever host the request names.
func NewServer(t testing.TB, handler http.Handler) *http.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	return &http.Client{
		Transport: &rewriteTransport{target: target, base: http.DefaultTransport},
		Timeout:   10 * time.Second,
	}
}

// SignQuery returns the hex HMAC the platform adds to OAuth callback queries
func SignQuery(values url.Values, secret string) string {
	q := url.Values{}
	for k, v := range values {
		if k == "hmac" || k == "signature" {
			continue
		}
		q[k] = v
	}
	message, _ := url.QueryUnescape(q.Encode())

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignWebhook returns the base64 HMAC the platform sends with a webhook body
func SignWebhook(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SessionTokenClaims returns valid embedded session token claims for shop and user
func SessionTokenClaims(shop, userID string, now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":  "https://" + shop + "/admin",
		"dest": "https://" + shop,
		"aud":  APIKey,
		"sub":  userID,
		"exp":  now.Add(time.Minute).Unix(),
		"nbf":  now.Add(-time.Minute).Unix(),
		"iat":  now.Add(-time.Minute).Unix(),
		"jti":  "4321",
		"sid":  "abc123",
	}
}

// SignSessionToken signs claims with HS256 and secret
func SignSessionToken(t testing.TB, claims jwt.Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}
