package fpp

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"

	"fpp-app-layer/internal/domain"

	goshopify "github.com/bold-commerce/go-shopify/v4"
)

// AuthorizeURL returns the platform authorize endpoint for shop with query appended
func AuthorizeURL(shop string, query url.Values) string {
	return fmt.Sprintf("https://%s/admin/oauth/authorize?%s", shop, query.Encode())
}

// Nonce returns a random hex string suitable for the OAuth state parameter
func Nonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CallbackVerifier validates the hex HMAC the platform adds to OAuth callback queries.
// The platform signs the sorted query without its hmac and signature parameters,
// the same scheme go-shopify verifies.
type CallbackVerifier struct {
	app goshopify.App
}

// NewCallbackVerifier creates a verifier for the app credentials
func NewCallbackVerifier(apiKey, apiSecret string) *CallbackVerifier {
	return &CallbackVerifier{
		app: goshopify.App{
			ApiKey:    apiKey,
			ApiSecret: apiSecret,
		},
	}
}

// ValidateHmac reports whether query carries a valid signature.
// A query without an hmac parameter is an error.
func (v *CallbackVerifier) ValidateHmac(query url.Values) (bool, error) {
	if query.Get("hmac") == "" {
		return false, domain.NewError(domain.KindInvalidHmac, "Query does not contain an HMAC value.")
	}

	ok, err := v.app.VerifyAuthorizationURL(&url.URL{RawQuery: query.Encode()})
	if err != nil {
		return false, domain.WrapError(domain.KindInvalidHmac, err, "Failed to verify query HMAC")
	}
	return ok, nil
}
