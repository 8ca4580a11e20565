package fpp

import (
	"net/url"
	"strings"
	"testing"

	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/fpptest"

	"github.com/stretchr/testify/require"
)

func TestCallbackVerifierValidateHmac(t *testing.T) {
	verifier := NewCallbackVerifier(fpptest.APIKey, fpptest.APISecret)

	query := url.Values{
		"code":      {"some-code"},
		"shop":      {fpptest.Shop},
		"state":     {"some-state"},
		"timestamp": {"1649030400"},
		"host":      {"c29tZS1ob3N0"},
	}
	query.Set("hmac", fpptest.SignQuery(query, fpptest.APISecret))

	ok, err := verifier.ValidateHmac(query)
	require.NoError(t, err)
	require.True(t, ok)

	tampered := url.Values{}
	for k, v := range query {
		tampered[k] = v
	}
	tampered.Set("shop", "other-shop.myfunpinpin.com")
	ok, err = verifier.ValidateHmac(tampered)
	require.NoError(t, err)
	require.False(t, ok)

	query.Del("hmac")
	_, err = verifier.ValidateHmac(query)
	require.ErrorIs(t, err, domain.ErrInvalidHmac)
	require.Contains(t, err.Error(), "Query does not contain an HMAC value.")
}

func TestAuthorizeURL(t *testing.T) {
	u := AuthorizeURL(fpptest.Shop, url.Values{"client_id": {"key"}, "state": {"abc"}})
	require.Equal(t, "https://"+fpptest.Shop+"/admin/oauth/authorize?client_id=key&state=abc", u)
}

func TestNonce(t *testing.T) {
	a, err := Nonce()
	require.NoError(t, err)
	b, err := Nonce()
	require.NoError(t, err)

	require.Len(t, a, 32)
	require.NotEqual(t, a, b)
	require.Empty(t, strings.Trim(a, "0123456789abcdef"))
}
