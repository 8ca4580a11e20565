package fpp

import (
	"testing"

	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/fpptest"

	"github.com/stretchr/testify/require"
)

func TestWebhookVerifier(t *testing.T) {
	body := []byte(`{"id":1,"title":"Shirt"}`)
	verifier := NewWebhookVerifier(fpptest.APISecret)

	require.Equal(t, fpptest.SignWebhook(body, fpptest.APISecret), verifier.Sign(body))
	require.NoError(t, verifier.Verify(body, fpptest.SignWebhook(body, fpptest.APISecret)))

	err := verifier.Verify(body, fpptest.SignWebhook(body, "other"))
	require.ErrorIs(t, err, domain.ErrInvalidWebhook)

	err = verifier.Verify([]byte(`{"id":2}`), fpptest.SignWebhook(body, fpptest.APISecret))
	require.ErrorIs(t, err, domain.ErrInvalidWebhook)

	err = verifier.Verify(body, "")
	require.ErrorIs(t, err, domain.ErrInvalidWebhook)
}
