package config

import (
	"testing"

	"fpp-app-layer/internal/domain"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		APIKey:       "key",
		APISecretKey: "secret",
		Scopes:       []string{"read_products", "write_orders"},
		HostName:     "app.example.com",
		APIVersion:   domain.April22,
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("missing values are listed", func(t *testing.T) {
		cfg := validConfig()
		cfg.APIKey = ""
		cfg.Scopes = nil

		err := cfg.Validate()
		require.ErrorIs(t, err, domain.ErrUninitializedContext)
		require.Contains(t, err.Error(), "APIKey, Scopes")
	})

	t.Run("unknown api version", func(t *testing.T) {
		cfg := validConfig()
		cfg.APIVersion = "2019-01"
		require.ErrorIs(t, cfg.Validate(), domain.ErrUninitializedContext)
	})
}

func TestRequireOAuthApp(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.RequireOAuthApp("begin auth"))

	cfg.IsPrivateApp = true
	err := cfg.RequireOAuthApp("begin auth")
	require.ErrorIs(t, err, domain.ErrPrivateApp)
	require.Contains(t, err.Error(), "Cannot begin auth for private apps")
}

func TestScopeStringAndCookieKey(t *testing.T) {
	cfg := validConfig()
	require.Equal(t, "read_products,write_orders", cfg.ScopeString())
	require.Equal(t, []byte("secret"), cfg.CookieSigningKey())

	cfg.CookieSecret = "cookie"
	require.Equal(t, []byte("cookie"), cfg.CookieSigningKey())
}
