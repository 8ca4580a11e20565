package config

import (
	"strings"

	"fpp-app-layer/internal/domain"
)

// Config holds the app credentials and platform settings shared by every component.
// It is populated once at startup (kong reads flags and the environment) and passed
// by pointer to the services that need it.
type Config struct {
	APIKey          string            `help:"App API key" env:"FPP_API_KEY" name:"api-key"`
	APISecretKey    string            `help:"App API secret" env:"FPP_API_SECRET_KEY" name:"api-secret-key"`
	Scopes          []string          `help:"OAuth scopes requested at install" env:"FPP_SCOPES" name:"scopes"`
	HostName        string            `help:"Public host name of this app, without scheme" env:"FPP_HOST_NAME" name:"host-name"`
	APIVersion      domain.APIVersion `help:"Platform API version" env:"FPP_API_VERSION" name:"api-version" default:"2022-04"`
	IsEmbeddedApp   bool              `help:"App is rendered inside the admin and authenticates with session tokens" env:"FPP_IS_EMBEDDED_APP" name:"embedded" default:"true"`
	IsPrivateApp    bool              `help:"App is a private app that does not use OAuth" env:"FPP_IS_PRIVATE_APP" name:"private-app"`
	UserAgentPrefix string            `help:"Prefix added to the User-Agent of platform requests" env:"FPP_USER_AGENT_PREFIX" name:"user-agent-prefix"`
	CookieSecret    string            `help:"Key used to sign the session cookie, defaults to the API secret" env:"FPP_COOKIE_SECRET" name:"cookie-secret"`
}

// Validate checks that the credentials required by every flow are present
func (c *Config) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "APIKey")
	}
	if c.APISecretKey == "" {
		missing = append(missing, "APISecretKey")
	}
	if len(c.Scopes) == 0 {
		missing = append(missing, "Scopes")
	}
	if c.HostName == "" {
		missing = append(missing, "HostName")
	}
	if len(missing) > 0 {
		return domain.NewError(domain.KindUninitializedContext,
			"Cannot initialize app configuration. Missing values for: %s", strings.Join(missing, ", "))
	}
	if !domain.IsKnownAPIVersion(c.APIVersion) {
		return domain.NewError(domain.KindUninitializedContext, "unknown API version %q", c.APIVersion)
	}
	return nil
}

// RequireOAuthApp fails for private apps, which cannot run the OAuth flow
func (c *Config) RequireOAuthApp(operation string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.IsPrivateApp {
		return domain.NewError(domain.KindPrivateApp, "Cannot %s for private apps", operation)
	}
	return nil
}

// ScopeString joins the configured scopes the way the authorize endpoint expects
func (c *Config) ScopeString() string {
	return strings.Join(c.Scopes, ",")
}

// CookieSigningKey returns the key for the session cookie signature
func (c *Config) CookieSigningKey() []byte {
	if c.CookieSecret != "" {
		return []byte(c.CookieSecret)
	}
	return []byte(c.APISecretKey)
}
