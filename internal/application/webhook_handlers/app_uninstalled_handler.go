package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"fpp-app-layer/internal/domain"

	"github.com/rs/zerolog"
)

// OfflineSessionRemover deletes the offline session stored for a shop
type OfflineSessionRemover interface {
	DeleteOfflineSession(ctx context.Context, shop string) (bool, error)
}

// AppUninstalledHandler handles app uninstalled webhook events
type AppUninstalledHandler struct {
	logger   zerolog.Logger
	sessions OfflineSessionRemover
}

// NewAppUninstalledHandler creates a new app uninstalled webhook handler
func NewAppUninstalledHandler(logger zerolog.Logger, sessions OfflineSessionRemover) *AppUninstalledHandler {
	return &AppUninstalledHandler{
		logger:   logger,
		sessions: sessions,
	}
}

// Topics returns the topics this handler serves
func (h *AppUninstalledHandler) Topics() []string {
	return []string{"APP_UNINSTALLED"}
}

// Handle drops the shop's offline session so its revoked token is never used again
func (h *AppUninstalledHandler) Handle(ctx context.Context, topic, shop string, body []byte) error {
	var shopData struct {
		Domain          string `json:"domain"`
		MyfunpinpinHost string `json:"myfunpinpin_domain"`
	}
	if err := json.Unmarshal(body, &shopData); err != nil {
		return fmt.Errorf("failed to parse app uninstalled webhook payload: %w", err)
	}

	shopDomain := shop
	if shopDomain == "" {
		shopDomain = shopData.MyfunpinpinHost
	}
	if shopDomain == "" {
		shopDomain = shopData.Domain
	}

	h.logger.Info().
		Str("topic", topic).
		Str("shop", shopDomain).
		Msg("Processing app uninstalled webhook event")

	sanitized := domain.SanitizeShop(shopDomain)
	if sanitized == "" {
		return domain.NewError(domain.KindInvalidShop, "Uninstalled shop %q is not valid", shopDomain)
	}

	deleted, err := h.sessions.DeleteOfflineSession(ctx, sanitized)
	if err != nil {
		return fmt.Errorf("failed to delete offline session: %w", err)
	}

	h.logger.Info().
		Str("shop", sanitized).
		Bool("sessionDeleted", deleted).
		Msg("App uninstalled - cleanup completed")

	return nil
}
