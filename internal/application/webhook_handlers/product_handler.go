package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// ProductHandler handles product-related webhook events
type ProductHandler struct {
	logger zerolog.Logger
}

// NewProductHandler creates a new product webhook handler
func NewProductHandler(logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		logger: logger,
	}
}

// Topics returns the topics this handler serves
func (h *ProductHandler) Topics() []string {
	return []string{"PRODUCTS_CREATE", "PRODUCTS_UPDATE", "PRODUCTS_DELETE"}
}

// Handle processes a product webhook event
func (h *ProductHandler) Handle(ctx context.Context, topic, shop string, body []byte) error {
	var product struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		Handle      string `json:"handle"`
		Vendor      string `json:"vendor"`
		ProductType string `json:"product_type"`
	}
	if err := json.Unmarshal(body, &product); err != nil {
		return fmt.Errorf("failed to parse product webhook payload: %w", err)
	}

	h.logger.Info().
		Str("topic", topic).
		Str("shop", shop).
		Int64("productId", product.ID).
		Str("title", product.Title).
		Str("handle", product.Handle).
		Str("vendor", product.Vendor).
		Str("productType", product.ProductType).
		Msg("Processing product webhook event")

	switch topic {
	case "PRODUCTS_CREATE":
		h.logger.Info().Str("shop", shop).Int64("productId", product.ID).Str("title", product.Title).Msg("New product created")
	case "PRODUCTS_UPDATE":
		h.logger.Info().Str("shop", shop).Int64("productId", product.ID).Str("title", product.Title).Msg("Product updated")
	case "PRODUCTS_DELETE":
		h.logger.Info().Str("shop", shop).Int64("productId", product.ID).Msg("Product deleted")
	}

	return nil
}
