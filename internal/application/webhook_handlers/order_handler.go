package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// OrderHandler handles order-related webhook events
type OrderHandler struct {
	logger zerolog.Logger
}

// NewOrderHandler creates a new order webhook handler
func NewOrderHandler(logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		logger: logger,
	}
}

// Topics returns the topics this handler serves
func (h *OrderHandler) Topics() []string {
	return []string{
		"ORDERS_CREATE",
		"ORDERS_UPDATED",
		"ORDERS_CANCELLED",
		"ORDERS_PAID",
		"ORDERS_FULFILLED",
		"ORDERS_PARTIALLY_FULFILLED",
	}
}

// Handle processes an order webhook event
func (h *OrderHandler) Handle(ctx context.Context, topic, shop string, body []byte) error {
	var order struct {
		ID                int64  `json:"id"`
		OrderNumber       int64  `json:"order_number"`
		Email             string `json:"email"`
		TotalPrice        string `json:"total_price"`
		FinancialStatus   string `json:"financial_status"`
		FulfillmentStatus string `json:"fulfillment_status"`
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return fmt.Errorf("failed to parse order webhook payload: %w", err)
	}

	h.logger.Info().
		Str("topic", topic).
		Str("shop", shop).
		Int64("orderId", order.ID).
		Int64("orderNumber", order.OrderNumber).
		Str("email", order.Email).
		Str("totalPrice", order.TotalPrice).
		Str("financialStatus", order.FinancialStatus).
		Str("fulfillmentStatus", order.FulfillmentStatus).
		Msg("Processing order webhook event")

	switch topic {
	case "ORDERS_CREATE":
		h.logger.Info().Str("shop", shop).Int64("orderId", order.ID).Msg("New order created")
	case "ORDERS_PAID":
		h.logger.Info().Str("shop", shop).Int64("orderId", order.ID).Msg("Order paid")
	case "ORDERS_FULFILLED":
		h.logger.Info().Str("shop", shop).Int64("orderId", order.ID).Msg("Order fulfilled")
	case "ORDERS_CANCELLED":
		h.logger.Info().Str("shop", shop).Int64("orderId", order.ID).Msg("Order cancelled")
	}

	return nil
}
