package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// CustomerHandler handles customer-related webhook events
type CustomerHandler struct {
	logger zerolog.Logger
}

// NewCustomerHandler creates a new customer webhook handler
func NewCustomerHandler(logger zerolog.Logger) *CustomerHandler {
	return &CustomerHandler{
		logger: logger,
	}
}

// Topics returns the topics this handler serves
func (h *CustomerHandler) Topics() []string {
	return []string{
		"CUSTOMERS_CREATE",
		"CUSTOMERS_UPDATE",
		"CUSTOMERS_DELETE",
		"CUSTOMERS_ENABLE",
		"CUSTOMERS_DISABLE",
	}
}

// Handle processes a customer webhook event
func (h *CustomerHandler) Handle(ctx context.Context, topic, shop string, body []byte) error {
	var customer struct {
		ID          int64  `json:"id"`
		Email       string `json:"email"`
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		OrdersCount int64  `json:"orders_count"`
		TotalSpent  string `json:"total_spent"`
	}
	if err := json.Unmarshal(body, &customer); err != nil {
		return fmt.Errorf("failed to parse customer webhook payload: %w", err)
	}

	h.logger.Info().
		Str("topic", topic).
		Str("shop", shop).
		Int64("customerId", customer.ID).
		Str("email", customer.Email).
		Str("firstName", customer.FirstName).
		Str("lastName", customer.LastName).
		Int64("ordersCount", customer.OrdersCount).
		Str("totalSpent", customer.TotalSpent).
		Msg("Processing customer webhook event")

	switch topic {
	case "CUSTOMERS_CREATE":
		h.logger.Info().Str("shop", shop).Int64("customerId", customer.ID).Str("email", customer.Email).Msg("New customer created")
	case "CUSTOMERS_DELETE":
		h.logger.Info().Str("shop", shop).Int64("customerId", customer.ID).Msg("Customer deleted")
	case "CUSTOMERS_ENABLE", "CUSTOMERS_DISABLE":
		h.logger.Info().Str("shop", shop).Int64("customerId", customer.ID).Str("topic", topic).Msg("Customer account state changed")
	}

	return nil
}
