package ports

import (
	"context"

	"fpp-app-layer/internal/domain"
)

// WebhookHandlerFunc processes one verified webhook delivery
type WebhookHandlerFunc func(ctx context.Context, topic, shopDomain string, body []byte) error

// WebhookHandler defines a handler that serves a fixed set of topics
type WebhookHandler interface {
	Topics() []string
	Handle(ctx context.Context, topic, shopDomain string, body []byte) error
}

// WebhookEventPublisher fans processed deliveries out to in-process subscribers
type WebhookEventPublisher interface {
	Publish(event *domain.WebhookEvent)
}
