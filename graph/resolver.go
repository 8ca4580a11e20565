package graph

import (
	"fpp-app-layer/internal/infrastructure/pubsub"
	"fpp-app-layer/internal/ports"

	"github.com/rs/zerolog"
)

// Resolver serves the app's own GraphQL API; every request carries the
// session that RequireSession attached to its context.
type Resolver struct {
	clients ports.ClientProvider
	events  *pubsub.WebhookPubSub
	logger  zerolog.Logger
}

// NewResolver creates a new GraphQL resolver
func NewResolver(clients ports.ClientProvider, events *pubsub.WebhookPubSub, logger zerolog.Logger) *Resolver {
	return &Resolver{
		clients: clients,
		events:  events,
		logger:  logger,
	}
}
