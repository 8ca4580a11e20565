package graph

import (
	"context"
	"errors"
	"fmt"

	"fpp-app-layer/graph/model"
	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/infrastructure/pubsub"
)

var errNoSession = errors.New("no active session")

const shopQuery = `{
  shop {
    name
    email
    myfunpinpinDomain
    plan {
      displayName
    }
  }
}`

// Session is the resolver for the session field.
func (r *queryResolver) Session(ctx context.Context) (*domain.Session, error) {
	session := domain.SessionFromContext(ctx)
	if session == nil {
		return nil, errNoSession
	}
	return session, nil
}

// Shop is the resolver for the shop field.
func (r *queryResolver) Shop(ctx context.Context) (*model.Shop, error) {
	session := domain.SessionFromContext(ctx)
	if session == nil {
		return nil, errNoSession
	}

	client, err := r.clients.GetGraphQLClient(session.Shop, session.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create GraphQL client: %w", err)
	}

	resp, err := client.Query(ctx, shopQuery, nil)
	if err != nil {
		r.logger.Error().Err(err).Str("shop", session.Shop).Msg("Failed to query shop")
		return nil, fmt.Errorf("failed to query shop: %w", err)
	}

	var result struct {
		Data struct {
			Shop *model.Shop `json:"shop"`
		} `json:"data"`
	}
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode shop: %w", err)
	}
	return result.Data.Shop, nil
}

// WebhookEvents is the resolver for the webhookEvents field.
func (r *subscriptionResolver) WebhookEvents(ctx context.Context, topics []string) (<-chan *domain.WebhookEvent, error) {
	session := domain.SessionFromContext(ctx)
	if session == nil {
		return nil, errNoSession
	}

	sub := r.events.Subscribe(ctx, &pubsub.Filter{Topics: topics, Shop: session.Shop})
	r.logger.Debug().
		Str("shop", session.Shop).
		Strs("topics", topics).
		Str("subscriptionId", sub.ID).
		Msg("Webhook event stream opened")

	return sub.Events, nil
}

// Query returns QueryResolver implementation.
func (r *Resolver) Query() QueryResolver { return &queryResolver{r} }

// Subscription returns SubscriptionResolver implementation.
func (r *Resolver) Subscription() SubscriptionResolver { return &subscriptionResolver{r} }

type queryResolver struct{ *Resolver }
type subscriptionResolver struct{ *Resolver }
