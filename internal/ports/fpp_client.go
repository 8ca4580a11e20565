package ports

import (
	"context"

	"fpp-app-layer/internal/domain"
)

// APIClient defines a retrying HTTP client bound to one shop domain
type APIClient interface {
	Request(ctx context.Context, params domain.RequestParams) (*domain.Response, error)
	Get(ctx context.Context, params domain.RequestParams) (*domain.Response, error)
	Post(ctx context.Context, params domain.RequestParams) (*domain.Response, error)
	Put(ctx context.Context, params domain.RequestParams) (*domain.Response, error)
	Delete(ctx context.Context, params domain.RequestParams) (*domain.Response, error)
}

// GraphQLClient defines an authenticated Admin GraphQL client for one shop
type GraphQLClient interface {
	Query(ctx context.Context, document string, variables map[string]any) (*domain.Response, error)
}

// ClientProvider hands out platform clients per shop
type ClientProvider interface {
	GetClient(shop string) (APIClient, error)
	GetGraphQLClient(shop, accessToken string) (GraphQLClient, error)
}
