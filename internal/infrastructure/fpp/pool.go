package fpp

import (
	"sync"

	"fpp-app-layer/internal/config"
	"fpp-app-layer/internal/ports"

	"github.com/rs/zerolog"
)

// ClientPool caches one Client per shop so deprecation dedup state is shared
// across the requests made for that shop.
type ClientPool struct {
	mu      sync.Mutex
	clients map[string]*Client
	cfg     *config.Config
	logger  zerolog.Logger
	opts    []Option
}

// NewClientPool creates a pool; opts are applied to every client it creates
func NewClientPool(cfg *config.Config, logger zerolog.Logger, opts ...Option) *ClientPool {
	base := []Option{
		WithLogger(logger),
		WithUserAgentPrefix(cfg.UserAgentPrefix),
	}
	return &ClientPool{
		clients: make(map[string]*Client),
		cfg:     cfg,
		logger:  logger,
		opts:    append(base, opts...),
	}
}

// GetClient returns the cached client for shop, creating it on first use
func (p *ClientPool) GetClient(shop string) (ports.APIClient, error) {
	client, err := p.client(shop)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// GetGraphQLClient returns an Admin GraphQL client for shop authenticated with accessToken
func (p *ClientPool) GetGraphQLClient(shop, accessToken string) (ports.GraphQLClient, error) {
	client, err := p.client(shop)
	if err != nil {
		return nil, err
	}
	gql, err := NewGraphQLClient(client, accessToken, p.cfg.APIVersion)
	if err != nil {
		return nil, err
	}
	return gql, nil
}

func (p *ClientPool) client(shop string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[shop]; ok {
		return client, nil
	}

	client, err := NewClient(shop, p.opts...)
	if err != nil {
		return nil, err
	}
	p.clients[shop] = client

	p.logger.Debug().Str("shop", shop).Msg("Created Fpp API client")
	return client, nil
}
