package fpp

import (
	"testing"

	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/fpptest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestClientPool(t *testing.T) {
	pool := NewClientPool(fpptest.Config(), zerolog.Nop())

	first, err := pool.GetClient(fpptest.Shop)
	require.NoError(t, err)
	second, err := pool.GetClient(fpptest.Shop)
	require.NoError(t, err)
	require.Same(t, first, second)

	other, err := pool.GetClient("other-shop.myfunpinpin.com")
	require.NoError(t, err)
	require.NotSame(t, first, other)

	client, err := pool.GetClient("bad shop")
	require.ErrorIs(t, err, domain.ErrInvalidShop)
	require.Nil(t, client)
}

func TestClientPoolGraphQL(t *testing.T) {
	pool := NewClientPool(fpptest.Config(), zerolog.Nop())

	gql, err := pool.GetGraphQLClient(fpptest.Shop, "token")
	require.NoError(t, err)
	require.NotNil(t, gql)

	gql, err = pool.GetGraphQLClient(fpptest.Shop, "")
	require.ErrorIs(t, err, domain.ErrMissingRequiredArgument)
	require.Nil(t, gql)
}
