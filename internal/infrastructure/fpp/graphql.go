package fpp

import (
	"context"
	"encoding/json"
	"fmt"

	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/ports"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// GraphQLClient sends Admin GraphQL documents for one shop
type GraphQLClient struct {
	client      ports.APIClient
	accessToken string
	apiVersion  domain.APIVersion
}

// NewGraphQLClient creates a client; an access token is required
func NewGraphQLClient(client ports.APIClient, accessToken string, apiVersion domain.APIVersion) (*GraphQLClient, error) {
	if accessToken == "" {
		return nil, domain.NewError(domain.KindMissingRequiredArgument, "Missing access token when creating GraphQL client")
	}
	return &GraphQLClient{
		client:      client,
		accessToken: accessToken,
		apiVersion:  apiVersion,
	}, nil
}

// ValidateDocument checks that document is syntactically valid GraphQL
func ValidateDocument(document string) error {
	if _, err := parser.ParseQuery(&ast.Source{Name: "document", Input: document}); err != nil {
		return domain.WrapError(domain.KindHttpRequest, err, "Invalid GraphQL document")
	}
	return nil
}

// Query posts document to the shop's graphql.json endpoint.
// Documents without variables are sent as application/graphql.
func (g *GraphQLClient) Query(ctx context.Context, document string, variables map[string]any) (*domain.Response, error) {
	if err := ValidateDocument(document); err != nil {
		return nil, err
	}

	params := domain.RequestParams{
		Path: fmt.Sprintf("/admin/api/%s/graphql.json", g.apiVersion),
		ExtraHeaders: map[string]string{
			domain.HeaderAccessToken: g.accessToken,
		},
	}
	if len(variables) == 0 {
		params.Type = domain.DataTypeGraphQL
		params.Data = document
	} else {
		params.Type = domain.DataTypeJSON
		params.Data = map[string]any{
			"query":     document,
			"variables": variables,
		}
	}

	resp, err := g.client.Post(ctx, params)
	if err != nil {
		return nil, err
	}

	var result struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := resp.Decode(&result); err == nil && len(result.Errors) > 0 && string(result.Errors) != "null" {
		return nil, domain.NewError(domain.KindGraphqlQuery, "GraphQL query returned errors: %s", result.Errors)
	}

	return resp, nil
}
