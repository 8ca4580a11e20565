package graph

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"fpp-app-layer/graph/model"
	"fpp-app-layer/internal/domain"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

type ResolverRoot interface {
	Query() QueryResolver
	Subscription() SubscriptionResolver
}

type QueryResolver interface {
	Session(ctx context.Context) (*domain.Session, error)
	Shop(ctx context.Context) (*model.Shop, error)
}

type SubscriptionResolver interface {
	WebhookEvents(ctx context.Context, topics []string) (<-chan *domain.WebhookEvent, error)
}

type Config struct {
	Resolvers ResolverRoot
}

// NewExecutableSchema binds the resolvers to schema.graphqls.
// Request parsing and validation stay with the gqlgen handler; this
// executor only walks the validated selection sets.
func NewExecutableSchema(cfg Config) graphql.ExecutableSchema {
	return &executableSchema{schema: parsedSchema, resolvers: cfg.Resolvers}
}

type executableSchema struct {
	schema    *ast.Schema
	resolvers ResolverRoot
}

func (e *executableSchema) Schema() *ast.Schema {
	return e.schema
}

func (e *executableSchema) Complexity(ctx context.Context, typeName, field string, childComplexity int, args map[string]any) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)

	switch opCtx.Operation.Operation {
	case ast.Query:
		done := false
		return func(ctx context.Context) *graphql.Response {
			if done {
				return nil
			}
			done = true
			ec := &executionContext{OperationContext: opCtx}
			return ec.response(ec.query(ctx, e.resolvers.Query()))
		}
	case ast.Subscription:
		return e.subscribe(ctx, opCtx)
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}
}

func (e *executableSchema) subscribe(ctx context.Context, opCtx *graphql.OperationContext) graphql.ResponseHandler {
	fields := graphql.CollectFields(opCtx, opCtx.Operation.SelectionSet, []string{"Subscription"})
	if len(fields) != 1 {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "must subscribe to exactly one stream"))
	}
	field := fields[0]
	path := ast.Path{ast.PathName(field.Alias)}

	var events <-chan *domain.WebhookEvent
	var err error
	switch field.Name {
	case "webhookEvents":
		args := field.ArgumentMap(opCtx.Variables)
		events, err = e.resolvers.Subscription().WebhookEvents(ctx, stringList(args["topics"]))
	default:
		err = fmt.Errorf("unknown subscription field %s", field.Name)
	}
	if err != nil {
		return graphql.OneShot(&graphql.Response{Errors: gqlerror.List{gqlerror.WrapPath(path, err)}})
	}

	return func(ctx context.Context) *graphql.Response {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			ec := &executionContext{OperationContext: opCtx}
			out := graphql.NewFieldSet(fields)
			out.Values[0] = ec.webhookEvent(field.Selections, path, event)
			return ec.response(out)
		case <-ctx.Done():
			return nil
		}
	}
}

// executionContext collects field errors while one response is built
type executionContext struct {
	*graphql.OperationContext
	errors gqlerror.List
}

type fieldFunc func(f graphql.CollectedField, path ast.Path) (graphql.Marshaler, error)

func (ec *executionContext) response(data graphql.Marshaler) *graphql.Response {
	var buf bytes.Buffer
	data.MarshalGQL(&buf)
	return &graphql.Response{Data: buf.Bytes(), Errors: ec.errors}
}

// object marshals the selected fields of typeName in selection order.
// A failing field resolves to null and records its error.
func (ec *executionContext) object(typeName string, sel ast.SelectionSet, path ast.Path, resolve fieldFunc) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, []string{typeName})
	out := graphql.NewFieldSet(fields)
	for i, f := range fields {
		fieldPath := append(slices.Clone(path), ast.PathName(f.Alias))
		if f.Name == "__typename" {
			out.Values[i] = graphql.MarshalString(typeName)
			continue
		}
		value, err := resolve(f, fieldPath)
		if err != nil {
			ec.errors = append(ec.errors, gqlerror.WrapPath(fieldPath, err))
			value = graphql.Null
		}
		out.Values[i] = value
	}
	return out
}

func (ec *executionContext) query(ctx context.Context, r QueryResolver) graphql.Marshaler {
	return ec.object("Query", ec.Operation.SelectionSet, nil, func(f graphql.CollectedField, path ast.Path) (graphql.Marshaler, error) {
		switch f.Name {
		case "session":
			session, err := r.Session(ctx)
			if err != nil || session == nil {
				return graphql.Null, err
			}
			return ec.session(f.Selections, path, session), nil
		case "shop":
			shop, err := r.Shop(ctx)
			if err != nil || shop == nil {
				return graphql.Null, err
			}
			return ec.shop(f.Selections, path, shop), nil
		case "__schema", "__type":
			return nil, errors.New("introspection disabled")
		default:
			return nil, fmt.Errorf("unknown field %s", f.Name)
		}
	})
}

func (ec *executionContext) session(sel ast.SelectionSet, path ast.Path, session *domain.Session) graphql.Marshaler {
	return ec.object("Session", sel, path, func(f graphql.CollectedField, path ast.Path) (graphql.Marshaler, error) {
		switch f.Name {
		case "id":
			return graphql.MarshalID(session.ID), nil
		case "shop":
			return graphql.MarshalString(session.Shop), nil
		case "isOnline":
			return graphql.MarshalBoolean(session.IsOnline), nil
		case "scope":
			return optionalString(session.Scope), nil
		case "expires":
			if session.Expires == nil {
				return graphql.Null, nil
			}
			return graphql.MarshalTime(*session.Expires), nil
		case "userId":
			if session.OnlineAccessInfo == nil {
				return graphql.Null, nil
			}
			return graphql.MarshalID(strconv.FormatInt(session.OnlineAccessInfo.AssociatedUser.ID, 10)), nil
		default:
			return nil, fmt.Errorf("unknown field %s", f.Name)
		}
	})
}

func (ec *executionContext) shop(sel ast.SelectionSet, path ast.Path, shop *model.Shop) graphql.Marshaler {
	return ec.object("Shop", sel, path, func(f graphql.CollectedField, path ast.Path) (graphql.Marshaler, error) {
		switch f.Name {
		case "name":
			return graphql.MarshalString(shop.Name), nil
		case "email":
			if shop.Email == nil {
				return graphql.Null, nil
			}
			return graphql.MarshalString(*shop.Email), nil
		case "myfunpinpinDomain":
			return graphql.MarshalString(shop.MyfunpinpinDomain), nil
		case "plan":
			if shop.Plan == nil {
				return graphql.Null, nil
			}
			return ec.object("ShopPlan", f.Selections, path, func(f graphql.CollectedField, path ast.Path) (graphql.Marshaler, error) {
				if f.Name != "displayName" {
					return nil, fmt.Errorf("unknown field %s", f.Name)
				}
				return graphql.MarshalString(shop.Plan.DisplayName), nil
			}), nil
		default:
			return nil, fmt.Errorf("unknown field %s", f.Name)
		}
	})
}

func (ec *executionContext) webhookEvent(sel ast.SelectionSet, path ast.Path, event *domain.WebhookEvent) graphql.Marshaler {
	return ec.object("WebhookEvent", sel, path, func(f graphql.CollectedField, path ast.Path) (graphql.Marshaler, error) {
		switch f.Name {
		case "topic":
			return graphql.MarshalString(event.Topic), nil
		case "shop":
			return graphql.MarshalString(event.Shop), nil
		case "payload":
			return graphql.MarshalString(string(event.Payload)), nil
		default:
			return nil, fmt.Errorf("unknown field %s", f.Name)
		}
	})
}

func optionalString(s string) graphql.Marshaler {
	if s == "" {
		return graphql.Null
	}
	return graphql.MarshalString(s)
}

// stringList reads a [String!] argument; a single value is coerced to a list
func stringList(v any) []string {
	switch v := v.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
